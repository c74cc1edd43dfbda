package rules

import (
	"errors"
	"sync"
	"time"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Source is the fixed provenance string attached to every report.
const Source = "Findings identified using privaudit " + types.Version +
	" (https://github.com/pfrederiksen/privaudit)"

// Engine runs the rule catalog over one graph and assembles a report.
type Engine struct {
	graph *graph.Graph
	cfg   *Config
}

// NewEngine creates an engine for a graph. cfg may be nil, which runs the
// full catalog with default severities.
func NewEngine(g *graph.Graph, cfg *Config) *Engine {
	return &Engine{graph: g, cfg: cfg}
}

// GenerateReport executes the active rules and assembles their findings,
// in catalog order, into a report. Rules run concurrently (the graph is
// read-only so no locking is needed) and results are merged back into the
// fixed order so output stays deterministic. A rule that fails is logged
// and contributes nothing; it never aborts the run.
func (e *Engine) GenerateReport() (*types.Report, error) {
	if e.graph == nil {
		return nil, errors.New("engine has no graph")
	}
	if e.graph.AccountID() == "" {
		return nil, graph.ErrMissingAccountID
	}

	active := e.activeRules()
	results := make([][]types.Finding, len(active))

	var wg sync.WaitGroup
	for i, rule := range active {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			findings, err := rule.Check(e.graph)
			if err != nil {
				logging.Error("rule failed", err, map[string]interface{}{"rule": rule.Name})
				return
			}
			results[i] = findings
		}(i, rule)
	}
	wg.Wait()

	findings := make([]types.Finding, 0)
	for i := range results {
		findings = append(findings, e.overrideSeverity(active[i].Name, results[i])...)
	}

	return &types.Report{
		AccountID:   e.graph.AccountID(),
		GeneratedAt: time.Now().UTC(),
		Findings:    findings,
		Source:      Source,
	}, nil
}

// RunRule executes a single cataloged rule by name.
func (e *Engine) RunRule(name string) ([]types.Finding, error) {
	rule, ok := Lookup(name)
	if !ok {
		return nil, errors.New("unknown rule " + name)
	}
	findings, err := rule.Check(e.graph)
	if err != nil {
		return nil, err
	}
	return e.overrideSeverity(name, findings), nil
}

func (e *Engine) activeRules() []Rule {
	catalog := Catalog()
	if e.cfg == nil || len(e.cfg.Disabled) == 0 {
		return catalog
	}
	active := make([]Rule, 0, len(catalog))
	for _, rule := range catalog {
		if !e.cfg.IsDisabled(rule.Name) {
			active = append(active, rule)
		}
	}
	return active
}

func (e *Engine) overrideSeverity(name string, findings []types.Finding) []types.Finding {
	if e.cfg == nil {
		return findings
	}
	sev, ok := e.cfg.Severities[name]
	if !ok {
		return findings
	}
	for i := range findings {
		findings[i].Severity = sev
	}
	return findings
}
