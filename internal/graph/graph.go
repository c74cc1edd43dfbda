// Package graph holds the immutable account snapshot that all analysis
// runs over: principals, verified access edges, and resource policies.
// Nothing in this package mutates the graph after construction, which is
// what lets rules and per-node searches run concurrently without locking.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pfrederiksen/privaudit/pkg/types"
)

// ErrMissingAccountID is returned when a snapshot has no account
// identifier. Report generation refuses to start without one; partial
// reports with placeholder metadata are never produced.
var ErrMissingAccountID = errors.New("snapshot has no account id")

// Graph is a read-only view over one account snapshot.
type Graph struct {
	accountID   string
	collectedAt time.Time

	nodes    map[string]*types.Node
	ordered  []*types.Node // sorted by ARN for deterministic iteration
	edges    []*types.Edge
	outbound map[string][]*types.Edge // sorted per source
	policies []*types.Policy
}

// New validates a snapshot and wraps it in a Graph. Node ARNs must be
// unique and every edge endpoint must reference a node in the snapshot.
func New(snap *types.Snapshot) (*Graph, error) {
	if snap == nil {
		return nil, errors.New("snapshot is nil")
	}
	if snap.AccountID == "" {
		return nil, ErrMissingAccountID
	}

	g := &Graph{
		accountID:   snap.AccountID,
		collectedAt: snap.CollectedAt,
		nodes:       make(map[string]*types.Node, len(snap.Nodes)),
		outbound:    make(map[string][]*types.Edge),
		policies:    snap.Policies,
	}

	for _, n := range snap.Nodes {
		if n.ARN == "" {
			return nil, errors.New("node with empty ARN")
		}
		if _, dup := g.nodes[n.ARN]; dup {
			return nil, fmt.Errorf("duplicate node %s", n.ARN)
		}
		g.nodes[n.ARN] = n
		g.ordered = append(g.ordered, n)
	}
	sort.Slice(g.ordered, func(i, j int) bool { return g.ordered[i].ARN < g.ordered[j].ARN })

	for _, e := range snap.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, fmt.Errorf("edge source %s not in graph", e.Source)
		}
		if _, ok := g.nodes[e.Destination]; !ok {
			return nil, fmt.Errorf("edge destination %s not in graph", e.Destination)
		}
		g.edges = append(g.edges, e)
		g.outbound[e.Source] = append(g.outbound[e.Source], e)
	}

	// Stable outbound order keeps every traversal reproducible across
	// runs on the same snapshot.
	for _, out := range g.outbound {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Destination != out[j].Destination {
				return out[i].Destination < out[j].Destination
			}
			return out[i].ShortReason < out[j].ShortReason
		})
	}

	return g, nil
}

// LoadFromFile reads a snapshot JSON file and builds a graph from it. This
// enables analysis without connecting to AWS.
func LoadFromFile(filePath string) (*Graph, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from %s: %w", filePath, err)
	}

	return New(&snap)
}

// SaveToFile writes a snapshot as indented JSON, the format LoadFromFile
// reads back.
func SaveToFile(filePath string, snap *types.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return nil
}

// AccountID returns the audited account's identifier.
func (g *Graph) AccountID() string { return g.accountID }

// CollectedAt returns when the snapshot was captured.
func (g *Graph) CollectedAt() time.Time { return g.collectedAt }

// Nodes returns every node in ARN order. Callers must not modify the
// returned nodes.
func (g *Graph) Nodes() []*types.Node { return g.ordered }

// Node looks up a node by ARN.
func (g *Graph) Node(arn string) (*types.Node, bool) {
	n, ok := g.nodes[arn]
	return n, ok
}

// Outbound returns the outbound edges of a node, in stable order.
func (g *Graph) Outbound(arn string) []*types.Edge { return g.outbound[arn] }

// Edges returns every edge in the graph.
func (g *Graph) Edges() []*types.Edge { return g.edges }

// Policies returns the standalone resource policies in the snapshot.
func (g *Graph) Policies() []*types.Policy { return g.policies }
