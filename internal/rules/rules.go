// Package rules holds the fixed catalog of risk checks that run over an
// account graph, and the engine that assembles their findings into a
// report. Every rule is pure with respect to the graph: it only reads.
package rules

import (
	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Rule is one independent risk check. A rule produces zero or one
// aggregate finding; a single finding may enumerate many affected
// principals.
type Rule struct {
	Name  string
	Check func(*graph.Graph) ([]types.Finding, error)
}

// Catalog returns the full rule set in its fixed execution order. Report
// findings always appear in this order regardless of how the rules were
// dispatched.
func Catalog() []Rule {
	return []Rule{
		{Name: "privilege-escalation", Check: escalationFindings},
		{Name: "admin-users-without-mfa", Check: adminUsersWithoutMFAFindings},
		{Name: "mfa-sensitive-actions", Check: mfaSensitiveActionFindings},
		{Name: "overprivileged-lambda-role", Check: lambdaRoleFindings},
		{Name: "overprivileged-instance-profile", Check: instanceProfileFindings},
		{Name: "overprivileged-cloudformation-role", Check: cloudFormationRoleFindings},
		{Name: "ssm-local-privesc", Check: ssmLocalPrivescFindings},
		{Name: "circular-access", Check: circularAccessFindings},
		{Name: "confused-deputy", Check: confusedDeputyFindings},
	}
}

// Lookup finds a cataloged rule by name.
func Lookup(name string) (Rule, bool) {
	for _, r := range Catalog() {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
