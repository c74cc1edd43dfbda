package rules

import (
	"strings"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// escalationFindings reports every non-administrative principal that can
// reach an administrative principal through a chain of access edges.
func escalationFindings(g *graph.Graph) ([]types.Finding, error) {
	type hit struct {
		node *types.Node
		path []*types.Edge
	}

	var hits []hit
	for _, node := range g.Nodes() {
		if node.IsAdmin {
			continue
		}
		found, path := graph.FindEscalationPath(g, node)
		if found {
			hits = append(hits, hit{node: node, path: path})
		}
	}

	if len(hits) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("IAM principals have their permissions defined using IAM policies. " +
		"Administrative principals can call any action with any resource. Some permission " +
		"combinations allow a non-administrative principal to gain access to an administrative " +
		"principal, which represents a privilege escalation risk.\n\n" +
		"The following principals could escalate privileges:\n\n")

	for _, h := range hits {
		last := h.path[len(h.path)-1]
		b.WriteString("* " + h.node.Name() + " can escalate privileges by accessing the administrative principal " +
			types.ARNName(last.Destination) + ":\n")
		for _, edge := range h.path {
			b.WriteString("   * " + edge.Describe() + "\n")
		}
		b.WriteString("\n")
	}

	title := "IAM Principal Can Escalate Privileges"
	if len(hits) > 1 {
		title = "IAM Principals Can Escalate Privileges"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityHigh,
		Impact: "A lower-privilege IAM user or role is able to gain administrative privileges. " +
			"This could lead to the lower-privilege principal being used to compromise the account " +
			"and its resources.",
		Description: b.String(),
		Recommendation: "Review the IAM policies that are applicable to the affected users or roles. " +
			"Either reduce the permissions of the administrative principals, or reduce the permissions " +
			"of the principals that can access the administrative principals.",
	}}, nil
}
