package rules

import (
	"strings"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// circularAccessFindings reports sets of non-administrative principals
// that can access each other in a circle. An attacker inside the cycle can
// pivot between its members to evade detection or persist access.
// Administrative nodes are excluded as origins (a cycle through an admin
// is dominated by the escalation finding anyway).
func circularAccessFindings(g *graph.Graph) ([]types.Finding, error) {
	var cycles [][]*types.Node
	for _, node := range g.Nodes() {
		if node.IsAdmin {
			continue
		}
		if cycle, ok := graph.FindCycle(g, node); ok {
			cycles = append(cycles, cycle)
		}
	}

	if len(cycles) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("An IAM principal with a specific set of permissions can gain access to " +
		"another principal, such as when an IAM user has permission to call sts:AssumeRole for " +
		"an IAM role. There may be instances where principals can access each other in a " +
		"circular manner. An attacker that gains access to one principal in a cycle can abuse " +
		"that access to pivot between each of the principals in the cycle, evading detection or " +
		"persisting access. The following cycles were identified:\n\n")
	for _, cycle := range cycles {
		names := make([]string, 0, len(cycle)+1)
		for _, n := range cycle {
			names = append(names, n.Name())
		}
		names = append(names, cycle[0].Name())
		b.WriteString("* " + strings.Join(names, " -> ") + "\n")
	}

	return []types.Finding{{
		Title:    "IAM Principals With Circular Access",
		Severity: types.SeverityLow,
		Impact: "If an attacker gains access to one of the identified principals, they can " +
			"potentially evade detections or persist access.",
		Description: b.String(),
		Recommendation: "Break the cycle of access by altering or removing permissions assigned " +
			"to one of the noted principals.",
	}}, nil
}
