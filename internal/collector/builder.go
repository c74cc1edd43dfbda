package collector

import (
	"sort"

	"github.com/pfrederiksen/privaudit/internal/simulator"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Finalize computes the derived parts of a snapshot: admin flags and
// assume-role edges. It is separated from the AWS crawl so it can run over
// snapshots from any source.
func Finalize(snap *types.Snapshot) error {
	if err := markAdmins(snap.Nodes); err != nil {
		return err
	}

	edges, err := buildEdges(snap.AccountID, snap.Nodes)
	if err != nil {
		return err
	}
	snap.Edges = edges

	return nil
}

// markAdmins flags every node whose policies authorize any action on any
// resource.
func markAdmins(nodes []*types.Node) error {
	for _, node := range nodes {
		isAdmin, err := simulator.IsAdminCandidate(node)
		if err != nil {
			return err
		}
		node.IsAdmin = isAdmin
	}
	return nil
}

// buildEdges derives assume-role edges between nodes. An edge exists when
// the destination role's trust policy admits the source principal's account
// and the source's identity policies authorize sts:AssumeRole on the role.
func buildEdges(accountID string, nodes []*types.Node) ([]*types.Edge, error) {
	var edges []*types.Edge

	for _, dest := range nodes {
		if dest.Kind() != types.NodeKindRole || dest.TrustPolicy == nil {
			continue
		}

		for _, source := range nodes {
			if source.ARN == dest.ARN {
				continue
			}

			trust, err := simulator.EvaluateResourcePolicy(
				source.ARN, accountID, dest.TrustPolicy, "sts:AssumeRole", dest.ARN, nil)
			if err != nil {
				return nil, err
			}
			if trust != simulator.ResourcePolicyAccountMatch && trust != simulator.ResourcePolicyServiceMatch {
				continue
			}

			result, err := simulator.Evaluate(source, "sts:AssumeRole", dest.ARN, nil)
			if err != nil {
				return nil, err
			}
			if result.Decision != simulator.Allowed {
				continue
			}

			edges = append(edges, &types.Edge{
				Source:      source.ARN,
				Destination: dest.ARN,
				Reason:      "by assuming the role",
				ShortReason: "sts:AssumeRole",
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Destination < edges[j].Destination
	})

	return edges, nil
}
