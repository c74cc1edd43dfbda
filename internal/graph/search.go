package graph

import "github.com/pfrederiksen/privaudit/pkg/types"

// FindEscalationPath searches for a chain of access edges from node to any
// administrative node. Admin nodes are skipped outright (no escalation
// needed). The search is a breadth-first walk over the stable outbound
// order, so the returned path is the first one found by that order:
// deterministic, not necessarily shortest in any other sense. Each node is
// visited at most once, which bounds the search to the finite edge set.
func FindEscalationPath(g *Graph, node *types.Node) (bool, []*types.Edge) {
	if node.IsAdmin {
		return false, nil
	}

	type item struct {
		arn  string
		path []*types.Edge
	}

	visited := map[string]bool{node.ARN: true}
	queue := []item{{arn: node.ARN}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, edge := range g.Outbound(cur.arn) {
			if visited[edge.Destination] {
				continue
			}
			dst, ok := g.Node(edge.Destination)
			if !ok {
				continue
			}

			path := make([]*types.Edge, 0, len(cur.path)+1)
			path = append(path, cur.path...)
			path = append(path, edge)

			if dst.IsAdmin {
				return true, path
			}

			visited[edge.Destination] = true
			queue = append(queue, item{arn: edge.Destination, path: path})
		}
	}

	return false, nil
}

// FindCycle looks for a circular access chain origin -> ... -> origin using
// a restricted single-path depth-first search: at each node only the first
// unexplored successor is tried, and a node marked explored is never
// revisited. This can miss cycles reachable only via a non-first branch;
// that restriction is intentional and kept for parity with the reference
// behavior. Administrative nodes are never used as origins.
//
// The returned slice is the path stack, origin first; the cycle closes back
// to the origin (rendered as origin -> ... -> origin). Every node appears
// at most once.
func FindCycle(g *Graph, origin *types.Node) ([]*types.Node, bool) {
	if origin.IsAdmin {
		return nil, false
	}

	stack := []*types.Node{origin}
	explored := map[string]bool{}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		out := g.Outbound(cur.ARN)

		closes := false
		for _, edge := range out {
			if edge.Destination == origin.ARN {
				closes = true
				break
			}
		}
		if closes {
			return stack, true
		}

		var next *types.Node
		for _, edge := range out {
			if explored[edge.Destination] || edge.Destination == cur.ARN {
				continue
			}
			if n, ok := g.Node(edge.Destination); ok {
				next = n
				break
			}
		}

		if next == nil {
			// Dead end: marking the node explored on the way out is what
			// guarantees termination even in a fully connected graph.
			explored[cur.ARN] = true
			stack = stack[:len(stack)-1]
			continue
		}

		explored[cur.ARN] = true
		stack = append(stack, next)
	}

	return nil, false
}
