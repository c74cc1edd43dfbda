// Package simulator answers authorization questions about principals in a
// captured snapshot by locally reproducing the IAM policy evaluation
// semantics: explicit deny precedence, wildcard action/resource matching,
// and condition-key evaluation. No network calls are made.
package simulator

import (
	"fmt"

	"github.com/pfrederiksen/privaudit/internal/policy"
	"github.com/pfrederiksen/privaudit/internal/policy/conditions"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Decision is the outcome of evaluating a single authorization question.
type Decision string

const (
	// Allowed means a matching Allow statement's conditions were fully
	// satisfied and no matching Deny applied.
	Allowed Decision = "Allowed"
	// ImplicitlyDenied is the default-deny outcome: no matching statement
	// allowed the request.
	ImplicitlyDenied Decision = "ImplicitlyDenied"
	// ExplicitlyDenied means a matching Deny statement applied. Deny
	// always wins over any number of Allows.
	ExplicitlyDenied Decision = "ExplicitlyDenied"
)

// Result carries the decision plus condition diagnostics. MissingConditions
// lists context keys that, had they been supplied, could have flipped an
// Allow statement from unmet to satisfied. It is only populated when the
// decision is ImplicitlyDenied and the failure was purely due to absent
// context keys; callers use it to distinguish "allowed only with MFA" from
// "not allowed at all".
type Result struct {
	Decision          Decision
	MissingConditions []string
}

// Evaluate determines whether the principal is authorized to call action on
// resourceARN given the supplied request context. Statements are gathered
// from the principal's attached, inline and group-inherited policies.
// Malformed policy clauses surface as errors; the simulator never guesses a
// decision from unparseable input.
func Evaluate(node *types.Node, action, resourceARN string, condCtx conditions.Context) (Result, error) {
	type matched struct {
		stmt *types.Statement
	}

	var allows []matched
	var denies []matched

	docs := make([]types.PolicyDocument, 0, len(node.Policies)+len(node.GroupPolicies))
	docs = append(docs, node.Policies...)
	docs = append(docs, node.GroupPolicies...)

	for di := range docs {
		doc := &docs[di]
		for si := range doc.Statements {
			stmt := &doc.Statements[si]
			ok, err := statementMatches(stmt, action, resourceARN)
			if err != nil {
				return Result{}, fmt.Errorf("principal %s: %w", node.Name(), err)
			}
			if !ok {
				continue
			}
			if stmt.Effect == types.EffectDeny {
				denies = append(denies, matched{stmt})
			} else {
				allows = append(allows, matched{stmt})
			}
		}
	}

	// Deny precedence: a Deny whose conditions hold (or that carries no
	// conditions) short-circuits everything else.
	for _, m := range denies {
		outcome, err := conditions.Evaluate(m.stmt.Condition, condCtx)
		if err != nil {
			return Result{}, fmt.Errorf("principal %s: %w", node.Name(), err)
		}
		if outcome.Satisfied {
			return Result{Decision: ExplicitlyDenied}, nil
		}
	}

	var missing []string
	for _, m := range allows {
		outcome, err := conditions.Evaluate(m.stmt.Condition, condCtx)
		if err != nil {
			return Result{}, fmt.Errorf("principal %s: %w", node.Name(), err)
		}
		if outcome.Satisfied {
			return Result{Decision: Allowed}, nil
		}
		// A statement that failed only because context keys were absent
		// is flagged, not silently folded into the implicit deny.
		if !outcome.Mismatched && len(outcome.MissingKeys) > 0 {
			missing = appendUnique(missing, outcome.MissingKeys)
		}
	}

	return Result{Decision: ImplicitlyDenied, MissingConditions: missing}, nil
}

// EvaluateWithMFA answers "is the principal authorized, and does that
// authorization depend on MFA being present?". If the plain evaluation
// denies but re-evaluating with the MFA context keys injected allows, the
// grant exists but is MFA-gated (authorized=true, needsMFA=true). This is
// a deliberate reporting special case, kept out of Evaluate itself.
func EvaluateWithMFA(node *types.Node, action, resourceARN string, condCtx conditions.Context) (authorized, needsMFA bool, err error) {
	res, err := Evaluate(node, action, resourceARN, condCtx)
	if err != nil {
		return false, false, err
	}
	switch res.Decision {
	case Allowed:
		return true, false, nil
	case ExplicitlyDenied:
		return false, false, nil
	}

	mfaRelevant := false
	for _, key := range res.MissingConditions {
		if conditions.IsMFAKey(key) {
			mfaRelevant = true
			break
		}
	}
	if !mfaRelevant {
		return false, false, nil
	}

	res, err = Evaluate(node, action, resourceARN, condCtx.WithMFA())
	if err != nil {
		return false, false, err
	}
	if res.Decision == Allowed {
		return true, true, nil
	}
	return false, false, nil
}

// IsAdminCandidate reports whether the principal's effective permissions
// allow every action on every resource with no unmet condition. The graph
// builder runs this once per node and stores the answer as Node.IsAdmin.
func IsAdminCandidate(node *types.Node) (bool, error) {
	res, err := Evaluate(node, "*", "*", nil)
	if err != nil {
		return false, err
	}
	return res.Decision == Allowed, nil
}

func statementMatches(stmt *types.Statement, action, resourceARN string) (bool, error) {
	actions, err := policy.StringList(stmt.Action)
	if err != nil {
		return false, fmt.Errorf("action clause: %w", err)
	}
	if !anyPattern(actions, action, policy.MatchesAction) {
		return false, nil
	}

	// Trust policies and other resource-based statements omit Resource;
	// the statement then covers the resource it is attached to.
	if stmt.Resource == nil {
		return true, nil
	}

	resources, err := policy.StringList(stmt.Resource)
	if err != nil {
		return false, fmt.Errorf("resource clause: %w", err)
	}
	if !anyPattern(resources, resourceARN, policy.MatchesResource) {
		return false, nil
	}

	return true, nil
}

func anyPattern(patterns []string, value string, match func(pattern, value string) bool) bool {
	for _, p := range patterns {
		if match(p, value) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, keys []string) []string {
	for _, k := range keys {
		seen := false
		for _, existing := range dst {
			if existing == k {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, k)
		}
	}
	return dst
}
