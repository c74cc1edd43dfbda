package simulator

import (
	"fmt"
	"strings"

	"github.com/pfrederiksen/privaudit/internal/policy"
	"github.com/pfrederiksen/privaudit/internal/policy/conditions"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// ResourcePolicyResult classifies how a resource-based policy (trust
// policy, bucket policy, ...) answers a request from a given actor.
type ResourcePolicyResult string

const (
	// ResourcePolicyServiceMatch: a statement's Service principal matches
	// the querying service and all action/resource/condition clauses pass.
	ResourcePolicyServiceMatch ResourcePolicyResult = "ServiceMatch"
	// ResourcePolicyAccountMatch: an AWS principal entry from the querying
	// account matches and all other clauses pass.
	ResourcePolicyAccountMatch ResourcePolicyResult = "AccountMatch"
	// ResourcePolicyExplicitDeny: a matching Deny statement applies.
	ResourcePolicyExplicitDeny ResourcePolicyResult = "ExplicitDeny"
	// ResourcePolicyNeutral: the policy says nothing about this request.
	ResourcePolicyNeutral ResourcePolicyResult = "Neutral"
)

// EvaluateResourcePolicy evaluates a resource-based policy for a request
// from actor. The actor is either a service principal such as
// "lambda.amazonaws.com" or an account-scoped identity (account id or
// principal ARN); accountID is the account owning the resource. Used for
// trust-policy checks (who may assume a role) and confused-deputy checks.
func EvaluateResourcePolicy(actor, accountID string, doc *types.PolicyDocument, action, resourceARN string, condCtx conditions.Context) (ResourcePolicyResult, error) {
	if doc == nil {
		return ResourcePolicyNeutral, nil
	}

	result := ResourcePolicyNeutral

	for si := range doc.Statements {
		stmt := &doc.Statements[si]

		ok, err := statementMatches(stmt, action, resourceARN)
		if err != nil {
			return ResourcePolicyNeutral, fmt.Errorf("resource policy: %w", err)
		}
		if !ok {
			continue
		}

		clause, err := policy.Principals(stmt.Principal)
		if err != nil {
			return ResourcePolicyNeutral, fmt.Errorf("resource policy: %w", err)
		}
		match := principalMatch(clause, actor, accountID)
		if match == principalNoMatch {
			continue
		}

		outcome, err := conditions.Evaluate(stmt.Condition, condCtx)
		if err != nil {
			return ResourcePolicyNeutral, fmt.Errorf("resource policy: %w", err)
		}
		if !outcome.Satisfied {
			continue
		}

		if stmt.Effect == types.EffectDeny {
			// Deny wins over any match found so far or later.
			return ResourcePolicyExplicitDeny, nil
		}

		switch match {
		case principalServiceMatch:
			result = ResourcePolicyServiceMatch
		case principalAccountMatch:
			if result == ResourcePolicyNeutral {
				result = ResourcePolicyAccountMatch
			}
		}
	}

	return result, nil
}

type principalMatchKind int

const (
	principalNoMatch principalMatchKind = iota
	principalAccountMatch
	principalServiceMatch
)

// IsServicePrincipal reports whether the actor string names an AWS service
// principal rather than an account identity.
func IsServicePrincipal(actor string) bool {
	return strings.HasSuffix(actor, ".amazonaws.com")
}

func principalMatch(clause *policy.PrincipalClause, actor, accountID string) principalMatchKind {
	if IsServicePrincipal(actor) {
		if clause.Wildcard {
			return principalServiceMatch
		}
		for _, svc := range clause.Services {
			if strings.EqualFold(svc, actor) {
				return principalServiceMatch
			}
		}
		return principalNoMatch
	}

	if clause.Wildcard {
		return principalAccountMatch
	}

	actorAccount := actor
	if strings.HasPrefix(actor, "arn:") {
		actorAccount = types.ARNAccountID(actor)
	}

	for _, entry := range clause.AWS {
		switch {
		case entry == actor:
			return principalAccountMatch
		case entry == actorAccount:
			return principalAccountMatch
		case strings.HasPrefix(entry, "arn:") && types.ARNAccountID(entry) == actorAccount && strings.HasSuffix(entry, ":root"):
			return principalAccountMatch
		}
	}
	return principalNoMatch
}
