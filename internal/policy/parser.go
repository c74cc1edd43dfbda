package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// ErrMalformedClause is wrapped by clause-extraction errors so callers can
// distinguish policy-parse failures from all other evaluation errors.
var ErrMalformedClause = errors.New("malformed policy clause")

// Parse parses a (possibly URL-encoded) policy document string. AWS returns
// inline and trust policies URL-encoded; managed policy documents usually
// arrive decoded already.
func Parse(policyDoc string) (*types.PolicyDocument, error) {
	decoded, err := url.QueryUnescape(policyDoc)
	if err != nil {
		// If decode fails, assume it's already decoded
		decoded = policyDoc
	}

	var doc types.PolicyDocument
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	return &doc, nil
}

// MatchesAction checks if an action pattern matches a specific action.
// Supports AWS IAM action wildcards: *, s3:*, s3:Get*, iam:*User*, etc.
// Unknown action strings never match; there is no implicit wildcard.
func MatchesAction(pattern, action string) bool {
	if pattern == action {
		return true
	}
	if pattern == "*" {
		return true
	}

	// AWS action matching is case-insensitive
	pattern = strings.ToLower(pattern)
	action = strings.ToLower(action)

	g, err := glob.Compile(pattern)
	if err != nil {
		// If pattern is invalid, fall back to exact match
		return pattern == action
	}

	return g.Match(action)
}

// MatchesResource checks if a resource pattern matches a specific resource
// ARN. Supports AWS ARN wildcards: *, arn:aws:s3:::bucket/*, etc.
func MatchesResource(pattern, arn string) bool {
	if pattern == arn {
		return true
	}
	if pattern == "*" {
		return true
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return pattern == arn
	}

	return g.Match(arn)
}

// StringList normalizes a raw Action/Resource clause into a string slice.
// AWS policy JSON allows both "s3:GetObject" and ["s3:GetObject", ...].
// Anything else is a malformed clause and reported as an error rather than
// silently dropped.
func StringList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list entry %T is not a string", ErrMalformedClause, item)
			}
			result = append(result, s)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: unexpected clause type %T", ErrMalformedClause, v)
	}
}

// PrincipalClause is the normalized form of a statement's Principal block.
type PrincipalClause struct {
	Wildcard bool     // Principal: "*"
	AWS      []string // account ids, root ARNs, principal ARNs
	Services []string // service principals like lambda.amazonaws.com
}

// Principals normalizes a raw Principal clause. The clause may be the
// string "*", or a map with "AWS" / "Service" keys holding strings or
// lists.
func Principals(v interface{}) (*PrincipalClause, error) {
	clause := &PrincipalClause{}
	switch val := v.(type) {
	case nil:
		return clause, nil
	case string:
		if val == "*" {
			clause.Wildcard = true
			return clause, nil
		}
		clause.AWS = []string{val}
		return clause, nil
	case map[string]interface{}:
		for key, entry := range val {
			list, err := StringList(entry)
			if err != nil {
				return nil, fmt.Errorf("principal %q: %w", key, err)
			}
			switch key {
			case "AWS":
				clause.AWS = append(clause.AWS, list...)
			case "Service":
				clause.Services = append(clause.Services, list...)
			case "Federated", "CanonicalUser":
				// outside the audit's scope, ignored
			default:
				return nil, fmt.Errorf("%w: unknown principal key %q", ErrMalformedClause, key)
			}
		}
		return clause, nil
	default:
		return nil, fmt.Errorf("%w: unexpected principal type %T", ErrMalformedClause, v)
	}
}
