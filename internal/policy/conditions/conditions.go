// Package conditions evaluates IAM policy condition blocks against a set of
// request context variables.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Context holds the request context variables supplied with an
// authorization query, keyed by condition context key.
type Context map[string]string

// Get performs a case-insensitive lookup, since AWS condition context keys
// are case-insensitive.
func (c Context) Get(key string) (string, bool) {
	if v, ok := c[key]; ok {
		return v, true
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// WithMFA returns a copy of the context with the MFA context keys set, used
// by the dedicated "allowed without MFA?" query.
func (c Context) WithMFA() Context {
	out := make(Context, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	out["aws:MultiFactorAuthPresent"] = "true"
	out["aws:MultiFactorAuthAge"] = "1"
	return out
}

// IsMFAKey reports whether key is one of the MFA-presence context keys.
func IsMFAKey(key string) bool {
	return strings.EqualFold(key, "aws:MultiFactorAuthPresent") ||
		strings.EqualFold(key, "aws:MultiFactorAuthAge")
}

// Outcome is the result of evaluating a full condition block.
type Outcome struct {
	// Satisfied is true when every clause passed.
	Satisfied bool
	// MissingKeys lists context keys that were required but absent. A
	// statement that failed only because of missing keys is a candidate
	// for "allowed if the condition were met" reporting.
	MissingKeys []string
	// Mismatched is true when at least one clause failed on a value that
	// WAS present in the context.
	Mismatched bool
}

// Evaluate checks a condition block against ctx. Every clause in the block
// must pass (AND across operators and keys, OR across expected values).
// Absent context keys fail the clause, never silently pass; the only
// exceptions are ...IfExists operators and the Null operator.
func Evaluate(block map[string]map[string]interface{}, ctx Context) (Outcome, error) {
	out := Outcome{Satisfied: true}
	if len(block) == 0 {
		return out, nil
	}

	for rawOp, clauses := range block {
		op, ifExists := splitIfExists(rawOp)
		for key, rawExpected := range clauses {
			expected, err := expectedValues(rawExpected)
			if err != nil {
				return Outcome{}, fmt.Errorf("condition %s/%s: %w", rawOp, key, err)
			}

			actual, present := ctx.Get(key)

			if op == "Null" {
				if !evalNull(expected, present) {
					out.Satisfied = false
					out.Mismatched = true
				}
				continue
			}

			if !present {
				if ifExists {
					continue
				}
				out.Satisfied = false
				out.MissingKeys = append(out.MissingKeys, key)
				continue
			}

			ok, err := evalOperator(op, actual, expected)
			if err != nil {
				return Outcome{}, fmt.Errorf("condition %s/%s: %w", rawOp, key, err)
			}
			if !ok {
				out.Satisfied = false
				out.Mismatched = true
			}
		}
	}

	return out, nil
}

func splitIfExists(op string) (string, bool) {
	if strings.HasSuffix(op, "IfExists") {
		return strings.TrimSuffix(op, "IfExists"), true
	}
	return op, false
}

func expectedValues(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case bool:
		return []string{strconv.FormatBool(val)}, nil
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}, nil
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			sub, err := expectedValues(item)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported condition value type %T", v)
	}
}

// evalNull implements the Null operator: expected "true" means the key must
// be absent, "false" means it must be present.
func evalNull(expected []string, present bool) bool {
	for _, e := range expected {
		wantAbsent := strings.EqualFold(e, "true")
		if wantAbsent != present {
			return true
		}
	}
	return false
}

func evalOperator(op, actual string, expected []string) (bool, error) {
	switch op {
	case "StringEquals":
		return anyMatch(expected, func(e string) bool { return actual == e }), nil
	case "StringNotEquals":
		return !anyMatch(expected, func(e string) bool { return actual == e }), nil
	case "StringEqualsIgnoreCase":
		return anyMatch(expected, func(e string) bool { return strings.EqualFold(actual, e) }), nil
	case "StringNotEqualsIgnoreCase":
		return !anyMatch(expected, func(e string) bool { return strings.EqualFold(actual, e) }), nil
	case "StringLike", "ArnLike":
		return anyMatch(expected, func(e string) bool { return wildcardMatch(e, actual) }), nil
	case "StringNotLike", "ArnNotLike":
		return !anyMatch(expected, func(e string) bool { return wildcardMatch(e, actual) }), nil
	case "ArnEquals":
		return anyMatch(expected, func(e string) bool { return actual == e }), nil
	case "ArnNotEquals":
		return !anyMatch(expected, func(e string) bool { return actual == e }), nil
	case "Bool":
		return anyMatch(expected, func(e string) bool { return strings.EqualFold(actual, e) }), nil
	case "NumericEquals", "NumericNotEquals", "NumericLessThan",
		"NumericLessThanEquals", "NumericGreaterThan", "NumericGreaterThanEquals":
		return evalNumeric(op, actual, expected)
	default:
		return false, fmt.Errorf("unsupported condition operator %q", op)
	}
}

func evalNumeric(op, actual string, expected []string) (bool, error) {
	a, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return false, fmt.Errorf("non-numeric context value %q", actual)
	}
	for _, e := range expected {
		b, err := strconv.ParseFloat(e, 64)
		if err != nil {
			return false, fmt.Errorf("non-numeric expected value %q", e)
		}
		var ok bool
		switch op {
		case "NumericEquals":
			ok = a == b
		case "NumericNotEquals":
			ok = a != b
		case "NumericLessThan":
			ok = a < b
		case "NumericLessThanEquals":
			ok = a <= b
		case "NumericGreaterThan":
			ok = a > b
		case "NumericGreaterThanEquals":
			ok = a >= b
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func anyMatch(expected []string, match func(string) bool) bool {
	for _, e := range expected {
		if match(e) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, value string) bool {
	if pattern == value || pattern == "*" {
		return true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return pattern == value
	}
	return g.Match(value)
}
