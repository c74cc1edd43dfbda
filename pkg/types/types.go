package types

import (
	"strings"
	"time"
)

// Version is the tool version reported by the CLI and embedded in report
// provenance strings.
const Version = "0.3.0"

// NodeKind distinguishes IAM users from IAM roles. It is derived from the
// node's ARN, never stored.
type NodeKind string

const (
	NodeKindUser    NodeKind = "user"
	NodeKindRole    NodeKind = "role"
	NodeKindUnknown NodeKind = "unknown"
)

// Node is a single IAM user or role captured in an account snapshot.
// Nodes are treated as read-only for the whole duration of analysis.
type Node struct {
	ARN                string           `json:"Arn"`
	IsAdmin            bool             `json:"IsAdmin"`
	HasMFA             bool             `json:"HasMFA"`
	AccessKeyCount     int              `json:"AccessKeyCount,omitempty"`
	InstanceProfileIDs []string         `json:"InstanceProfileIds,omitempty"`
	TrustPolicy        *PolicyDocument  `json:"TrustPolicy,omitempty"`
	Policies           []PolicyDocument `json:"Policies,omitempty"`
	GroupPolicies      []PolicyDocument `json:"GroupPolicies,omitempty"`
}

// Kind returns user or role based on the resource segment of the ARN.
func (n *Node) Kind() NodeKind {
	switch {
	case strings.Contains(n.ARN, ":user/"):
		return NodeKindUser
	case strings.Contains(n.ARN, ":role/"):
		return NodeKindRole
	default:
		return NodeKindUnknown
	}
}

// Name returns the searchable short name of the node, e.g. "user/alice"
// for arn:aws:iam::123456789012:user/alice.
func (n *Node) Name() string {
	return ARNName(n.ARN)
}

// Edge is a precomputed, verified one-hop access capability: Source can
// obtain the access of Destination through the described mechanism. Edges
// are facts established by the graph builder; analysis only reads them.
type Edge struct {
	Source      string `json:"Source"`
	Destination string `json:"Destination"`
	Reason      string `json:"Reason"`
	ShortReason string `json:"ShortReason"`
}

// Describe renders the edge as a human-readable sentence.
func (e *Edge) Describe() string {
	return ARNName(e.Source) + " can access " + ARNName(e.Destination) + " " + e.Reason
}

// Policy is a standalone resource-based policy captured in the snapshot,
// such as an S3 bucket policy.
type Policy struct {
	ARN      string          `json:"Arn"`
	Name     string          `json:"Name"`
	Document *PolicyDocument `json:"Document"`
}

// PolicyDocument is a parsed IAM policy document.
type PolicyDocument struct {
	Version    string      `json:"Version"`
	ID         string      `json:"Id,omitempty"`
	Statements []Statement `json:"Statement"`
}

// Statement is a single statement in a policy document. Principal, Action
// and Resource keep the raw JSON shapes AWS allows (string or list);
// normalization happens at evaluation time so malformed clauses surface as
// errors instead of silently matching nothing.
type Statement struct {
	Sid       string                            `json:"Sid,omitempty"`
	Effect    Effect                            `json:"Effect"`
	Principal interface{}                       `json:"Principal,omitempty"`
	Action    interface{}                       `json:"Action,omitempty"`
	Resource  interface{}                       `json:"Resource,omitempty"`
	Condition map[string]map[string]interface{} `json:"Condition,omitempty"`
}

// Effect represents Allow or Deny.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Severity of a finding.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Finding is one risk identified by the rule engine. Findings are never
// mutated after creation.
type Finding struct {
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Impact         string   `json:"impact"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// Report is the ordered set of findings for one account, plus generation
// metadata. GeneratedAt serializes as RFC 3339 UTC.
type Report struct {
	AccountID   string    `json:"accountId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Findings    []Finding `json:"findings"`
	Source      string    `json:"source"`
}

// Snapshot is the graph builder's handoff: everything captured from one
// account at one point in time.
type Snapshot struct {
	AccountID   string
	CollectedAt time.Time
	Nodes       []*Node
	Edges       []*Edge
	Policies    []*Policy
}

// ARNName returns the resource portion of an ARN ("user/alice",
// "role/Admin"). Falls back to the full string for malformed input.
func ARNName(arn string) string {
	idx := strings.LastIndex(arn, ":")
	if idx < 0 || idx == len(arn)-1 {
		return arn
	}
	return arn[idx+1:]
}

// ARNAccountID extracts the account id field from an ARN, or "" if the ARN
// doesn't have one. ARN format: arn:partition:service:region:account:resource.
func ARNAccountID(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return parts[4]
}

// ARNService extracts the service field from an ARN ("iam", "s3").
func ARNService(arn string) string {
	parts := strings.SplitN(arn, ":", 4)
	if len(parts) < 4 {
		return ""
	}
	return parts[2]
}
