package types

import (
	"encoding/json"
	"testing"
)

func TestNodeKind(t *testing.T) {
	tests := []struct {
		arn  string
		want NodeKind
	}{
		{"arn:aws:iam::123456789012:user/alice", NodeKindUser},
		{"arn:aws:iam::123456789012:user/path/nested", NodeKindUser},
		{"arn:aws:iam::123456789012:role/admin", NodeKindRole},
		{"arn:aws:iam::123456789012:group/devs", NodeKindUnknown},
		{"", NodeKindUnknown},
	}

	for _, tt := range tests {
		n := &Node{ARN: tt.arn}
		if got := n.Kind(); got != tt.want {
			t.Errorf("Kind(%q) = %v, want %v", tt.arn, got, tt.want)
		}
	}
}

func TestARNName(t *testing.T) {
	tests := []struct {
		arn  string
		want string
	}{
		{"arn:aws:iam::123456789012:user/alice", "user/alice"},
		{"arn:aws:iam::123456789012:role/admin", "role/admin"},
		{"not-an-arn", "not-an-arn"},
	}

	for _, tt := range tests {
		if got := ARNName(tt.arn); got != tt.want {
			t.Errorf("ARNName(%q) = %q, want %q", tt.arn, got, tt.want)
		}
	}
}

func TestARNAccountID(t *testing.T) {
	if got := ARNAccountID("arn:aws:iam::123456789012:user/alice"); got != "123456789012" {
		t.Errorf("ARNAccountID() = %q, want 123456789012", got)
	}
	if got := ARNAccountID("garbage"); got != "" {
		t.Errorf("ARNAccountID(garbage) = %q, want empty", got)
	}
}

func TestARNService(t *testing.T) {
	if got := ARNService("arn:aws:s3:::bucket"); got != "s3" {
		t.Errorf("ARNService() = %q, want s3", got)
	}
	if got := ARNService("arn:aws:iam::123456789012:role/x"); got != "iam" {
		t.Errorf("ARNService() = %q, want iam", got)
	}
}

func TestEdgeDescribe(t *testing.T) {
	e := &Edge{
		Source:      "arn:aws:iam::123456789012:user/alice",
		Destination: "arn:aws:iam::123456789012:role/admin",
		Reason:      "by assuming the role",
		ShortReason: "sts:AssumeRole",
	}

	want := "user/alice can access role/admin by assuming the role"
	if got := e.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestFindingJSONTags(t *testing.T) {
	data, err := json.Marshal(Finding{
		Title:    "t",
		Severity: SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"title", "severity", "impact", "description", "recommendation"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("serialized finding missing key %q", key)
		}
	}
}

func TestPolicyDocumentRoundTrip(t *testing.T) {
	raw := `{
		"Version": "2012-10-17",
		"Statement": [{
			"Sid": "S1",
			"Effect": "Allow",
			"Action": ["s3:GetObject"],
			"Resource": "*",
			"Condition": {"Bool": {"aws:MultiFactorAuthPresent": "true"}}
		}]
	}`

	var doc PolicyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(doc.Statements) != 1 {
		t.Fatalf("len(Statements) = %d, want 1", len(doc.Statements))
	}
	stmt := doc.Statements[0]
	if stmt.Effect != EffectAllow {
		t.Errorf("Effect = %v, want Allow", stmt.Effect)
	}
	if stmt.Condition["Bool"]["aws:MultiFactorAuthPresent"] != "true" {
		t.Error("condition block not preserved")
	}
}
