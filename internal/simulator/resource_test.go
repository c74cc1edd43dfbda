package simulator

import (
	"testing"

	"github.com/pfrederiksen/privaudit/internal/policy/conditions"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

func trustPolicy(t *testing.T, doc string) *types.PolicyDocument {
	t.Helper()
	parsed := mustParse(t, doc)
	return &parsed
}

func TestEvaluateResourcePolicyServiceMatch(t *testing.T) {
	doc := trustPolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow",
			"Principal": {"Service": "lambda.amazonaws.com"},
			"Action": "sts:AssumeRole", "Resource": "*"}]
	}`)

	result, err := EvaluateResourcePolicy(
		"lambda.amazonaws.com", "123456789012", doc,
		"sts:AssumeRole", "arn:aws:iam::123456789012:role/worker", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyServiceMatch {
		t.Errorf("result = %v, want ServiceMatch", result)
	}

	// A different service gets nothing.
	result, err = EvaluateResourcePolicy(
		"ec2.amazonaws.com", "123456789012", doc,
		"sts:AssumeRole", "arn:aws:iam::123456789012:role/worker", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyNeutral {
		t.Errorf("result = %v, want Neutral for non-matching service", result)
	}
}

func TestEvaluateResourcePolicyAccountMatch(t *testing.T) {
	doc := trustPolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow",
			"Principal": {"AWS": "arn:aws:iam::123456789012:root"},
			"Action": "sts:AssumeRole", "Resource": "*"}]
	}`)

	tests := []struct {
		name  string
		actor string
		want  ResourcePolicyResult
	}{
		{"root ARN admits same-account user", "arn:aws:iam::123456789012:user/alice", ResourcePolicyAccountMatch},
		{"root ARN admits account id actor", "123456789012", ResourcePolicyAccountMatch},
		{"foreign account does not match", "arn:aws:iam::999999999999:user/eve", ResourcePolicyNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateResourcePolicy(
				tt.actor, "123456789012", doc,
				"sts:AssumeRole", "arn:aws:iam::123456789012:role/worker", nil)
			if err != nil {
				t.Fatalf("EvaluateResourcePolicy() error = %v", err)
			}
			if result != tt.want {
				t.Errorf("result = %v, want %v", result, tt.want)
			}
		})
	}
}

func TestEvaluateResourcePolicyExplicitDeny(t *testing.T) {
	doc := trustPolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [
			{"Effect": "Allow", "Principal": {"AWS": "123456789012"},
			 "Action": "sts:AssumeRole", "Resource": "*"},
			{"Effect": "Deny", "Principal": "*",
			 "Action": "sts:AssumeRole", "Resource": "*"}
		]
	}`)

	result, err := EvaluateResourcePolicy(
		"arn:aws:iam::123456789012:user/alice", "123456789012", doc,
		"sts:AssumeRole", "arn:aws:iam::123456789012:role/worker", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyExplicitDeny {
		t.Errorf("result = %v, want ExplicitDeny", result)
	}
}

func TestEvaluateResourcePolicyServiceOutranksAccount(t *testing.T) {
	doc := trustPolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Principal": "*",
			"Action": "s3:GetObject", "Resource": "arn:aws:s3:::data/*"}]
	}`)

	// Wildcard principal: a service actor classifies as ServiceMatch,
	// an account actor as AccountMatch.
	result, err := EvaluateResourcePolicy(
		"serverlessrepo.amazonaws.com", "123456789012", doc,
		"s3:GetObject", "arn:aws:s3:::data/app.zip", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyServiceMatch {
		t.Errorf("result = %v, want ServiceMatch", result)
	}

	result, err = EvaluateResourcePolicy(
		"123456789012", "123456789012", doc,
		"s3:GetObject", "arn:aws:s3:::data/app.zip", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyAccountMatch {
		t.Errorf("result = %v, want AccountMatch", result)
	}
}

func TestEvaluateResourcePolicySourceAccountGuard(t *testing.T) {
	doc := trustPolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow",
			"Principal": {"Service": "serverlessrepo.amazonaws.com"},
			"Action": "s3:GetObject", "Resource": "arn:aws:s3:::data/*",
			"Condition": {"StringEquals": {"aws:SourceAccount": "123456789012"}}}]
	}`)

	// The guard holds: a foreign SourceAccount fails the condition.
	result, err := EvaluateResourcePolicy(
		"serverlessrepo.amazonaws.com", "123456789012", doc,
		"s3:GetObject", "arn:aws:s3:::data/app.zip",
		conditions.Context{"aws:SourceAccount": "000000000000"})
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyNeutral {
		t.Errorf("result = %v, want Neutral (guarded statement)", result)
	}

	// The legitimate source account is admitted.
	result, err = EvaluateResourcePolicy(
		"serverlessrepo.amazonaws.com", "123456789012", doc,
		"s3:GetObject", "arn:aws:s3:::data/app.zip",
		conditions.Context{"aws:SourceAccount": "123456789012"})
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyServiceMatch {
		t.Errorf("result = %v, want ServiceMatch", result)
	}
}

func TestEvaluateResourcePolicyNilDocument(t *testing.T) {
	result, err := EvaluateResourcePolicy(
		"lambda.amazonaws.com", "123456789012", nil, "sts:AssumeRole", "*", nil)
	if err != nil {
		t.Fatalf("EvaluateResourcePolicy() error = %v", err)
	}
	if result != ResourcePolicyNeutral {
		t.Errorf("result = %v, want Neutral for nil document", result)
	}
}

func TestIsServicePrincipal(t *testing.T) {
	if !IsServicePrincipal("lambda.amazonaws.com") {
		t.Error("lambda.amazonaws.com should be a service principal")
	}
	if IsServicePrincipal("arn:aws:iam::123456789012:user/alice") {
		t.Error("a user ARN is not a service principal")
	}
	if IsServicePrincipal("123456789012") {
		t.Error("an account id is not a service principal")
	}
}
