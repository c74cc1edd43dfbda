package collector

import (
	"testing"

	"github.com/pfrederiksen/privaudit/internal/policy"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

func doc(t *testing.T, raw string) types.PolicyDocument {
	t.Helper()
	parsed, err := policy.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return *parsed
}

func docPtr(t *testing.T, raw string) *types.PolicyDocument {
	t.Helper()
	d := doc(t, raw)
	return &d
}

const wildcardPolicy = `{
	"Version": "2012-10-17",
	"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]
}`

func TestMarkAdmins(t *testing.T) {
	nodes := []*types.Node{
		{
			ARN:      "arn:aws:iam::123456789012:user/root-like",
			Policies: []types.PolicyDocument{doc(t, wildcardPolicy)},
		},
		{
			ARN: "arn:aws:iam::123456789012:user/reader",
			Policies: []types.PolicyDocument{doc(t, `{
				"Version": "2012-10-17",
				"Statement": [{"Effect": "Allow", "Action": "s3:Get*", "Resource": "*"}]
			}`)},
		},
	}

	if err := markAdmins(nodes); err != nil {
		t.Fatalf("markAdmins() error = %v", err)
	}
	if !nodes[0].IsAdmin {
		t.Error("wildcard principal not marked admin")
	}
	if nodes[1].IsAdmin {
		t.Error("scoped principal marked admin")
	}
}

func TestBuildEdges(t *testing.T) {
	assumePolicy := doc(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Action": "sts:AssumeRole", "Resource": "*"}]
	}`)
	trust := docPtr(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow",
			"Principal": {"AWS": "arn:aws:iam::123456789012:root"},
			"Action": "sts:AssumeRole"}]
	}`)

	nodes := []*types.Node{
		{
			ARN:      "arn:aws:iam::123456789012:user/alice",
			Policies: []types.PolicyDocument{assumePolicy},
		},
		{
			// No sts:AssumeRole grant: trust alone is not enough.
			ARN: "arn:aws:iam::123456789012:user/bob",
		},
		{
			ARN:         "arn:aws:iam::123456789012:role/target",
			TrustPolicy: trust,
		},
	}

	edges, err := buildEdges("123456789012", nodes)
	if err != nil {
		t.Fatalf("buildEdges() error = %v", err)
	}

	if len(edges) != 1 {
		t.Fatalf("len(edges) = %d, want 1", len(edges))
	}
	e := edges[0]
	if e.Source != "arn:aws:iam::123456789012:user/alice" {
		t.Errorf("edge source = %s", e.Source)
	}
	if e.Destination != "arn:aws:iam::123456789012:role/target" {
		t.Errorf("edge destination = %s", e.Destination)
	}
	if e.ShortReason != "sts:AssumeRole" {
		t.Errorf("edge short reason = %s", e.ShortReason)
	}
}

func TestBuildEdgesRestrictiveTrust(t *testing.T) {
	assumePolicy := doc(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Action": "sts:AssumeRole", "Resource": "*"}]
	}`)
	foreignTrust := docPtr(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow",
			"Principal": {"AWS": "arn:aws:iam::999999999999:root"},
			"Action": "sts:AssumeRole"}]
	}`)

	nodes := []*types.Node{
		{
			ARN:      "arn:aws:iam::123456789012:user/alice",
			Policies: []types.PolicyDocument{assumePolicy},
		},
		{
			ARN:         "arn:aws:iam::123456789012:role/foreign-only",
			TrustPolicy: foreignTrust,
		},
	}

	edges, err := buildEdges("123456789012", nodes)
	if err != nil {
		t.Fatalf("buildEdges() error = %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("len(edges) = %d, want 0 for a foreign-only trust policy", len(edges))
	}
}

func TestBuildEdgesNoSelfEdges(t *testing.T) {
	trust := docPtr(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Principal": "*", "Action": "sts:AssumeRole"}]
	}`)
	nodes := []*types.Node{
		{
			ARN:         "arn:aws:iam::123456789012:role/self",
			TrustPolicy: trust,
			Policies:    []types.PolicyDocument{doc(t, wildcardPolicy)},
		},
	}

	edges, err := buildEdges("123456789012", nodes)
	if err != nil {
		t.Fatalf("buildEdges() error = %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("self edge produced: %+v", edges)
	}
}

func TestFinalize(t *testing.T) {
	snap := &types.Snapshot{
		AccountID: "123456789012",
		Nodes: []*types.Node{
			{
				ARN:      "arn:aws:iam::123456789012:user/alice",
				Policies: []types.PolicyDocument{doc(t, wildcardPolicy)},
			},
			{
				ARN: "arn:aws:iam::123456789012:role/open",
				TrustPolicy: docPtr(t, `{
					"Version": "2012-10-17",
					"Statement": [{"Effect": "Allow",
						"Principal": {"AWS": "123456789012"},
						"Action": "sts:AssumeRole"}]
				}`),
			},
		},
	}

	if err := Finalize(snap); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !snap.Nodes[0].IsAdmin {
		t.Error("Finalize did not mark admins")
	}
	if len(snap.Edges) != 1 {
		t.Fatalf("len(Edges) = %d, want 1", len(snap.Edges))
	}
	if snap.Edges[0].Source != snap.Nodes[0].ARN || snap.Edges[0].Destination != snap.Nodes[1].ARN {
		t.Errorf("unexpected edge %+v", snap.Edges[0])
	}
}
