package rules

import (
	"strings"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/simulator"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// sensitiveActions are mutating IAM/STS calls an administrative user with
// access keys should not be able to make without a second factor.
var sensitiveActions = []string{
	"iam:CreateUser",
	"iam:CreateRole",
	"iam:CreateGroup",
	"iam:PutUserPolicy",
	"iam:PutRolePolicy",
	"iam:PutGroupPolicy",
	"iam:AttachUserPolicy",
	"iam:AttachRolePolicy",
	"iam:AttachGroupPolicy",
	"sts:AssumeRole",
}

// adminUsersWithoutMFAFindings reports administrative users with no MFA
// device configured.
func adminUsersWithoutMFAFindings(g *graph.Graph) ([]types.Finding, error) {
	var affected []*types.Node
	for _, node := range g.Nodes() {
		if node.Kind() == types.NodeKindUser && node.IsAdmin && !node.HasMFA {
			affected = append(affected, node)
		}
	}

	if len(affected) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("IAM users can be assigned a device for multi-factor authentication (MFA). " +
		"Any IAM user with administrative privileges should be configured to have one. " +
		"The following IAM users with administrative privileges do not have an MFA device configured:\n\n")
	for _, node := range affected {
		b.WriteString("* " + node.Name() + "\n")
	}

	return []types.Finding{{
		Title:    "IAM Users With Administrative Permissions But No MFA Device",
		Severity: types.SeverityMedium,
		Impact: "If an attacker gains access to any of the noted IAM users, there is no secondary " +
			"layer of protection in place to prevent the account from being compromised.",
		Description:    b.String(),
		Recommendation: "Assign an MFA device to each of the noted IAM users.",
	}}, nil
}

// mfaSensitiveActionFindings reports administrative users that hold access
// keys and can call sensitive mutating actions without an MFA-gated grant.
func mfaSensitiveActionFindings(g *graph.Graph) ([]types.Finding, error) {
	var affected []*types.Node
	for _, node := range g.Nodes() {
		if node.Kind() != types.NodeKindUser || !node.IsAdmin || node.AccessKeyCount == 0 {
			continue
		}
		ok, err := canCallWithoutMFA(node, sensitiveActions)
		if err != nil {
			// A principal with unparseable policies is skipped; the rule
			// still reports on the rest of the account.
			logging.Warn("skipping principal with unparseable policy", map[string]interface{}{
				"rule":      "mfa-sensitive-actions",
				"principal": node.ARN,
				"error":     err.Error(),
			})
			continue
		}
		if ok {
			affected = append(affected, node)
		}
	}

	if len(affected) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Unless a specific IAM policy requires it, an IAM user does not need to provide " +
		"a second factor of authentication when making API calls with access keys. The following " +
		"administrative IAM users have at least one set of access keys, and can call sensitive " +
		"actions to alter permissions or add principals without using a second factor of " +
		"authentication:\n\n")
	for _, node := range affected {
		b.WriteString("* " + node.Name() + "\n")
	}

	title := "Administrative IAM User Can Call Sensitive Actions Without MFA"
	if len(affected) > 1 {
		title = "Administrative IAM Users Can Call Sensitive Actions Without MFA"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityMedium,
		Impact: "An administrative IAM user is able to call sensitive actions, such as creating " +
			"more principals or modifying permissions, without using MFA.",
		Description: b.String(),
		Recommendation: "Implement and attach an IAM policy to the noted users that rejects " +
			"requests when MFA is not used.",
	}}, nil
}

// canCallWithoutMFA is true when at least one of actions is authorized for
// the node with no MFA requirement attached to the grant.
func canCallWithoutMFA(node *types.Node, actions []string) (bool, error) {
	for _, action := range actions {
		authorized, needsMFA, err := simulator.EvaluateWithMFA(node, action, "*", nil)
		if err != nil {
			return false, err
		}
		if authorized && !needsMFA {
			return true, nil
		}
	}
	return false, nil
}
