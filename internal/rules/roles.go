package rules

import (
	"strings"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/simulator"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// adminRolesAssumableByService collects administrative roles whose trust
// policy lets the given service principal assume them. Roles with no trust
// policy are treated as not applicable, not as failures.
func adminRolesAssumableByService(g *graph.Graph, service string) []*types.Node {
	var affected []*types.Node
	for _, node := range g.Nodes() {
		if node.Kind() != types.NodeKindRole || !node.IsAdmin || node.TrustPolicy == nil {
			continue
		}
		result, err := simulator.EvaluateResourcePolicy(
			service, types.ARNAccountID(node.ARN), node.TrustPolicy, "sts:AssumeRole", node.ARN, nil)
		if err != nil {
			logging.Warn("skipping role with unparseable trust policy", map[string]interface{}{
				"service": service,
				"role":    node.ARN,
				"error":   err.Error(),
			})
			continue
		}
		if result == simulator.ResourcePolicyServiceMatch {
			affected = append(affected, node)
		}
	}
	return affected
}

func roleListing(affected []*types.Node) string {
	var b strings.Builder
	for _, node := range affected {
		b.WriteString("* " + node.Name() + "\n")
	}
	return b.String()
}

// lambdaRoleFindings reports administrative roles that Lambda functions
// can execute with.
func lambdaRoleFindings(g *graph.Graph) ([]types.Finding, error) {
	affected := adminRolesAssumableByService(g, "lambda.amazonaws.com")
	if len(affected) == 0 {
		return nil, nil
	}

	title := "IAM Role Available to Lambda Functions Has Administrative Privileges"
	if len(affected) > 1 {
		title = "IAM Roles Available to Lambda Functions Have Administrative Privileges"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityMedium,
		Impact: "If an attacker can inject code or commands into a function, or if a " +
			"lower-privileged principal can alter the function, the account as a whole could be " +
			"compromised.",
		Description: "Lambda functions can be assigned an IAM role to use during execution, " +
			"giving the function access to call the AWS API with that role's permissions. If the " +
			"function is compromised, the attacker can make API calls with the role's permissions. " +
			"The following IAM roles have administrative privileges and can be passed to Lambda " +
			"functions:\n\n" + roleListing(affected),
		Recommendation: "Reduce the scope of permissions attached to the noted IAM roles.",
	}}, nil
}

// cloudFormationRoleFindings reports administrative roles usable by
// CloudFormation stacks.
func cloudFormationRoleFindings(g *graph.Graph) ([]types.Finding, error) {
	affected := adminRolesAssumableByService(g, "cloudformation.amazonaws.com")
	if len(affected) == 0 {
		return nil, nil
	}

	title := "IAM Role Available to CloudFormation Stacks Has Administrative Privileges"
	if len(affected) > 1 {
		title = "IAM Roles Available to CloudFormation Stacks Have Administrative Privileges"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityLow,
		Impact: "If an attacker has the right permissions in the account, they can grant " +
			"themselves administrative access via CloudFormation to compromise the account.",
		Description: "CloudFormation stacks can be given an IAM role to create the resources " +
			"defined in their template. If that role has administrator access and an attacker can " +
			"make the right CloudFormation API calls, they can use the role to escalate privileges. " +
			"The following IAM roles can be used in CloudFormation and have administrative " +
			"privileges:\n\n" + roleListing(affected),
		Recommendation: "Reduce the scope of permissions attached to the noted IAM roles.",
	}}, nil
}

// instanceProfileFindings reports administrative roles attached to EC2
// instance profiles.
func instanceProfileFindings(g *graph.Graph) ([]types.Finding, error) {
	var affected []*types.Node
	for _, node := range g.Nodes() {
		if node.Kind() == types.NodeKindRole && node.IsAdmin && len(node.InstanceProfileIDs) > 0 {
			affected = append(affected, node)
		}
	}

	if len(affected) == 0 {
		return nil, nil
	}

	title := "Instance Profile Has Administrator Privileges"
	if len(affected) > 1 {
		title = "Instance Profiles Have Administrator Privileges"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityHigh,
		Impact: "If an instance with the noted instance profiles is compromised, then the AWS " +
			"account as a whole is at risk of compromise.",
		Description: "EC2 instances can be given an instance profile, which is associated with " +
			"an IAM role and grants access to that role's permissions. Because EC2 instances are " +
			"at a higher risk of exposure and compromise, they should not have access to " +
			"administrative privileges. The following IAM roles have administrative permissions " +
			"and are associated with an instance profile:\n\n" + roleListing(affected),
		Recommendation: "Reduce the scope of permissions attached to the noted instance profiles.",
	}}, nil
}

// ssmLocalPrivescFindings reports instance-profile roles whose permissions
// allow SSM session or command execution, a local host privilege
// escalation and lateral movement risk since the SSM agent runs as
// root/SYSTEM.
func ssmLocalPrivescFindings(g *graph.Graph) ([]types.Finding, error) {
	var affected []*types.Node
	for _, node := range g.Nodes() {
		if node.Kind() != types.NodeKindRole || len(node.InstanceProfileIDs) == 0 {
			continue
		}
		ok, err := hasUnsafeSSMGrants(node)
		if err != nil {
			logging.Warn("skipping principal with unparseable policy", map[string]interface{}{
				"rule":      "ssm-local-privesc",
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

	title := "IAM Role With Unsafe SSM Permissions"
	if len(affected) > 1 {
		title = "IAM Roles With Unsafe SSM Permissions"
	}

	return []types.Finding{{
		Title:    title,
		Severity: types.SeverityMedium,
		Impact: "If an attacker gains access to an instance with the unsafe permissions, they " +
			"could escalate privileges on its current host or compromise other hosts.",
		Description: "An instance profile can be used to access the AWS API with the permissions " +
			"of its IAM role. If the role can call SSM actions such as ssm:SendCommand or " +
			"ssm:StartSession, the instance profile can be used to invoke commands on other " +
			"instances or itself. Because the SSM agent runs with the highest permissions on its " +
			"host (root or SYSTEM), this is a way for attackers to pivot between instances or " +
			"escalate privileges on the local machine. The following IAM roles are attached to at " +
			"least one instance profile and have permissions with the aforementioned risk:\n\n" +
			roleListing(affected),
		Recommendation: "Reduce the scope of permissions attached to the noted IAM roles.",
	}}, nil
}

func hasUnsafeSSMGrants(node *types.Node) (bool, error) {
	res, err := simulator.Evaluate(node, "ssmmessages:*", "*", nil)
	if err != nil {
		return false, err
	}
	if res.Decision != simulator.Allowed {
		return false, nil
	}
	for _, action := range []string{"ssm:SendCommand", "ssm:StartSession"} {
		res, err := simulator.Evaluate(node, action, "*", nil)
		if err != nil {
			return false, err
		}
		if res.Decision == simulator.Allowed {
			return true, nil
		}
	}
	return false, nil
}
