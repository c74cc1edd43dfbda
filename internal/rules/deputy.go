package rules

import (
	"strings"

	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/policy/conditions"
	"github.com/pfrederiksen/privaudit/internal/simulator"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// confusedDeputyCatalog maps a resource service to the service principals
// and actions that must be guarded with an aws:SourceAccount condition.
// Without that guard, the trusted service can be tricked into acting on
// the resource on behalf of another account.
var confusedDeputyCatalog = map[string]map[string][]string{
	"s3": {
		"serverlessrepo.amazonaws.com": {"s3:GetObject"},
	},
}

// probeAccountID is a deliberately foreign account used when simulating a
// cross-account request: an account-scoped policy must NOT match it.
const probeAccountID = "000000000000"

// confusedDeputyFindings reports resource policies that grant a cataloged
// (service, action) pair without scoping the true source account of the
// request.
func confusedDeputyFindings(g *graph.Graph) ([]types.Finding, error) {
	type hit struct {
		resourceARN string
		service     string
		actions     string
	}

	var hits []hit
	probe := conditions.Context{"aws:SourceAccount": probeAccountID}

	for _, pol := range g.Policies() {
		if pol.Document == nil {
			continue
		}
		serviceActions, ok := confusedDeputyCatalog[types.ARNService(pol.ARN)]
		if !ok {
			continue
		}
		for service, actionList := range serviceActions {
			var available []string
			for _, action := range actionList {
				result, err := simulator.EvaluateResourcePolicy(
					service, g.AccountID(), pol.Document, action, pol.ARN, probe)
				if err != nil {
					logging.Warn("skipping unparseable resource policy", map[string]interface{}{
						"rule":     "confused-deputy",
						"resource": pol.ARN,
						"error":    err.Error(),
					})
					continue
				}
				if result == simulator.ResourcePolicyServiceMatch {
					available = append(available, action)
				}
			}
			if len(available) > 0 {
				hits = append(hits, hit{
					resourceARN: pol.ARN,
					service:     service,
					actions:     strings.Join(available, " | "),
				})
			}
		}
	}

	if len(hits) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Certain AWS services create and use resources in the customer's own account, " +
		"controlled by a resource policy granting access to the service. Some services require " +
		"the aws:SourceAccount condition context key to allow-list the true source of a request; " +
		"without it, the service can be made to access the resource on behalf of another " +
		"customer. The following services and resources could allow an external account to " +
		"potentially gain read or write access:\n\n")
	for _, h := range hits {
		b.WriteString("* With service " + h.service + ", the resource " + h.resourceARN +
			" for the action(s): " + h.actions + "\n")
	}

	return []types.Finding{{
		Title:    "Resources With A Potential Confused-Deputy Risk",
		Severity: types.SeverityMedium,
		Impact: "Depending on the affected resources and services, an attacker may be able to " +
			"execute read or write operations on the resources from another AWS account.",
		Description: b.String(),
		Recommendation: "Update the resource policy for all affected resources, and ensure that " +
			"all statements granting access to AWS services check against the aws:SourceAccount " +
			"condition context key when appropriate.",
	}}, nil
}
