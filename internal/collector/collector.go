// Package collector is the graph builder: it crawls the account's IAM
// configuration and assembles the snapshot the analysis core runs over.
// Everything downstream of the produced snapshot is offline.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/policy"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Collector handles fetching IAM data from AWS.
type Collector struct {
	iamClient *iam.Client
	stsClient *sts.Client
	s3Client  *s3.Client
}

// New creates a Collector using the default credential chain.
func New(ctx context.Context, region, profile string) (*Collector, error) {
	var opts []func(*config.LoadOptions) error

	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	// IAM is a global service, default to us-east-1 if no region specified
	if region == "" {
		region = "us-east-1"
	}
	opts = append(opts, config.WithRegion(region))

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Collector{
		iamClient: iam.NewFromConfig(cfg),
		stsClient: sts.NewFromConfig(cfg),
		s3Client:  s3.NewFromConfig(cfg),
	}, nil
}

// Collect crawls the account and returns a finalized snapshot: nodes with
// their policies and attributes, admin flags precomputed, and assume-role
// edges derived and vetted through the authorization simulator.
func (c *Collector) Collect(ctx context.Context) (*types.Snapshot, error) {
	accountID, err := c.getAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account ID: %w", err)
	}

	snap := &types.Snapshot{
		AccountID:   accountID,
		CollectedAt: time.Now().UTC(),
	}

	users, err := c.collectUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect users: %w", err)
	}
	snap.Nodes = append(snap.Nodes, users...)

	roles, err := c.collectRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect roles: %w", err)
	}
	snap.Nodes = append(snap.Nodes, roles...)

	bucketPolicies, err := c.collectBucketPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect bucket policies: %w", err)
	}
	snap.Policies = bucketPolicies

	if err := Finalize(snap); err != nil {
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	logging.Info("collection complete", map[string]interface{}{
		"account": accountID,
		"nodes":   len(snap.Nodes),
		"edges":   len(snap.Edges),
	})

	return snap, nil
}

func (c *Collector) getAccountID(ctx context.Context) (string, error) {
	output, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	if output.Account == nil || *output.Account == "" {
		return "", fmt.Errorf("unable to determine account ID")
	}
	return *output.Account, nil
}

func (c *Collector) collectUsers(ctx context.Context) ([]*types.Node, error) {
	var nodes []*types.Node

	paginator := iam.NewListUsersPaginator(c.iamClient, &iam.ListUsersInput{})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}

		for _, user := range output.Users {
			userName := aws.ToString(user.UserName)
			node := &types.Node{ARN: aws.ToString(user.Arn)}

			policies, err := c.getPolicies(ctx, principalUser, userName)
			if err != nil {
				return nil, fmt.Errorf("failed to get policies for user %s: %w", userName, err)
			}
			node.Policies = policies

			groupPolicies, err := c.getGroupPolicies(ctx, userName)
			if err != nil {
				return nil, fmt.Errorf("failed to get group policies for user %s: %w", userName, err)
			}
			node.GroupPolicies = groupPolicies

			hasMFA, err := c.hasMFADevice(ctx, userName)
			if err != nil {
				return nil, fmt.Errorf("failed to list MFA devices for user %s: %w", userName, err)
			}
			node.HasMFA = hasMFA

			keyCount, err := c.accessKeyCount(ctx, userName)
			if err != nil {
				return nil, fmt.Errorf("failed to list access keys for user %s: %w", userName, err)
			}
			node.AccessKeyCount = keyCount

			nodes = append(nodes, node)
		}
	}

	return nodes, nil
}

func (c *Collector) collectRoles(ctx context.Context) ([]*types.Node, error) {
	var nodes []*types.Node

	paginator := iam.NewListRolesPaginator(c.iamClient, &iam.ListRolesInput{})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}

		for _, role := range output.Roles {
			roleName := aws.ToString(role.RoleName)
			node := &types.Node{ARN: aws.ToString(role.Arn)}

			if role.AssumeRolePolicyDocument != nil {
				trustPolicy, err := policy.Parse(*role.AssumeRolePolicyDocument)
				if err != nil {
					return nil, fmt.Errorf("failed to parse trust policy for role %s: %w", roleName, err)
				}
				node.TrustPolicy = trustPolicy
			}

			policies, err := c.getPolicies(ctx, principalRole, roleName)
			if err != nil {
				return nil, fmt.Errorf("failed to get policies for role %s: %w", roleName, err)
			}
			node.Policies = policies

			profiles, err := c.instanceProfiles(ctx, roleName)
			if err != nil {
				return nil, fmt.Errorf("failed to list instance profiles for role %s: %w", roleName, err)
			}
			node.InstanceProfileIDs = profiles

			nodes = append(nodes, node)
		}
	}

	return nodes, nil
}

type principalKind int

const (
	principalUser principalKind = iota
	principalRole
	principalGroup
)

// getPolicies fetches the inline and attached managed policies for a
// principal.
func (c *Collector) getPolicies(ctx context.Context, kind principalKind, name string) ([]types.PolicyDocument, error) {
	var docs []types.PolicyDocument

	inline, err := c.inlinePolicyDocs(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	docs = append(docs, inline...)

	attachedARNs, err := c.attachedPolicyARNs(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	for _, arn := range attachedARNs {
		doc, err := c.managedPolicyDocument(ctx, arn)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	return docs, nil
}

func (c *Collector) inlinePolicyDocs(ctx context.Context, kind principalKind, name string) ([]types.PolicyDocument, error) {
	var docs []types.PolicyDocument

	var policyNames []string
	switch kind {
	case principalUser:
		out, err := c.iamClient.ListUserPolicies(ctx, &iam.ListUserPoliciesInput{UserName: &name})
		if err != nil {
			return nil, err
		}
		policyNames = out.PolicyNames
	case principalRole:
		out, err := c.iamClient.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: &name})
		if err != nil {
			return nil, err
		}
		policyNames = out.PolicyNames
	case principalGroup:
		out, err := c.iamClient.ListGroupPolicies(ctx, &iam.ListGroupPoliciesInput{GroupName: &name})
		if err != nil {
			return nil, err
		}
		policyNames = out.PolicyNames
	}

	for _, policyName := range policyNames {
		var raw string
		switch kind {
		case principalUser:
			out, err := c.iamClient.GetUserPolicy(ctx, &iam.GetUserPolicyInput{UserName: &name, PolicyName: &policyName})
			if err != nil {
				return nil, err
			}
			raw = aws.ToString(out.PolicyDocument)
		case principalRole:
			out, err := c.iamClient.GetRolePolicy(ctx, &iam.GetRolePolicyInput{RoleName: &name, PolicyName: &policyName})
			if err != nil {
				return nil, err
			}
			raw = aws.ToString(out.PolicyDocument)
		case principalGroup:
			out, err := c.iamClient.GetGroupPolicy(ctx, &iam.GetGroupPolicyInput{GroupName: &name, PolicyName: &policyName})
			if err != nil {
				return nil, err
			}
			raw = aws.ToString(out.PolicyDocument)
		}

		doc, err := policy.Parse(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	return docs, nil
}

func (c *Collector) attachedPolicyARNs(ctx context.Context, kind principalKind, name string) ([]string, error) {
	var arns []string
	switch kind {
	case principalUser:
		out, err := c.iamClient.ListAttachedUserPolicies(ctx, &iam.ListAttachedUserPoliciesInput{UserName: &name})
		if err != nil {
			return nil, err
		}
		for _, attached := range out.AttachedPolicies {
			arns = append(arns, aws.ToString(attached.PolicyArn))
		}
	case principalRole:
		out, err := c.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: &name})
		if err != nil {
			return nil, err
		}
		for _, attached := range out.AttachedPolicies {
			arns = append(arns, aws.ToString(attached.PolicyArn))
		}
	case principalGroup:
		out, err := c.iamClient.ListAttachedGroupPolicies(ctx, &iam.ListAttachedGroupPoliciesInput{GroupName: &name})
		if err != nil {
			return nil, err
		}
		for _, attached := range out.AttachedPolicies {
			arns = append(arns, aws.ToString(attached.PolicyArn))
		}
	}
	return arns, nil
}

func (c *Collector) managedPolicyDocument(ctx context.Context, policyARN string) (*types.PolicyDocument, error) {
	policyOutput, err := c.iamClient.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: &policyARN})
	if err != nil {
		return nil, err
	}

	versionOutput, err := c.iamClient.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: &policyARN,
		VersionId: policyOutput.Policy.DefaultVersionId,
	})
	if err != nil {
		return nil, err
	}

	return policy.Parse(aws.ToString(versionOutput.PolicyVersion.Document))
}

// getGroupPolicies fetches the policies a user inherits through group
// membership.
func (c *Collector) getGroupPolicies(ctx context.Context, userName string) ([]types.PolicyDocument, error) {
	out, err := c.iamClient.ListGroupsForUser(ctx, &iam.ListGroupsForUserInput{UserName: &userName})
	if err != nil {
		return nil, err
	}

	var docs []types.PolicyDocument
	for _, group := range out.Groups {
		groupDocs, err := c.getPolicies(ctx, principalGroup, aws.ToString(group.GroupName))
		if err != nil {
			return nil, err
		}
		docs = append(docs, groupDocs...)
	}
	return docs, nil
}

func (c *Collector) hasMFADevice(ctx context.Context, userName string) (bool, error) {
	out, err := c.iamClient.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: &userName})
	if err != nil {
		return false, err
	}
	return len(out.MFADevices) > 0, nil
}

func (c *Collector) accessKeyCount(ctx context.Context, userName string) (int, error) {
	out, err := c.iamClient.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: &userName})
	if err != nil {
		return 0, err
	}
	return len(out.AccessKeyMetadata), nil
}

func (c *Collector) instanceProfiles(ctx context.Context, roleName string) ([]string, error) {
	out, err := c.iamClient.ListInstanceProfilesForRole(ctx, &iam.ListInstanceProfilesForRoleInput{RoleName: &roleName})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, profile := range out.InstanceProfiles {
		ids = append(ids, aws.ToString(profile.InstanceProfileId))
	}
	return ids, nil
}
