package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/policy"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

// collectBucketPolicies fetches the resource policy of every S3 bucket in
// the account. Buckets without a policy are skipped.
func (c *Collector) collectBucketPolicies(ctx context.Context) ([]*types.Policy, error) {
	listOutput, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	var policies []*types.Policy
	for _, bucket := range listOutput.Buckets {
		name := aws.ToString(bucket.Name)

		policyOutput, err := c.s3Client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: &name})
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucketPolicy" {
				continue
			}
			return nil, fmt.Errorf("failed to get bucket policy for %s: %w", name, err)
		}

		doc, err := policy.Parse(aws.ToString(policyOutput.Policy))
		if err != nil {
			logging.Warn("skipping unparseable bucket policy", map[string]interface{}{
				"bucket": name,
				"error":  err.Error(),
			})
			continue
		}

		policies = append(policies, &types.Policy{
			ARN:      "arn:aws:s3:::" + name,
			Name:     name,
			Document: doc,
		})
	}

	return policies, nil
}
