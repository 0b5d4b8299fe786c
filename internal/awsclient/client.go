package awsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/go-logr/logr"

	"github.com/cloudbind/iam-binding-operator/pkg/metrics"
)

const sdkMaxBackoff = 20 * time.Second

// Client implements CloudClient using the AWS SDK IAM service client.
type Client struct {
	iamClient *iam.Client
	log       logr.Logger
}

// NewClient creates an IAM client with SDK-level throttling backoff enabled.
func NewClient(ctx context.Context, region string, log logr.Logger) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxBackoff = sdkMaxBackoff
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		iamClient: iam.NewFromConfig(cfg),
		log:       log,
	}, nil
}

// GetRole retrieves role state by name. Returns (nil, nil) when the role does
// not exist, since absence is a valid observed state.
func (c *Client) GetRole(ctx context.Context, roleName string) (*RoleState, error) {
	output, err := c.iamClient.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		metrics.IncCloudError("get-role")
		return nil, fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	return convertRole(output.Role)
}

// CreateRole creates a new IAM role with the given trust policy.
func (c *Client) CreateRole(ctx context.Context, in CreateRoleInput) (*RoleState, error) {
	log := c.log.WithValues("roleName", in.Name)

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(in.Name),
		AssumeRolePolicyDocument: aws.String(in.TrustPolicy),
		Tags:                     toIAMTags(in.Tags),
	}
	if in.Description != "" {
		input.Description = aws.String(in.Description)
	}
	if in.MaxSessionDuration != nil {
		input.MaxSessionDuration = in.MaxSessionDuration
	}

	output, err := c.iamClient.CreateRole(ctx, input)
	if err != nil {
		metrics.IncCloudError("create-role")
		return nil, fmt.Errorf("failed to create role %s: %w", in.Name, err)
	}

	log.Info("Created IAM role", "roleArn", aws.ToString(output.Role.Arn))
	return convertRole(output.Role)
}

// UpdateTrustPolicy replaces the assume role policy document of the role.
func (c *Client) UpdateTrustPolicy(ctx context.Context, roleName, document string) error {
	_, err := c.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		metrics.IncCloudError("update-trust-policy")
		return fmt.Errorf("failed to update trust policy of role %s: %w", roleName, err)
	}

	c.log.Info("Updated trust policy", "roleName", roleName)
	return nil
}

// ListAttachedPolicies returns the ARNs of all managed policies attached to
// the role, following pagination.
func (c *Client) ListAttachedPolicies(ctx context.Context, roleName string) ([]string, error) {
	input := &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	}

	var arns []string
	paginator := iam.NewListAttachedRolePoliciesPaginator(c.iamClient, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.IncCloudError("list-attached-policies")
			return nil, fmt.Errorf("failed to list attached policies of role %s: %w", roleName, err)
		}
		for i := range output.AttachedPolicies {
			arns = append(arns, aws.ToString(output.AttachedPolicies[i].PolicyArn))
		}
	}

	return arns, nil
}

// AttachPolicy attaches the managed policy to the role.
func (c *Client) AttachPolicy(ctx context.Context, roleName, policyArn string) error {
	_, err := c.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		metrics.IncCloudError("attach-policy")
		return fmt.Errorf("failed to attach policy %s to role %s: %w", policyArn, roleName, err)
	}

	c.log.Info("Attached policy", "roleName", roleName, "policyArn", policyArn)
	return nil
}

// DetachPolicy detaches the managed policy from the role. A policy that is
// already detached counts as success.
func (c *Client) DetachPolicy(ctx context.Context, roleName, policyArn string) error {
	_, err := c.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		metrics.IncCloudError("detach-policy")
		return fmt.Errorf("failed to detach policy %s from role %s: %w", policyArn, roleName, err)
	}

	c.log.Info("Detached policy", "roleName", roleName, "policyArn", policyArn)
	return nil
}

// DeleteRole deletes the role. A role that is already gone counts as success.
func (c *Client) DeleteRole(ctx context.Context, roleName string) error {
	_, err := c.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		metrics.IncCloudError("delete-role")
		return fmt.Errorf("failed to delete role %s: %w", roleName, err)
	}

	c.log.Info("Deleted IAM role", "roleName", roleName)
	return nil
}

// RoleNameFromARN extracts the role name (including any path) from a role ARN.
func RoleNameFromARN(roleArn string) (string, error) {
	parsed, err := arn.Parse(roleArn)
	if err != nil {
		return "", fmt.Errorf("invalid role ARN %q: %w", roleArn, err)
	}
	if parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "role/") {
		return "", fmt.Errorf("ARN %q does not name an IAM role", roleArn)
	}

	// IAM API calls address roles by name only, without the path prefix.
	name := strings.TrimPrefix(parsed.Resource, "role/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		return "", fmt.Errorf("ARN %q has an empty role name", roleArn)
	}
	return name, nil
}

// IsNotFound reports whether the error is IAM's NoSuchEntity.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NoSuchEntityException
	return errors.As(err, &notFound)
}

// IsRetryable reports whether the error is transient according to the SDK's
// own retry classification (throttling, timeouts, 5xx).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, checker := range retry.DefaultRetryables {
		if checker.IsErrorRetryable(err) == aws.TrueTernary {
			return true
		}
	}
	for _, checker := range retry.DefaultThrottles {
		if checker.IsErrorThrottle(err) == aws.TrueTernary {
			return true
		}
	}
	return false
}

func convertRole(role *types.Role) (*RoleState, error) {
	// AWS returns the assume role policy document URL-encoded.
	doc, err := url.QueryUnescape(aws.ToString(role.AssumeRolePolicyDocument))
	if err != nil {
		return nil, fmt.Errorf("failed to decode trust policy of role %s: %w", aws.ToString(role.RoleName), err)
	}

	state := &RoleState{
		Arn:         aws.ToString(role.Arn),
		Name:        aws.ToString(role.RoleName),
		TrustPolicy: doc,
		Description: aws.ToString(role.Description),
	}
	if len(role.Tags) > 0 {
		state.Tags = make(map[string]string, len(role.Tags))
		for _, tag := range role.Tags {
			state.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return state, nil
}

func toIAMTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	result := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		result = append(result, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}
	return result
}
