// Package awsclient wraps the AWS IAM control plane operations the operator
// needs: role lookup and creation, trust policy updates, and managed policy
// attachment. Throttling backoff is handled inside the SDK client, separately
// from the reconcile queue's own backoff.
package awsclient

import (
	"context"
)

// RoleState is the observed state of an IAM role. Absence of a role is
// reported as a nil RoleState with no error.
type RoleState struct {
	Arn         string
	Name        string
	TrustPolicy string // URL-decoded JSON document
	Description string
	Tags        map[string]string
}

// CreateRoleInput carries the parameters for creating a role.
type CreateRoleInput struct {
	Name               string
	TrustPolicy        string
	Description        string
	MaxSessionDuration *int32
	Tags               map[string]string
}

// CloudClient defines the IAM operations used by the reconciler.
type CloudClient interface {
	// GetRole returns the role state, or (nil, nil) when the role does not exist.
	GetRole(ctx context.Context, roleName string) (*RoleState, error)

	// CreateRole creates the role with the given trust policy.
	CreateRole(ctx context.Context, in CreateRoleInput) (*RoleState, error)

	// UpdateTrustPolicy replaces the role's assume role policy document.
	UpdateTrustPolicy(ctx context.Context, roleName, document string) error

	// ListAttachedPolicies returns the ARNs of all managed policies attached to the role.
	ListAttachedPolicies(ctx context.Context, roleName string) ([]string, error)

	// AttachPolicy attaches a managed policy to the role.
	AttachPolicy(ctx context.Context, roleName, policyArn string) error

	// DetachPolicy detaches a managed policy from the role.
	DetachPolicy(ctx context.Context, roleName, policyArn string) error

	// DeleteRole deletes the role. A role that is already gone is not an error.
	DeleteRole(ctx context.Context, roleName string) error
}
