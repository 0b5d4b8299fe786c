package controller

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
)

var validate = validator.New()

// validateBinding rejects specs that can never reconcile: malformed ARNs,
// empty subjects, or a missing OIDC provider. Returns a ValidationError so
// the caller reports it via the Ready condition instead of fast-retrying.
func validateBinding(binding *iamv1alpha1.IAMRoleBinding, providerArn string) error {
	if err := validate.Struct(binding.Spec); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("invalid spec: %v", err)}
	}

	if _, err := awsclient.RoleNameFromARN(binding.Spec.Identity.RoleArn); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	if providerArn == "" {
		return &ValidationError{
			Reason: "no OIDC provider ARN: set spec.identity.oidcProviderArn or the operator-wide default",
		}
	}

	return nil
}
