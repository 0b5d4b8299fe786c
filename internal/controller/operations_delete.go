package controller

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	"github.com/cloudbind/iam-binding-operator/internal/trustpolicy"
	"github.com/cloudbind/iam-binding-operator/pkg/metrics"
)

// finalize runs AWS-side teardown for a binding marked for deletion and
// removes the finalizer once teardown fully succeeds. Teardown failures keep
// the finalizer in place and requeue; cleanup is never abandoned.
func (r *IAMRoleBindingReconciler) finalize(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding) (ctrl.Result, error) {
	log := r.Log.WithValues("iamrolebinding", binding.Namespace+"/"+binding.Name)

	if !controllerutil.ContainsFinalizer(binding, Finalizer) {
		return ctrl.Result{}, nil
	}

	if err := r.teardown(ctx, binding, log); err != nil {
		return r.errorHandler.HandleDeletionError(ctx, binding, err, "teardown")
	}

	if err := r.Store.RemoveFinalizer(ctx, binding, Finalizer); err != nil {
		return r.errorHandler.HandleDeletionError(ctx, binding, err, "remove finalizer")
	}

	r.errorHandler.ResetRetryCount(binding)
	metrics.IncReconcile("finalized")
	log.Info("Binding finalized, AWS state cleaned up")
	return ctrl.Result{}, nil
}

// teardown undoes the binding's AWS footprint. Roles the operator created are
// detached and deleted outright. Pre-existing roles are left standing: only
// the policy attachments this binding managed are detached, and the trust
// policy is revoked only if it still matches the one this operator wrote.
func (r *IAMRoleBindingReconciler) teardown(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, log logr.Logger) error {
	if r.AuthMap != nil {
		if err := r.AuthMap.RemoveEntry(ctx, binding.Spec.Identity.RoleArn); err != nil {
			return fmt.Errorf("failed to remove aws-auth entry: %w", err)
		}
	}

	roleName, err := awsclient.RoleNameFromARN(binding.Spec.Identity.RoleArn)
	if err != nil {
		// The ARN never named a real role, so there is nothing in AWS to
		// clean up.
		log.Info("Skipping AWS teardown for malformed role ARN", "roleArn", binding.Spec.Identity.RoleArn)
		return nil
	}

	observed, err := r.Cloud.GetRole(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}
	if observed == nil {
		return nil
	}

	attached, err := r.Cloud.ListAttachedPolicies(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to list attached policies: %w", err)
	}

	for _, policyArn := range policiesToDetach(binding, attached) {
		if err := r.Cloud.DetachPolicy(ctx, roleName, policyArn); err != nil {
			return fmt.Errorf("failed to detach policy %s: %w", policyArn, err)
		}
	}

	if binding.Status.RoleCreated {
		if err := r.Cloud.DeleteRole(ctx, roleName); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		log.Info("Deleted operator-created IAM role", "roleName", roleName)
		return nil
	}

	return r.revokeTrust(ctx, binding, roleName, observed.TrustPolicy, log)
}

// policiesToDetach picks the attachments teardown removes. An operator-created
// role sheds every attachment so DeleteRole can succeed. A pre-existing role
// sheds only the policies this binding declared or recorded as attached.
func policiesToDetach(binding *iamv1alpha1.IAMRoleBinding, attached []string) []string {
	if binding.Status.RoleCreated {
		return slices.Sorted(slices.Values(attached))
	}

	managed := make(map[string]bool, len(binding.Spec.Policies)+len(binding.Status.AttachedPolicies))
	for _, arn := range binding.Spec.Policies {
		managed[arn] = true
	}
	for _, arn := range binding.Status.AttachedPolicies {
		managed[arn] = true
	}

	var out []string
	for _, arn := range attached {
		if managed[arn] {
			out = append(out, arn)
		}
	}
	slices.Sort(out)
	return out
}

// revokeTrust replaces the trust policy of a pre-existing role with an empty
// statement list, but only when the current document is still the one this
// operator rendered. A document changed out of band is someone else's and is
// left alone.
func (r *IAMRoleBindingReconciler) revokeTrust(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, roleName, current string, log logr.Logger) error {
	providerArn := binding.Spec.Identity.OIDCProviderArn
	if providerArn == "" {
		providerArn = r.OIDCProviderArn
	}
	audience := binding.Spec.Identity.Audience
	if audience == "" {
		audience = r.DefaultAudience
	}
	if audience == "" {
		audience = "sts.amazonaws.com"
	}

	rendered, err := trustpolicy.Build(providerArn, binding.Spec.Subject.Namespace, binding.Spec.Subject.Name, audience)
	if err != nil {
		log.Info("Cannot render expected trust policy, leaving document untouched", "error", err.Error())
		return nil
	}
	if !trustpolicy.Equal(current, rendered) {
		log.Info("Trust policy changed out of band, leaving document untouched", "roleName", roleName)
		return nil
	}

	if err := r.Cloud.UpdateTrustPolicy(ctx, roleName, trustpolicy.Revoked); err != nil {
		return fmt.Errorf("failed to revoke trust policy: %w", err)
	}
	log.Info("Revoked trust policy on pre-existing role", "roleName", roleName)
	return nil
}
