package controller

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/go-logr/logr"
	"github.com/opdev/subreconciler"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsauth"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	"github.com/cloudbind/iam-binding-operator/internal/trustpolicy"
)

// bindingScope carries the per-invocation state of one reconciliation.
// Nothing here is shared between workers, so bindings reconcile in parallel
// safely.
type bindingScope struct {
	reconciler *IAMRoleBindingReconciler
	binding    *iamv1alpha1.IAMRoleBinding
	log        logr.Logger

	roleName    string
	providerArn string
	audience    string
	trustPolicy string
	observed    *awsclient.RoleState
}

// fail routes an operation error through the error handler, turning it into
// a requeue decision plus a Ready=False condition.
func (s *bindingScope) fail(ctx context.Context, err error, operation string) (*ctrl.Result, error) {
	result, rerr := s.reconciler.errorHandler.HandleError(ctx, s.binding, err, operation)
	return &result, rerr
}

func (s *bindingScope) effectiveProviderArn() string {
	if s.binding.Spec.Identity.OIDCProviderArn != "" {
		return s.binding.Spec.Identity.OIDCProviderArn
	}
	return s.reconciler.OIDCProviderArn
}

func (s *bindingScope) effectiveAudience() string {
	if s.binding.Spec.Identity.Audience != "" {
		return s.binding.Spec.Identity.Audience
	}
	if s.reconciler.DefaultAudience != "" {
		return s.reconciler.DefaultAudience
	}
	return "sts.amazonaws.com"
}

// validate gates the reconciliation on a well-formed spec. A rejected spec
// is permanent: it only re-enters on a spec edit or the resync tick.
func (s *bindingScope) validate(ctx context.Context) (*ctrl.Result, error) {
	if err := validateBinding(s.binding, s.effectiveProviderArn()); err != nil {
		return s.fail(ctx, err, "validate spec")
	}
	return subreconciler.ContinueReconciling()
}

// resolveDesired computes the desired state: the role name addressed by the
// IAM API and the trust policy document the role must carry.
func (s *bindingScope) resolveDesired(ctx context.Context) (*ctrl.Result, error) {
	roleName, err := awsclient.RoleNameFromARN(s.binding.Spec.Identity.RoleArn)
	if err != nil {
		return s.fail(ctx, &ValidationError{Reason: err.Error()}, "resolve role name")
	}
	s.roleName = roleName
	s.providerArn = s.effectiveProviderArn()
	s.audience = s.effectiveAudience()

	doc, err := trustpolicy.Build(s.providerArn, s.binding.Spec.Subject.Namespace, s.binding.Spec.Subject.Name, s.audience)
	if err != nil {
		return s.fail(ctx, &ValidationError{Reason: err.Error()}, "render trust policy")
	}
	s.trustPolicy = doc

	return subreconciler.ContinueReconciling()
}

// ensureRole fetches the observed role, creating it when absent. The
// roleCreated marker is persisted before the create call so a crash in
// between can never leave a role the finalizer does not know it owns.
func (s *bindingScope) ensureRole(ctx context.Context) (*ctrl.Result, error) {
	observed, err := s.reconciler.Cloud.GetRole(ctx, s.roleName)
	if err != nil {
		return s.fail(ctx, err, "get role")
	}

	if observed != nil {
		s.observed = observed
		return subreconciler.ContinueReconciling()
	}

	if !s.binding.Status.RoleCreated {
		s.binding.Status.RoleCreated = true
		if err := s.reconciler.Store.UpdateStatus(ctx, s.binding); err != nil {
			s.binding.Status.RoleCreated = false
			return s.fail(ctx, err, "record role ownership")
		}
	}

	created, err := s.reconciler.Cloud.CreateRole(ctx, awsclient.CreateRoleInput{
		Name:               s.roleName,
		TrustPolicy:        s.trustPolicy,
		Description:        fmt.Sprintf("Bound to service account %s/%s", s.binding.Spec.Subject.Namespace, s.binding.Spec.Subject.Name),
		MaxSessionDuration: s.binding.Spec.Identity.MaxSessionDuration,
		Tags:               roleTags(s.binding),
	})
	if err != nil {
		return s.fail(ctx, err, "create role")
	}

	s.log.Info("Created IAM role for binding", "roleArn", created.Arn)
	s.observed = created
	return subreconciler.ContinueReconciling()
}

// ensureTrustPolicy updates the assume role policy only when it differs
// semantically from the rendered document.
func (s *bindingScope) ensureTrustPolicy(ctx context.Context) (*ctrl.Result, error) {
	if trustpolicy.Equal(s.observed.TrustPolicy, s.trustPolicy) {
		return subreconciler.ContinueReconciling()
	}

	if err := s.reconciler.Cloud.UpdateTrustPolicy(ctx, s.roleName, s.trustPolicy); err != nil {
		return s.fail(ctx, err, "update trust policy")
	}
	return subreconciler.ContinueReconciling()
}

// reconcilePolicyAttachments brings the attached managed policies to exactly
// the spec set. Attach and detach are computed as set differences, so
// reordering the spec list produces no cloud calls. Partial progress lands in
// status.attachedPolicies so an interrupted sequence resumes, not restarts.
func (s *bindingScope) reconcilePolicyAttachments(ctx context.Context) (*ctrl.Result, error) {
	current, err := s.reconciler.Cloud.ListAttachedPolicies(ctx, s.roleName)
	if err != nil {
		return s.fail(ctx, err, "list attached policies")
	}

	desiredSet := make(map[string]bool, len(s.binding.Spec.Policies))
	for _, arn := range s.binding.Spec.Policies {
		desiredSet[arn] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, arn := range current {
		currentSet[arn] = true
	}

	toAttachSet := maps.Clone(desiredSet)
	maps.DeleteFunc(toAttachSet, func(k string, _ bool) bool {
		return currentSet[k]
	})
	toAttach := slices.Sorted(maps.Keys(toAttachSet))

	toDetachSet := maps.Clone(currentSet)
	maps.DeleteFunc(toDetachSet, func(k string, _ bool) bool {
		return desiredSet[k]
	})
	toDetach := slices.Sorted(maps.Keys(toDetachSet))

	if len(toAttach) == 0 && len(toDetach) == 0 {
		s.binding.Status.AttachedPolicies = slices.Sorted(maps.Keys(currentSet))
		return subreconciler.ContinueReconciling()
	}

	actual := maps.Clone(currentSet)

	// Detach extraneous policies first, then attach the missing ones.
	for _, arn := range toDetach {
		if err := s.reconciler.Cloud.DetachPolicy(ctx, s.roleName, arn); err != nil {
			s.binding.Status.AttachedPolicies = slices.Sorted(maps.Keys(actual))
			return s.fail(ctx, fmt.Errorf("failed to detach policy %s: %w", arn, err), "detach policy")
		}
		delete(actual, arn)
	}

	for _, arn := range toAttach {
		if err := s.reconciler.Cloud.AttachPolicy(ctx, s.roleName, arn); err != nil {
			s.binding.Status.AttachedPolicies = slices.Sorted(maps.Keys(actual))
			return s.fail(ctx, fmt.Errorf("failed to attach policy %s: %w", arn, err), "attach policy")
		}
		actual[arn] = true
	}

	s.log.Info("Policy attachments reconciled", "attached", len(toAttach), "detached", len(toDetach))
	s.binding.Status.AttachedPolicies = slices.Sorted(maps.Keys(actual))
	return subreconciler.ContinueReconciling()
}

// reconcileClusterAccess keeps the aws-auth mapRoles entry in step with
// spec.clusterAccess, removing it when the field is cleared.
func (s *bindingScope) reconcileClusterAccess(ctx context.Context) (*ctrl.Result, error) {
	if s.reconciler.AuthMap == nil {
		return subreconciler.ContinueReconciling()
	}

	access := s.binding.Spec.ClusterAccess
	if access == nil {
		if err := s.reconciler.AuthMap.RemoveEntry(ctx, s.binding.Spec.Identity.RoleArn); err != nil {
			return s.fail(ctx, err, "remove aws-auth entry")
		}
		return subreconciler.ContinueReconciling()
	}

	entry := awsauth.MapRole{
		RoleArn:  s.binding.Spec.Identity.RoleArn,
		Username: access.Username,
		Groups:   access.Groups,
	}
	if err := s.reconciler.AuthMap.EnsureEntry(ctx, entry); err != nil {
		return s.fail(ctx, err, "ensure aws-auth entry")
	}
	return subreconciler.ContinueReconciling()
}

// markConverged records full convergence: Ready=True and observedGeneration
// caught up to the spec generation.
func (s *bindingScope) markConverged(ctx context.Context) (*ctrl.Result, error) {
	s.binding.Status.ObservedGeneration = s.binding.Generation
	setReadyCondition(s.binding, metav1.ConditionTrue, conditionReasonReady, "AWS state matches spec")

	if err := s.reconciler.Store.UpdateStatus(ctx, s.binding); err != nil {
		return s.fail(ctx, err, "update status")
	}

	s.reconciler.errorHandler.ResetRetryCount(s.binding)
	return subreconciler.ContinueReconciling()
}

func roleTags(binding *iamv1alpha1.IAMRoleBinding) map[string]string {
	tags := map[string]string{
		"managed-by":     "iam-binding-operator",
		"binding":        binding.Namespace + "/" + binding.Name,
		"serviceaccount": binding.Spec.Subject.Namespace + "/" + binding.Spec.Subject.Name,
	}
	for k, v := range binding.Spec.Identity.Tags {
		tags[k] = v
	}
	return tags
}
