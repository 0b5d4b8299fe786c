// Package k8sclient provides the typed Kubernetes access the reconciler
// needs: binding reads, status writes with conflict-safe retries, finalizer
// management, and the aws-auth ConfigMap.
package k8sclient

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
)

// StoreClient abstracts IAMRoleBinding persistence for testability.
type StoreClient interface {
	// Get fetches the binding by key. Not-found surfaces as the apierrors
	// NotFound error so callers can treat deletion races as terminal no-ops.
	Get(ctx context.Context, key types.NamespacedName) (*iamv1alpha1.IAMRoleBinding, error)

	// UpdateStatus persists binding.Status. Optimistic concurrency conflicts
	// are retried internally against a fresh read and never surface.
	UpdateStatus(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding) error

	// AddFinalizer persists the finalizer on the binding if absent.
	AddFinalizer(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, finalizer string) error

	// RemoveFinalizer persists removal of the finalizer from the binding.
	RemoveFinalizer(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, finalizer string) error

	// GetConfigMap fetches a ConfigMap by key.
	GetConfigMap(ctx context.Context, key types.NamespacedName) (*corev1.ConfigMap, error)

	// UpdateConfigMap writes the ConfigMap back, relying on its
	// resourceVersion for optimistic concurrency.
	UpdateConfigMap(ctx context.Context, cm *corev1.ConfigMap) error
}
