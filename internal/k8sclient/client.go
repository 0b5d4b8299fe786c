package k8sclient

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
)

// Client implements StoreClient on a controller-runtime client.
type Client struct {
	client client.Client
}

// NewClient returns a StoreClient backed by the manager's cached client.
func NewClient(c client.Client) *Client {
	return &Client{client: c}
}

func (c *Client) Get(ctx context.Context, key types.NamespacedName) (*iamv1alpha1.IAMRoleBinding, error) {
	binding := &iamv1alpha1.IAMRoleBinding{}
	if err := c.client.Get(ctx, key, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// UpdateStatus writes the status subresource. A conflict means another writer
// bumped the resourceVersion; the status is re-applied onto a fresh read.
func (c *Client) UpdateStatus(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding) error {
	key := types.NamespacedName{Namespace: binding.Namespace, Name: binding.Name}
	status := binding.Status

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		latest := &iamv1alpha1.IAMRoleBinding{}
		if err := c.client.Get(ctx, key, latest); err != nil {
			return err
		}
		latest.Status = status
		if err := c.client.Status().Update(ctx, latest); err != nil {
			return err
		}
		binding.ResourceVersion = latest.ResourceVersion
		return nil
	})
}

func (c *Client) AddFinalizer(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, finalizer string) error {
	if !controllerutil.AddFinalizer(binding, finalizer) {
		return nil
	}
	return c.client.Update(ctx, binding)
}

func (c *Client) RemoveFinalizer(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, finalizer string) error {
	if !controllerutil.RemoveFinalizer(binding, finalizer) {
		return nil
	}
	return c.client.Update(ctx, binding)
}

func (c *Client) GetConfigMap(ctx context.Context, key types.NamespacedName) (*corev1.ConfigMap, error) {
	cm := &corev1.ConfigMap{}
	if err := c.client.Get(ctx, key, cm); err != nil {
		return nil, err
	}
	return cm, nil
}

func (c *Client) UpdateConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	return c.client.Update(ctx, cm)
}
