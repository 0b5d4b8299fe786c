package controller

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/opdev/subreconciler"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsauth"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	"github.com/cloudbind/iam-binding-operator/internal/k8sclient"
	"github.com/cloudbind/iam-binding-operator/pkg/metrics"
)

const (
	// Finalizer blocks binding deletion until AWS-side teardown succeeds
	Finalizer = "iam.cloudbind.io/finalizer"
)

// IAMRoleBindingReconciler reconciles an IAMRoleBinding object against live
// AWS IAM state.
type IAMRoleBindingReconciler struct {
	client.Client // for controller-runtime
	Log           logr.Logger
	Scheme        *runtime.Scheme

	Store   k8sclient.StoreClient
	Cloud   awsclient.CloudClient
	AuthMap *awsauth.Manager // nil disables aws-auth management

	// Default OIDC provider ARN used when a binding does not set its own
	OIDCProviderArn string
	DefaultAudience string

	Concurrency    int
	ResyncInterval time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration

	errorHandler *ErrorHandler
	initOnce     sync.Once
}

// +kubebuilder:rbac:groups=iam.cloudbind.io,resources=iamrolebindings,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=iam.cloudbind.io,resources=iamrolebindings/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=iam.cloudbind.io,resources=iamrolebindings/finalizers,verbs=update
// +kubebuilder:rbac:groups=core,resources=configmaps,verbs=get;list;watch;update,resourceNames=aws-auth

// Reconcile drives the AWS state for one binding towards its spec. Errors
// never escape as reconcile failures: they become requeue decisions with a
// Ready=False condition explaining the holdup.
func (r *IAMRoleBindingReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("iamrolebinding", req.NamespacedName)
	r.initOnce.Do(func() {
		r.errorHandler = NewErrorHandler(r.Store, r.Log, r.BackoffBase, r.BackoffCap, r.ResyncInterval)
	})

	binding, err := r.Store.Get(ctx, req.NamespacedName)
	if err != nil {
		if apierrors.IsNotFound(err) {
			// Deleted between enqueue and processing; deletion already finalized.
			log.Info("IAMRoleBinding not found, nothing to do")
			return ctrl.Result{}, nil
		}
		log.Error(err, "Failed to get IAMRoleBinding")
		return ctrl.Result{}, err
	}

	if binding.DeletionTimestamp != nil {
		return r.finalize(ctx, binding)
	}

	if !controllerutil.ContainsFinalizer(binding, Finalizer) {
		// Commit the finalizer before any cloud mutation so cleanup can
		// never be skipped after a partial create.
		if err := r.Store.AddFinalizer(ctx, binding, Finalizer); err != nil {
			return r.errorHandler.HandleError(ctx, binding, err, "add finalizer")
		}
		metrics.IncReconcile("requeued")
		return ctrl.Result{Requeue: true}, nil
	}

	scope := &bindingScope{
		reconciler: r,
		binding:    binding,
		log:        log,
	}

	subrecs := []subreconciler.Fn{
		scope.validate,
		scope.resolveDesired,
		scope.ensureRole,
		scope.ensureTrustPolicy,
		scope.reconcilePolicyAttachments,
		scope.reconcileClusterAccess,
		scope.markConverged,
	}
	for _, subrec := range subrecs {
		if result, err := subrec(ctx); subreconciler.ShouldHaltOrRequeue(result, err) {
			return subreconciler.Evaluate(result, err)
		}
	}

	metrics.IncReconcile("converged")
	r.updateManagedGauge(ctx)
	return subreconciler.Evaluate(subreconciler.DoNotRequeue())
}

// updateManagedGauge refreshes the managed bindings gauge from the cache.
func (r *IAMRoleBindingReconciler) updateManagedGauge(ctx context.Context) {
	var list iamv1alpha1.IAMRoleBindingList
	if err := r.List(ctx, &list); err != nil {
		return
	}
	managed := 0
	for i := range list.Items {
		if controllerutil.ContainsFinalizer(&list.Items[i], Finalizer) {
			managed++
		}
	}
	metrics.SetBindingsManaged(managed)
}

// SetupWithManager sets up the controller with the Manager. The workqueue
// rate limiter carries the configured backoff bounds, and concurrency caps
// simultaneous reconciliations against the AWS API.
func (r *IAMRoleBindingReconciler) SetupWithManager(mgr ctrl.Manager) error {
	concurrency := r.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	backoffBase := r.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	backoffCap := r.BackoffCap
	if backoffCap < backoffBase {
		backoffCap = 5 * time.Minute
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&iamv1alpha1.IAMRoleBinding{}).
		Watches(
			&corev1.ConfigMap{},
			handler.EnqueueRequestsFromMapFunc(r.mapAWSAuthToBindings),
			builder.WithPredicates(awsAuthPredicate()),
		).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: concurrency,
			RateLimiter:             workqueue.NewItemExponentialFailureRateLimiter(backoffBase, backoffCap),
		}).
		Complete(r)
}

// awsAuthPredicate passes only events for the kube-system/aws-auth ConfigMap.
func awsAuthPredicate() predicate.Predicate {
	return predicate.NewPredicateFuncs(func(obj client.Object) bool {
		return obj.GetName() == awsauth.ConfigMapName && obj.GetNamespace() == awsauth.ConfigMapNamespace
	})
}

// mapAWSAuthToBindings re-enqueues every binding that projects into the
// aws-auth ConfigMap, so out-of-band edits to the map get corrected.
func (r *IAMRoleBindingReconciler) mapAWSAuthToBindings(ctx context.Context, _ client.Object) []reconcile.Request {
	var list iamv1alpha1.IAMRoleBindingList
	if err := r.List(ctx, &list); err != nil {
		r.Log.Error(err, "Failed to list IAMRoleBindings for aws-auth change")
		return nil
	}

	var requests []reconcile.Request
	for i := range list.Items {
		if list.Items[i].Spec.ClusterAccess == nil {
			continue
		}
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{
				Namespace: list.Items[i].Namespace,
				Name:      list.Items[i].Name,
			},
		})
	}
	return requests
}
