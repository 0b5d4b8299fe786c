package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	"github.com/cloudbind/iam-binding-operator/internal/k8sclient"
	"github.com/cloudbind/iam-binding-operator/pkg/metrics"
)

const (
	// Status condition reasons
	conditionReasonReady       = "Ready"
	conditionReasonError       = "Error"
	conditionReasonRetrying    = "Retrying"
	conditionReasonInvalidSpec = "InvalidSpec"
)

// ValidationError marks a spec that can never reconcile as written. It is
// reported through the Ready condition and retried no faster than the resync
// interval.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// ErrorClassification represents different types of errors
type ErrorClassification int

const (
	ErrorPermanent ErrorClassification = iota // Don't retry faster than resync
	ErrorTransient                            // Retry with backoff
	ErrorRetryable                            // Retry immediately
)

// ErrorHandler converts per-reconciliation errors into requeue decisions and
// Ready condition updates. It tracks retry counts per binding key to drive
// exponential backoff.
type ErrorHandler struct {
	store k8sclient.StoreClient
	log   logr.Logger

	backoffBase    time.Duration
	backoffCap     time.Duration
	permanentRetry time.Duration

	mu          sync.Mutex
	retryCounts map[string]int // key: namespace/name
}

// NewErrorHandler creates a new ErrorHandler instance
func NewErrorHandler(store k8sclient.StoreClient, log logr.Logger, backoffBase, backoffCap, permanentRetry time.Duration) *ErrorHandler {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	if backoffCap < backoffBase {
		backoffCap = 5 * time.Minute
	}
	if permanentRetry <= 0 {
		permanentRetry = 10 * time.Minute
	}
	return &ErrorHandler{
		store:          store,
		log:            log,
		backoffBase:    backoffBase,
		backoffCap:     backoffCap,
		permanentRetry: permanentRetry,
		retryCounts:    make(map[string]int),
	}
}

// ClassifyError determines how to handle different error types
func (eh *ErrorHandler) ClassifyError(err error) ErrorClassification {
	if err == nil {
		return ErrorRetryable
	}

	// A spec that cannot reconcile as written
	if IsValidationError(err) {
		return ErrorPermanent
	}

	// Conflict errors (optimistic locking) - retry immediately
	if apierrors.IsConflict(err) {
		return ErrorRetryable
	}

	// Kubernetes API errors
	if apierrors.IsNotFound(err) || apierrors.IsInvalid(err) || apierrors.IsBadRequest(err) {
		return ErrorPermanent
	}

	// Rate limiting and service unavailable
	if apierrors.IsTooManyRequests(err) || apierrors.IsServiceUnavailable(err) || apierrors.IsTimeout(err) {
		return ErrorTransient
	}

	// AWS throttling, timeouts and 5xx
	if awsclient.IsRetryable(err) {
		return ErrorTransient
	}

	// AWS rejects that no retry can fix
	if awsclient.IsNotFound(err) {
		return ErrorPermanent
	}

	// Default to transient for unknown errors
	return ErrorTransient
}

// CalculateBackoff calculates exponential backoff delay
func (eh *ErrorHandler) CalculateBackoff(retryCount int) time.Duration {
	delay := eh.backoffBase
	for i := 0; i < retryCount && delay < eh.backoffCap; i++ {
		delay *= 2
	}
	if delay > eh.backoffCap {
		delay = eh.backoffCap
	}
	return delay
}

// GetRetryCount gets the current retry count for the binding
func (eh *ErrorHandler) GetRetryCount(binding *iamv1alpha1.IAMRoleBinding) int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.retryCounts[bindingKey(binding)]
}

// ResetRetryCount resets the retry count on successful operations
func (eh *ErrorHandler) ResetRetryCount(binding *iamv1alpha1.IAMRoleBinding) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	delete(eh.retryCounts, bindingKey(binding))
}

func (eh *ErrorHandler) bumpRetryCount(binding *iamv1alpha1.IAMRoleBinding) int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	count := eh.retryCounts[bindingKey(binding)]
	eh.retryCounts[bindingKey(binding)] = count + 1
	return count
}

// HandleError converts an error into a requeue decision and records the
// failure reason on the Ready condition.
func (eh *ErrorHandler) HandleError(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, err error, operation string) (ctrl.Result, error) {
	if err == nil {
		return ctrl.Result{}, nil
	}

	log := eh.log.WithValues("iamrolebinding", bindingKey(binding), "operation", operation)
	log.Error(err, "Operation failed")

	switch eh.ClassifyError(err) {
	case ErrorPermanent:
		reason := conditionReasonError
		outcome := "requeued"
		if IsValidationError(err) {
			reason = conditionReasonInvalidSpec
			outcome = "invalid"
		}
		log.Info("Permanent error, retrying only on resync", "error", err)
		eh.setNotReady(ctx, binding, reason, err.Error())
		metrics.IncReconcile(outcome)
		return ctrl.Result{RequeueAfter: eh.permanentRetry}, nil

	case ErrorTransient:
		retryCount := eh.bumpRetryCount(binding)
		delay := eh.CalculateBackoff(retryCount)
		log.Info("Transient error, retrying with backoff", "delay", delay, "retryCount", retryCount)
		eh.setNotReady(ctx, binding, conditionReasonRetrying, err.Error())
		metrics.IncReconcile("requeued")
		return ctrl.Result{RequeueAfter: delay}, nil

	default:
		log.Info("Retryable error, retrying immediately")
		metrics.IncReconcile("requeued")
		return ctrl.Result{Requeue: true}, nil
	}
}

// HandleDeletionError converts an error during finalization into a requeue
// decision. Cleanup is never abandoned: the finalizer stays until AWS-side
// teardown succeeds, so even permanent-looking errors keep retrying at the
// backoff cap rather than silently orphaning cloud resources.
func (eh *ErrorHandler) HandleDeletionError(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, err error, operation string) (ctrl.Result, error) {
	if err == nil {
		return ctrl.Result{}, nil
	}

	log := eh.log.WithValues("iamrolebinding", bindingKey(binding), "operation", operation)
	log.Error(err, "Deletion operation failed")

	metrics.IncReconcile("requeued")

	switch eh.ClassifyError(err) {
	case ErrorRetryable:
		log.Info("Retryable error during deletion, retrying immediately")
		return ctrl.Result{Requeue: true}, nil

	case ErrorPermanent:
		log.Info("Persistent error during deletion, retrying at backoff cap", "delay", eh.backoffCap)
		return ctrl.Result{RequeueAfter: eh.backoffCap}, nil

	default:
		retryCount := eh.bumpRetryCount(binding)
		delay := eh.CalculateBackoff(retryCount)
		log.Info("Transient error during deletion, retrying with backoff", "delay", delay, "retryCount", retryCount)
		return ctrl.Result{RequeueAfter: delay}, nil
	}
}

// setNotReady records the failure on the Ready condition. Best effort: a
// failed status write is logged, the requeue decision already covers retry.
func (eh *ErrorHandler) setNotReady(ctx context.Context, binding *iamv1alpha1.IAMRoleBinding, reason, message string) {
	setReadyCondition(binding, metav1.ConditionFalse, reason, message)
	if err := eh.store.UpdateStatus(ctx, binding); err != nil {
		eh.log.Error(err, "Failed to record failure on status", "iamrolebinding", bindingKey(binding))
	}
}

func bindingKey(binding *iamv1alpha1.IAMRoleBinding) string {
	return binding.Namespace + "/" + binding.Name
}
