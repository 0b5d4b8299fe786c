package controller

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
)

// setReadyCondition updates the Ready condition in place. lastTransitionTime
// only moves when the status value actually changes.
func setReadyCondition(binding *iamv1alpha1.IAMRoleBinding, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&binding.Status.Conditions, metav1.Condition{
		Type:               iamv1alpha1.ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: binding.Generation,
	})
}
