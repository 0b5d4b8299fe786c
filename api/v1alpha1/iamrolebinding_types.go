package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// IdentitySpec names the AWS IAM role the binding controls and the
// parameters used to render its trust policy.
type IdentitySpec struct {
	// ARN of the IAM role to bind. The role is created if it does not exist.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern=`^arn:aws:iam::\d{12}:role/[\w+=,.@/-]+$`
	RoleArn string `json:"roleArn" validate:"required"`

	// ARN of the cluster OIDC identity provider used as the federated
	// principal in the trust policy. Falls back to the operator-wide default
	// when empty.
	// +kubebuilder:validation:Optional
	OIDCProviderArn string `json:"oidcProviderArn,omitempty"`

	// Expected audience claim of the projected service account token.
	// +kubebuilder:validation:Optional
	// +kubebuilder:default=sts.amazonaws.com
	Audience string `json:"audience,omitempty"`

	// +kubebuilder:validation:Optional
	// +kubebuilder:validation:Minimum=3600
	// +kubebuilder:validation:Maximum=43200
	MaxSessionDuration *int32 `json:"maxSessionDuration,omitempty"`

	// Tags applied to the role when the operator creates it.
	// +kubebuilder:validation:Optional
	Tags map[string]string `json:"tags,omitempty"`
}

// SubjectRef identifies the Kubernetes service account the binding applies to.
type SubjectRef struct {
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Namespace string `json:"namespace" validate:"required"`

	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name" validate:"required"`
}

// ClusterAccessSpec declares an aws-auth mapRoles entry the operator
// maintains for the bound role, granting it in-cluster RBAC identity.
type ClusterAccessSpec struct {
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Username string `json:"username" validate:"required"`

	// +kubebuilder:validation:Optional
	Groups []string `json:"groups,omitempty"`
}

// IAMRoleBindingSpec defines the desired state of IAMRoleBinding
type IAMRoleBindingSpec struct {
	// +kubebuilder:validation:Required
	Identity IdentitySpec `json:"identity" validate:"required"`

	// +kubebuilder:validation:Required
	Subject SubjectRef `json:"subject" validate:"required"`

	// Managed policy ARNs to keep attached to the role. Treated as a set:
	// reordering entries changes nothing cloud-side.
	// +kubebuilder:validation:Optional
	Policies []string `json:"policies,omitempty" validate:"dive,startswith=arn:"`

	// +kubebuilder:validation:Optional
	ClusterAccess *ClusterAccessSpec `json:"clusterAccess,omitempty"`
}

// IAMRoleBindingStatus defines the observed state of IAMRoleBinding
type IAMRoleBindingStatus struct {
	// +kubebuilder:validation:Optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Generation last reconciled to a fully converged AWS state.
	// +kubebuilder:validation:Optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Managed policies confirmed attached to the role. Updated as attach and
	// detach calls land so an interrupted sequence resumes where it stopped.
	// +kubebuilder:validation:Optional
	AttachedPolicies []string `json:"attachedPolicies,omitempty"`

	// True when the operator created the role itself, which makes the role
	// eligible for deletion during finalization.
	// +kubebuilder:validation:Optional
	RoleCreated bool `json:"roleCreated,omitempty"`
}

const (
	// ConditionReady reports whether the live AWS state matches the spec.
	ConditionReady = "Ready"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=irb
// +kubebuilder:printcolumn:name="Role",type=string,JSONPath=`.spec.identity.roleArn`
// +kubebuilder:printcolumn:name="Subject",type=string,JSONPath=`.spec.subject.name`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// IAMRoleBinding is the Schema for the iamrolebindings API
type IAMRoleBinding struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   IAMRoleBindingSpec   `json:"spec,omitempty"`
	Status IAMRoleBindingStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// IAMRoleBindingList contains a list of IAMRoleBinding
type IAMRoleBindingList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []IAMRoleBinding `json:"items"`
}

func init() {
	SchemeBuilder.Register(&IAMRoleBinding{}, &IAMRoleBindingList{})
}
