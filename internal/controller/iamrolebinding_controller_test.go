package controller_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/log"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
	"github.com/cloudbind/iam-binding-operator/internal/awsauth"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	awsclientmocks "github.com/cloudbind/iam-binding-operator/internal/awsclient/mocks"
	"github.com/cloudbind/iam-binding-operator/internal/controller"
	"github.com/cloudbind/iam-binding-operator/internal/k8sclient"
	"github.com/cloudbind/iam-binding-operator/internal/trustpolicy"
)

const (
	testProviderArn = "arn:aws:iam::123456789012:oidc-provider/oidc.eks.eu-west-1.amazonaws.com/id/EXAMPLE1234567890"
	testRoleArn     = "arn:aws:iam::123456789012:role/app-role"
	testRoleName    = "app-role"
	policyReadOnly  = "arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"
	policyFullOnly  = "arn:aws:iam::aws:policy/AmazonS3FullAccess"
)

var _ = Describe("IAMRoleBindingReconciler", func() {
	var (
		ctx        context.Context
		mockCloud  *awsclientmocks.MockCloudClient
		store      *k8sclient.Client
		reconciler *controller.IAMRoleBindingReconciler
		fakeClient client.Client
		scheme     *runtime.Scheme
		trustDoc   string
	)

	newBinding := func(name string, policies []string) *iamv1alpha1.IAMRoleBinding {
		return &iamv1alpha1.IAMRoleBinding{
			ObjectMeta: metav1.ObjectMeta{
				Name:       name,
				Namespace:  "default",
				Finalizers: []string{controller.Finalizer},
			},
			Spec: iamv1alpha1.IAMRoleBindingSpec{
				Identity: iamv1alpha1.IdentitySpec{
					RoleArn: testRoleArn,
				},
				Subject: iamv1alpha1.SubjectRef{
					Namespace: "default",
					Name:      "app-sa",
				},
				Policies: policies,
			},
		}
	}

	requestFor := func(binding *iamv1alpha1.IAMRoleBinding) ctrl.Request {
		return ctrl.Request{
			NamespacedName: types.NamespacedName{
				Namespace: binding.Namespace,
				Name:      binding.Name,
			},
		}
	}

	getBinding := func(binding *iamv1alpha1.IAMRoleBinding) *iamv1alpha1.IAMRoleBinding {
		fetched := &iamv1alpha1.IAMRoleBinding{}
		Expect(fakeClient.Get(ctx, types.NamespacedName{Namespace: binding.Namespace, Name: binding.Name}, fetched)).To(Succeed())
		return fetched
	}

	readyCondition := func(binding *iamv1alpha1.IAMRoleBinding) *metav1.Condition {
		return meta.FindStatusCondition(getBinding(binding).Status.Conditions, iamv1alpha1.ConditionReady)
	}

	BeforeEach(func() {
		ctx = context.Background()

		scheme = runtime.NewScheme()
		Expect(corev1.AddToScheme(scheme)).To(Succeed())
		Expect(iamv1alpha1.AddToScheme(scheme)).To(Succeed())

		fakeClient = fake.NewClientBuilder().
			WithScheme(scheme).
			WithStatusSubresource(&iamv1alpha1.IAMRoleBinding{}).
			Build()

		mockCloud = awsclientmocks.NewMockCloudClient(GinkgoT())
		store = k8sclient.NewClient(fakeClient)

		reconciler = &controller.IAMRoleBindingReconciler{
			Client:          fakeClient,
			Log:             log.Log,
			Scheme:          scheme,
			Store:           store,
			Cloud:           mockCloud,
			OIDCProviderArn: testProviderArn,
			BackoffBase:     time.Second,
			BackoffCap:      5 * time.Minute,
			ResyncInterval:  10 * time.Minute,
		}

		var err error
		trustDoc, err = trustpolicy.Build(testProviderArn, "default", "app-sa", "sts.amazonaws.com")
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("Reconcile", func() {
		Context("when the binding does not exist", func() {
			It("should return no error and empty result", func() {
				req := ctrl.Request{
					NamespacedName: types.NamespacedName{Name: "nonexistent", Namespace: "default"},
				}

				result, err := reconciler.Reconcile(ctx, req)

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
			})
		})

		Context("when the binding has no finalizer yet", func() {
			It("should add the finalizer and requeue without touching AWS", func() {
				binding := newBinding("fresh", []string{policyReadOnly})
				binding.Finalizers = nil
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Requeue).To(BeTrue())
				Expect(getBinding(binding).Finalizers).To(ContainElement(controller.Finalizer))
			})
		})

		Context("when the role does not exist", func() {
			It("should record ownership, create the role and attach the policies", func() {
				binding := newBinding("create-role", []string{policyReadOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(nil, nil).Once()
				mockCloud.On("CreateRole", ctx, mock.MatchedBy(func(in awsclient.CreateRoleInput) bool {
					return in.Name == testRoleName && in.TrustPolicy == trustDoc
				})).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).Return([]string{}, nil).Once()
				mockCloud.On("AttachPolicy", ctx, testRoleName, policyReadOnly).Return(nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))

				fetched := getBinding(binding)
				Expect(fetched.Status.RoleCreated).To(BeTrue())
				Expect(fetched.Status.AttachedPolicies).To(Equal([]string{policyReadOnly}))
				Expect(fetched.Status.ObservedGeneration).To(Equal(fetched.Generation))

				cond := readyCondition(binding)
				Expect(cond).ToNot(BeNil())
				Expect(cond.Status).To(Equal(metav1.ConditionTrue))
			})
		})

		Context("when AWS already matches the spec", func() {
			It("should make no mutating calls", func() {
				binding := newBinding("converged", []string{policyReadOnly, policyFullOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				// Order differs from the spec list; sets are equal.
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).
					Return([]string{policyFullOnly, policyReadOnly}, nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
				Expect(readyCondition(binding).Status).To(Equal(metav1.ConditionTrue))
			})
		})

		Context("when a policy was removed from the spec", func() {
			It("should detach exactly that policy", func() {
				binding := newBinding("shrink", []string{policyReadOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).
					Return([]string{policyReadOnly, policyFullOnly}, nil).Once()
				mockCloud.On("DetachPolicy", ctx, testRoleName, policyFullOnly).Return(nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
				Expect(getBinding(binding).Status.AttachedPolicies).To(Equal([]string{policyReadOnly}))
			})
		})

		Context("when the trust policy drifted out of band", func() {
			It("should rewrite it from the spec", func() {
				binding := newBinding("drifted", nil)
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustpolicy.Revoked,
				}, nil).Once()
				mockCloud.On("UpdateTrustPolicy", ctx, testRoleName, trustDoc).Return(nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).Return([]string{}, nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
			})
		})

		Context("when the spec is invalid", func() {
			It("should set Ready=False with InvalidSpec and not call AWS", func() {
				binding := newBinding("bad-arn", nil)
				binding.Spec.Identity.RoleArn = "arn:aws:iam::123456789012:user/not-a-role"
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result.RequeueAfter).To(Equal(10 * time.Minute))

				cond := readyCondition(binding)
				Expect(cond).ToNot(BeNil())
				Expect(cond.Status).To(Equal(metav1.ConditionFalse))
				Expect(cond.Reason).To(Equal("InvalidSpec"))
			})
		})

		Context("when AWS keeps failing", func() {
			It("should back off with growing delays and keep Ready=False", func() {
				binding := newBinding("flaky", nil)
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				awsError := errors.New("connection reset")
				mockCloud.On("GetRole", ctx, testRoleName).Return(nil, awsError).Twice()

				first, err := reconciler.Reconcile(ctx, requestFor(binding))
				Expect(err).ToNot(HaveOccurred())
				Expect(first.RequeueAfter).To(BeNumerically(">", 0))

				second, err := reconciler.Reconcile(ctx, requestFor(binding))
				Expect(err).ToNot(HaveOccurred())
				Expect(second.RequeueAfter).To(BeNumerically(">", first.RequeueAfter))

				cond := readyCondition(binding)
				Expect(cond).ToNot(BeNil())
				Expect(cond.Status).To(Equal(metav1.ConditionFalse))
				Expect(cond.Reason).To(Equal("Retrying"))
			})
		})

		Context("when an attach fails midway", func() {
			It("should record the policies that landed before requeueing", func() {
				binding := newBinding("partial", []string{policyReadOnly, policyFullOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).Return([]string{}, nil).Once()
				// Sorted order: FullAccess attaches first, ReadOnly fails.
				mockCloud.On("AttachPolicy", ctx, testRoleName, policyFullOnly).Return(nil).Once()
				mockCloud.On("AttachPolicy", ctx, testRoleName, policyReadOnly).
					Return(errors.New("throttled")).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result.RequeueAfter).To(BeNumerically(">", 0))
				Expect(getBinding(binding).Status.AttachedPolicies).To(Equal([]string{policyFullOnly}))
			})
		})
	})

	Describe("Finalization", func() {
		markRoleCreated := func(binding *iamv1alpha1.IAMRoleBinding) {
			binding.Status.RoleCreated = true
			Expect(store.UpdateStatus(ctx, binding)).To(Succeed())
		}

		Context("when the operator created the role", func() {
			It("should detach everything, delete the role and release the binding", func() {
				binding := newBinding("delete-owned", []string{policyReadOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())
				markRoleCreated(binding)
				Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).
					Return([]string{policyReadOnly}, nil).Once()
				mockCloud.On("DetachPolicy", ctx, testRoleName, policyReadOnly).Return(nil).Once()
				mockCloud.On("DeleteRole", ctx, testRoleName).Return(nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))

				fetched := &iamv1alpha1.IAMRoleBinding{}
				getErr := fakeClient.Get(ctx, types.NamespacedName{Namespace: binding.Namespace, Name: binding.Name}, fetched)
				Expect(getErr).To(HaveOccurred())
			})
		})

		Context("when the role pre-existed the binding", func() {
			It("should detach only managed policies and revoke the trust policy", func() {
				binding := newBinding("delete-adopted", []string{policyReadOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())
				Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				// policyFullOnly was attached by someone else and must survive.
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).
					Return([]string{policyReadOnly, policyFullOnly}, nil).Once()
				mockCloud.On("DetachPolicy", ctx, testRoleName, policyReadOnly).Return(nil).Once()
				mockCloud.On("UpdateTrustPolicy", ctx, testRoleName, trustpolicy.Revoked).Return(nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
			})

			It("should leave a trust policy that changed out of band untouched", func() {
				binding := newBinding("delete-foreign-trust", nil)
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())
				Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

				foreignDoc, err := trustpolicy.Build(testProviderArn, "other", "other-sa", "sts.amazonaws.com")
				Expect(err).ToNot(HaveOccurred())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: foreignDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).Return([]string{}, nil).Once()

				result, rerr := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(rerr).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
			})
		})

		Context("when AWS throttles the teardown", func() {
			It("should keep the finalizer and requeue with backoff", func() {
				binding := newBinding("delete-throttled", []string{policyReadOnly})
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())
				markRoleCreated(binding)
				Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
					Arn:         testRoleArn,
					Name:        testRoleName,
					TrustPolicy: trustDoc,
				}, nil).Once()
				mockCloud.On("ListAttachedPolicies", ctx, testRoleName).
					Return([]string{policyReadOnly}, nil).Once()
				mockCloud.On("DetachPolicy", ctx, testRoleName, policyReadOnly).
					Return(errors.New("Throttling: rate exceeded")).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result.RequeueAfter).To(BeNumerically(">", 0))
				Expect(getBinding(binding).Finalizers).To(ContainElement(controller.Finalizer))
			})
		})

		Context("when the role is already gone", func() {
			It("should release the binding without mutating AWS", func() {
				binding := newBinding("delete-gone", nil)
				Expect(fakeClient.Create(ctx, binding)).To(Succeed())
				Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

				mockCloud.On("GetRole", ctx, testRoleName).Return(nil, nil).Once()

				result, err := reconciler.Reconcile(ctx, requestFor(binding))

				Expect(err).ToNot(HaveOccurred())
				Expect(result).To(Equal(ctrl.Result{}))
			})
		})
	})

	Describe("Cluster access", func() {
		var authCM *corev1.ConfigMap

		BeforeEach(func() {
			reconciler.AuthMap = awsauth.NewManager(store, log.Log)

			authCM = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:      awsauth.ConfigMapName,
					Namespace: awsauth.ConfigMapNamespace,
				},
			}
			Expect(fakeClient.Create(ctx, authCM)).To(Succeed())
		})

		mapRolesData := func() string {
			cm := &corev1.ConfigMap{}
			Expect(fakeClient.Get(ctx, awsauth.ConfigMapKey, cm)).To(Succeed())
			return cm.Data["mapRoles"]
		}

		It("should project the binding into aws-auth mapRoles", func() {
			binding := newBinding("with-access", nil)
			binding.Spec.ClusterAccess = &iamv1alpha1.ClusterAccessSpec{
				Username: "app-user",
				Groups:   []string{"system:masters"},
			}
			Expect(fakeClient.Create(ctx, binding)).To(Succeed())

			mockCloud.On("GetRole", ctx, testRoleName).Return(&awsclient.RoleState{
				Arn:         testRoleArn,
				Name:        testRoleName,
				TrustPolicy: trustDoc,
			}, nil).Once()
			mockCloud.On("ListAttachedPolicies", ctx, testRoleName).Return([]string{}, nil).Once()

			result, err := reconciler.Reconcile(ctx, requestFor(binding))

			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			entries, err := awsauth.ParseMapRoles(mapRolesData())
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].RoleArn).To(Equal(testRoleArn))
			Expect(entries[0].Username).To(Equal("app-user"))
			Expect(entries[0].Groups).To(Equal([]string{"system:masters"}))
		})

		It("should remove the mapRoles entry on finalization", func() {
			binding := newBinding("drop-access", nil)
			binding.Spec.ClusterAccess = &iamv1alpha1.ClusterAccessSpec{Username: "app-user"}
			Expect(fakeClient.Create(ctx, binding)).To(Succeed())

			entries, _ := awsauth.Upsert(nil, awsauth.MapRole{RoleArn: testRoleArn, Username: "app-user"})
			serialized, err := awsauth.SerializeMapRoles(entries)
			Expect(err).ToNot(HaveOccurred())
			authCM.Data = map[string]string{"mapRoles": serialized}
			Expect(fakeClient.Update(ctx, authCM)).To(Succeed())

			Expect(fakeClient.Delete(ctx, binding)).To(Succeed())

			mockCloud.On("GetRole", ctx, testRoleName).Return(nil, nil).Once()

			result, rerr := reconciler.Reconcile(ctx, requestFor(binding))

			Expect(rerr).ToNot(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			remaining, err := awsauth.ParseMapRoles(mapRolesData())
			Expect(err).ToNot(HaveOccurred())
			Expect(remaining).To(BeEmpty())
		})
	})
})
