package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Total AWS IAM API errors, labeled by operation
	CloudAPIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_binding_cloud_api_errors_total",
			Help: "Total number of AWS IAM API errors, labeled by operation (get-role, create-role, update-trust-policy, list-attached-policies, attach-policy, detach-policy, delete-role)",
		},
		[]string{"operation"},
	)

	// Reconciliation outcomes, labeled by result
	Reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iam_binding_reconciles_total",
			Help: "Total number of IAMRoleBinding reconciliations, labeled by result (converged, requeued, finalized, invalid)",
		},
		[]string{"result"},
	)

	// Number of bindings currently carrying the operator finalizer
	BindingsManaged = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "iam_binding_bindings_managed",
			Help: "Number of IAMRoleBindings managed by the operator",
		},
	)
)

// RegisterMetrics registers all custom metrics with the given Prometheus registry
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(CloudAPIErrors)
	registry.MustRegister(Reconciles)
	registry.MustRegister(BindingsManaged)
}

// IncCloudError increments the cloud API error counter for a given operation
func IncCloudError(operation string) {
	CloudAPIErrors.WithLabelValues(operation).Inc()
}

// IncReconcile increments the reconcile counter for a given result
func IncReconcile(result string) {
	Reconciles.WithLabelValues(result).Inc()
}

// SetBindingsManaged sets the gauge for the number of managed bindings
func SetBindingsManaged(count int) {
	BindingsManaged.Set(float64(count))
}
