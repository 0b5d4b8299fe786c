package main

import (
	"context"
	"flag"
	"os"

	"github.com/cloudbind/iam-binding-operator/internal/awsauth"
	"github.com/cloudbind/iam-binding-operator/internal/awsclient"
	"github.com/cloudbind/iam-binding-operator/internal/config"
	"github.com/cloudbind/iam-binding-operator/internal/controller"
	"github.com/cloudbind/iam-binding-operator/internal/k8sclient"
	metrics "github.com/cloudbind/iam-binding-operator/pkg/metrics"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	iamv1alpha1 "github.com/cloudbind/iam-binding-operator/api/v1alpha1"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(iamv1alpha1.AddToScheme(scheme))
}

func main() {
	ctx := context.Background()
	var metricsAddr string
	var enableLeaderElection bool
	var probeAddr string
	var configPath string
	var oidcProviderArn string
	var devMode bool

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.StringVar(&configPath, "config", "", "Path to the operator config file")
	flag.StringVar(&oidcProviderArn, "oidc-provider-arn", "", "Default OIDC identity provider ARN for trust policies")
	flag.BoolVar(&devMode, "dev-mode", false, "Enable development logging mode (more verbose logs)")

	opts := zap.Options{
		Development: devMode,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.GetConfig(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load config")
		os.Exit(1)
	}
	if oidcProviderArn != "" {
		cfg.OIDCProviderArn = oidcProviderArn
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "iam-binding-operator.cloudbind.io",
		Cache: cache.Options{
			// Periodic resync re-reconciles every binding so out-of-band
			// AWS drift gets corrected even without spec edits.
			SyncPeriod: &cfg.ResyncInterval,
		},
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}
	// Register custom metrics
	metrics.RegisterMetrics(ctrlmetrics.Registry)

	cloudClient, err := awsclient.NewClient(ctx, cfg.AWSRegion, ctrl.Log.WithName("awsclient"))
	if err != nil {
		setupLog.Error(err, "unable to create AWS client")
		os.Exit(1)
	}

	store := k8sclient.NewClient(mgr.GetClient())

	var authMap *awsauth.Manager
	if cfg.ManageAWSAuth {
		authMap = awsauth.NewManager(store, ctrl.Log.WithName("awsauth"))
	}

	reconciler := &controller.IAMRoleBindingReconciler{
		Client:          mgr.GetClient(),
		Scheme:          mgr.GetScheme(),
		Log:             ctrl.Log.WithName("controllers").WithName("IAMRoleBinding"),
		Store:           store,
		Cloud:           cloudClient,
		AuthMap:         authMap,
		OIDCProviderArn: cfg.OIDCProviderArn,
		DefaultAudience: cfg.DefaultAudience,
		Concurrency:     cfg.Concurrency,
		ResyncInterval:  cfg.ResyncInterval,
		BackoffBase:     cfg.BackoffBase,
		BackoffCap:      cfg.BackoffCap,
	}

	if err = reconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "IAMRoleBinding")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
