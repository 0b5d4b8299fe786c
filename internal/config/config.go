package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	koanf "github.com/knadh/koanf/v2"
)

// Config holds operator-wide settings loaded from the config file.
type Config struct {
	// AWS region the IAM client signs requests for.
	AWSRegion string `koanf:"awsRegion"`

	// Default OIDC identity provider ARN used in rendered trust policies
	// when a binding does not set its own.
	OIDCProviderArn string `koanf:"oidcProviderArn"`

	// Default audience claim for projected service account tokens.
	DefaultAudience string `koanf:"defaultAudience"`

	// Whether bindings with clusterAccess maintain aws-auth mapRoles entries.
	ManageAWSAuth bool `koanf:"manageAWSAuth"`

	// Number of bindings reconciled in parallel.
	Concurrency int `koanf:"concurrency"`

	// Full re-reconciliation period correcting out-of-band drift.
	ResyncInterval time.Duration `koanf:"resyncInterval"`

	// Requeue backoff bounds for failed reconciliations.
	BackoffBase time.Duration `koanf:"backoffBase"`
	BackoffCap  time.Duration `koanf:"backoffCap"`
}

var defaultConfig = Config{
	AWSRegion:       "eu-west-1",
	DefaultAudience: "sts.amazonaws.com",
	ManageAWSAuth:   true,
	Concurrency:     2,
	ResyncInterval:  10 * time.Minute,
	BackoffBase:     time.Second,
	BackoffCap:      5 * time.Minute,
}

// GetConfig loads defaults, overlays the YAML file at configPath when it is
// non-empty, and validates the result.
func GetConfig(configPath string) (*Config, error) {
	k := koanf.New(".")
	cfg := &Config{}

	if err := k.Load(structs.Provider(defaultConfig, "koanf"), nil); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff bounds invalid: base=%s cap=%s", c.BackoffBase, c.BackoffCap)
	}
	if c.ResyncInterval <= 0 {
		return fmt.Errorf("resyncInterval must be positive, got %s", c.ResyncInterval)
	}
	return nil
}
