package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig is cmd/sentinel's own startup document: the listen
// address, storage backend selection, and the paths/ARNs every
// collaborator in wire.go needs. It is distinct from policy.Config
// (the rules document) and decision.Thresholds (the combiner cut
// points), both of which are loaded separately at startup; the
// running process has no reload path, so a change to either takes a
// restart.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RulesPath      string `yaml:"rules_path"`
	ModelPath      string `yaml:"model_path"`
	CalibratorPath string `yaml:"calibrator_path"`

	// Backend selects the storage implementation for the event store,
	// session store, and rate limiter: "memory" (default, single
	// process, no persistence across restarts) or "dynamodb".
	Backend string `yaml:"backend"`
	Region  string `yaml:"region"`

	SessionTable       string `yaml:"session_table"`
	SessionEventsTable string `yaml:"session_events_table"`

	SecurityEventsTable string `yaml:"security_events_table"`
	APIAccessTable      string `yaml:"api_access_table"`
	BlockedSourcesTable string `yaml:"blocked_sources_table"`
	AuditTrailTable     string `yaml:"audit_trail_table"`

	RateLimitTable string `yaml:"rate_limit_table"`
	DeviceTable    string `yaml:"device_table"`

	DefaultTier string `yaml:"default_tier"`

	// PrivilegedEndpoints is the explicit, startup-configured set of
	// endpoints treated as privileged by the insider-threat detectors.
	PrivilegedEndpoints []string `yaml:"privileged_endpoints"`

	// AnalystAuthRequired guards the session and security endpoints
	// with STS bearer-credential authentication. Requires region.
	AnalystAuthRequired bool `yaml:"analyst_auth_required"`

	// IPReputationSecretID and IPReputationEndpoint configure the
	// Secrets-Manager-backed IP reputation client. Both empty means no
	// external lookup; feature.Extract then uses the documented
	// default (0.5 risk) for every source address.
	IPReputationSecretID string `yaml:"ip_reputation_secret_id"`
	IPReputationEndpoint string `yaml:"ip_reputation_endpoint"`

	SNSTopicARN string `yaml:"sns_topic_arn"`
	WebhookURL  string `yaml:"webhook_url"`

	// MetricsNamespace enables CloudWatch metric publication under the
	// given namespace. Empty disables it. Requires region.
	MetricsNamespace string `yaml:"metrics_namespace"`

	LogSigningKeyHex string `yaml:"log_signing_key_hex"`
	LogSigningKeyID  string `yaml:"log_signing_key_id"`

	CloudWatchLogGroup  string `yaml:"cloudwatch_log_group"`
	CloudWatchLogStream string `yaml:"cloudwatch_log_stream"`
}

// DefaultAppConfig returns sentinel serve's defaults: in-memory
// backends, a local model artifact pair, and no external alerting.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ListenAddr:     ":8443",
		RulesPath:      "rules.yaml",
		ModelPath:      "model.json",
		CalibratorPath: "calibrator.json",
		Backend:        "memory",
		DefaultTier:    "basic",
	}
}

// LoadAppConfig reads AppConfig from a local YAML document, filling
// unset fields from DefaultAppConfig.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("sentinel: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("sentinel: parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects an internally inconsistent AppConfig at load time
// rather than at first use, in policy.Config's style.
func (c AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("sentinel: listen_addr is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("sentinel: model_path is required")
	}
	switch c.Backend {
	case "memory":
	case "dynamodb":
		if c.Region == "" {
			return fmt.Errorf("sentinel: region is required for the dynamodb backend")
		}
		missing := map[string]string{
			"session_table":         c.SessionTable,
			"session_events_table":  c.SessionEventsTable,
			"security_events_table": c.SecurityEventsTable,
			"api_access_table":      c.APIAccessTable,
			"blocked_sources_table": c.BlockedSourcesTable,
			"audit_trail_table":     c.AuditTrailTable,
			"rate_limit_table":      c.RateLimitTable,
			"device_table":          c.DeviceTable,
		}
		for name, v := range missing {
			if v == "" {
				return fmt.Errorf("sentinel: %s is required for the dynamodb backend", name)
			}
		}
	default:
		return fmt.Errorf("sentinel: unknown backend %q (want memory or dynamodb)", c.Backend)
	}
	if c.AnalystAuthRequired && c.Region == "" {
		return fmt.Errorf("sentinel: region is required when analyst_auth_required is set")
	}
	if c.MetricsNamespace != "" && c.Region == "" {
		return fmt.Errorf("sentinel: region is required when metrics_namespace is set")
	}
	return nil
}
