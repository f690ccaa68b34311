// Package lambdadecision is the Lambda entry point for Sentinel's
// decision endpoint: it wires the same Orchestrator cmd/sentinel's
// `serve` command builds, configured from environment variables
// instead of a YAML document, since environment variables are the
// only configuration surface a Lambda deployment carries for the
// same underlying collaborators.
package lambdadecision

import (
	"fmt"
	"os"
	"strings"
)

// Environment variable names, all SENTINEL_-namespaced.
const (
	EnvRulesPath      = "SENTINEL_RULES_PATH"
	EnvModelPath      = "SENTINEL_MODEL_PATH"
	EnvCalibratorPath = "SENTINEL_CALIBRATOR_PATH"

	EnvBackend = "SENTINEL_BACKEND"
	EnvRegion  = "AWS_REGION"

	EnvSessionTable       = "SENTINEL_SESSION_TABLE"
	EnvSessionEventsTable = "SENTINEL_SESSION_EVENTS_TABLE"

	EnvSecurityEventsTable = "SENTINEL_SECURITY_EVENTS_TABLE"
	EnvAPIAccessTable      = "SENTINEL_API_ACCESS_TABLE"
	EnvBlockedSourcesTable = "SENTINEL_BLOCKED_SOURCES_TABLE"
	EnvAuditTrailTable     = "SENTINEL_AUDIT_TRAIL_TABLE"

	EnvRateLimitTable = "SENTINEL_RATE_LIMIT_TABLE"
	EnvDeviceTable    = "SENTINEL_DEVICE_TABLE"
	EnvDefaultTier    = "SENTINEL_DEFAULT_TIER"

	// EnvPrivilegedEndpoints is a comma-separated list, e.g.
	// "POST /v1/security/sources/{id}/unblock,GET /v1/security/audit-trail".
	EnvPrivilegedEndpoints = "SENTINEL_PRIVILEGED_ENDPOINTS"

	EnvIPReputationSecretID = "SENTINEL_IP_REPUTATION_SECRET_ID"
	EnvIPReputationEndpoint = "SENTINEL_IP_REPUTATION_ENDPOINT"

	EnvSNSTopicARN = "SENTINEL_SNS_TOPIC_ARN"
	EnvWebhookURL  = "SENTINEL_WEBHOOK_URL"

	EnvLogSigningKeyHex = "SENTINEL_LOG_SIGNING_KEY"
	EnvLogSigningKeyID  = "SENTINEL_LOG_SIGNING_KEY_ID"

	EnvCloudWatchLogGroup  = "SENTINEL_CLOUDWATCH_LOG_GROUP"
	EnvCloudWatchLogStream = "SENTINEL_CLOUDWATCH_STREAM"
)

// Config is lambdadecision's env-sourced counterpart to cmd/sentinel's
// AppConfig. Field meanings match exactly; see cmd/sentinel/config.go.
type Config struct {
	RulesPath      string
	ModelPath      string
	CalibratorPath string

	Backend string
	Region  string

	SessionTable       string
	SessionEventsTable string

	SecurityEventsTable string
	APIAccessTable      string
	BlockedSourcesTable string
	AuditTrailTable     string

	RateLimitTable string
	DeviceTable    string
	DefaultTier    string

	PrivilegedEndpoints []string

	IPReputationSecretID string
	IPReputationEndpoint string

	SNSTopicARN string
	WebhookURL  string

	LogSigningKeyHex string
	LogSigningKeyID  string

	CloudWatchLogGroup  string
	CloudWatchLogStream string
}

// LoadConfigFromEnv reads Config from the process environment. A
// Lambda deployment's model and calibrator artifacts are expected to
// ship inside the deployment package (Lambda's read-only /var/task),
// so the path env vars default to that layout's natural location.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		RulesPath:      envOr(EnvRulesPath, "rules.yaml"),
		ModelPath:      envOr(EnvModelPath, "model.json"),
		CalibratorPath: os.Getenv(EnvCalibratorPath),

		Backend: envOr(EnvBackend, "dynamodb"),
		Region:  os.Getenv(EnvRegion),

		SessionTable:       os.Getenv(EnvSessionTable),
		SessionEventsTable: os.Getenv(EnvSessionEventsTable),

		SecurityEventsTable: os.Getenv(EnvSecurityEventsTable),
		APIAccessTable:      os.Getenv(EnvAPIAccessTable),
		BlockedSourcesTable: os.Getenv(EnvBlockedSourcesTable),
		AuditTrailTable:     os.Getenv(EnvAuditTrailTable),

		RateLimitTable: os.Getenv(EnvRateLimitTable),
		DeviceTable:    os.Getenv(EnvDeviceTable),
		DefaultTier:    envOr(EnvDefaultTier, "basic"),

		IPReputationSecretID: os.Getenv(EnvIPReputationSecretID),
		IPReputationEndpoint: os.Getenv(EnvIPReputationEndpoint),

		SNSTopicARN: os.Getenv(EnvSNSTopicARN),
		WebhookURL:  os.Getenv(EnvWebhookURL),

		LogSigningKeyHex: os.Getenv(EnvLogSigningKeyHex),
		LogSigningKeyID:  os.Getenv(EnvLogSigningKeyID),

		CloudWatchLogGroup:  os.Getenv(EnvCloudWatchLogGroup),
		CloudWatchLogStream: os.Getenv(EnvCloudWatchLogStream),
	}
	if v := os.Getenv(EnvPrivilegedEndpoints); v != "" {
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.PrivilegedEndpoints = append(cfg.PrivilegedEndpoints, e)
			}
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects an incomplete Config before Build touches AWS, the
// same reject-at-load discipline as cmd/sentinel's AppConfig.Validate.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("lambdadecision: %s is required", EnvModelPath)
	}
	if c.Backend != "memory" && c.Backend != "dynamodb" {
		return fmt.Errorf("lambdadecision: %s must be memory or dynamodb, got %q", EnvBackend, c.Backend)
	}
	if c.Backend == "dynamodb" {
		if c.Region == "" {
			return fmt.Errorf("lambdadecision: %s is required for the dynamodb backend", EnvRegion)
		}
		required := map[string]string{
			EnvSessionTable:        c.SessionTable,
			EnvSessionEventsTable:  c.SessionEventsTable,
			EnvSecurityEventsTable: c.SecurityEventsTable,
			EnvAPIAccessTable:      c.APIAccessTable,
			EnvBlockedSourcesTable: c.BlockedSourcesTable,
			EnvAuditTrailTable:     c.AuditTrailTable,
			EnvRateLimitTable:      c.RateLimitTable,
			EnvDeviceTable:         c.DeviceTable,
		}
		for name, v := range required {
			if v == "" {
				return fmt.Errorf("lambdadecision: %s is required for the dynamodb backend", name)
			}
		}
	}
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
