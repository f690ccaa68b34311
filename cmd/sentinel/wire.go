package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/byteness/sentinel-fraud/decision"
	"github.com/byteness/sentinel-fraud/device"
	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/feature"
	"github.com/byteness/sentinel-fraud/httpapi"
	"github.com/byteness/sentinel-fraud/infrastructure"
	"github.com/byteness/sentinel-fraud/logging"
	"github.com/byteness/sentinel-fraud/mlscore"
	"github.com/byteness/sentinel-fraud/notification"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/policy"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/secaccess"
	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/session"
	"github.com/byteness/sentinel-fraud/telemetry"
)

// app bundles the process's long-lived singletons: every
// collaborator is created exactly once here and handed to request
// handlers, never recreated per request.
type app struct {
	orchestrator *orchestrator.Orchestrator
	server       *httpapi.Server
	limiter      ratelimit.Limiter
}

// build wires every collaborator into one Orchestrator and HTTP
// Server, following the backend selection in cfg. A config error (a
// missing or malformed model artifact, an unreachable rules document)
// is fatal here and only here; once serving, configuration problems
// never take the process down.
func build(ctx context.Context, cfg AppConfig) (*app, error) {
	rules, err := policy.LoadConfigFile(cfg.RulesPath)
	if err != nil {
		return nil, sentinelerrors.NewConfigError("load rules", err)
	}

	model, err := mlscore.LoadModel(cfg.ModelPath, cfg.CalibratorPath)
	if err != nil {
		return nil, sentinelerrors.NewConfigError("load model", err)
	}

	thresholds := decision.DefaultThresholds()
	if err := thresholds.Validate(); err != nil {
		return nil, sentinelerrors.NewConfigError("policy thresholds", err)
	}

	defaultTier, err := ratelimit.ParseTier(cfg.DefaultTier)
	if err != nil {
		return nil, sentinelerrors.NewConfigError("default tier", err)
	}

	var (
		events   eventstore.Store
		sessions session.Store
		devices  feature.DeviceRegistry
		rlStore  ratelimit.Store
		awsCfg   aws.Config
	)

	switch cfg.Backend {
	case "dynamodb":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, sentinelerrors.NewConfigError("load AWS config", err)
		}
		events = eventstore.NewDynamoDBStore(awsCfg, eventstore.Tables{
			SecurityEvents: cfg.SecurityEventsTable,
			APIAccess:      cfg.APIAccessTable,
			BlockedSources: cfg.BlockedSourcesTable,
			AuditTrail:     cfg.AuditTrailTable,
		})
		sessions = session.NewCachedStore(session.NewDynamoDBStore(awsCfg, cfg.SessionTable, cfg.SessionEventsTable))
		devices = device.NewDynamoDBRegistry(awsCfg, cfg.DeviceTable)
		rlStore, err = ratelimit.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.RateLimitTable)
		if err != nil {
			return nil, sentinelerrors.NewConfigError("rate limit store", err)
		}
	default:
		events = eventstore.NewMemoryStore()
		sessions = session.NewCachedStore(session.NewMemoryStore())
		devices = device.NewMemoryRegistry()
		rlStore = nil
	}

	limiter := ratelimit.NewMemoryLimiter(defaultTier, rlStore, events)
	blocker := orchestrator.NewBlocker(events, limiter)
	monitor := security.NewMonitor(blocker)

	if notifier := buildNotifier(cfg); notifier != nil {
		monitor.WithNotifier(notifier)
	}

	awsLoaded := cfg.Backend == "dynamodb"
	ensureAWS := func() error {
		if awsLoaded {
			return nil
		}
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return sentinelerrors.NewConfigError("load AWS config", err)
		}
		awsLoaded = true
		return nil
	}

	var ipRep feature.IPReputation = feature.NewMemoryIPReputation()
	if cfg.IPReputationSecretID != "" && cfg.IPReputationEndpoint != "" {
		if err := ensureAWS(); err != nil {
			return nil, err
		}
		client, err := feature.NewSecretsIPReputationClient(ctx, awsCfg, cfg.IPReputationSecretID, cfg.IPReputationEndpoint)
		if err != nil {
			return nil, sentinelerrors.NewConfigError("ip reputation client", err)
		}
		ipRep = client
	}

	var metrics orchestrator.MetricsRecorder
	if cfg.MetricsNamespace != "" {
		if err := ensureAWS(); err != nil {
			return nil, err
		}
		metrics = telemetry.NewMetrics(awsCfg, cfg.MetricsNamespace)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, sentinelerrors.NewConfigError("logging", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		RateLimiter:         limiter,
		History:             feature.NewMemoryHistory(),
		Devices:             devices,
		IPRep:               ipRep,
		Distance:            feature.StaticDistance(nil),
		Rules:               rules,
		Model:               model,
		Thresholds:          thresholds,
		Sessions:            sessions,
		Security:            monitor,
		Events:              events,
		Metrics:             metrics,
		PrivilegedEndpoints: cfg.PrivilegedEndpoints,
		Logger:              logger,
	})

	var auth httpapi.Authenticator
	if cfg.AnalystAuthRequired {
		auth = secaccess.NewAuthenticator(cfg.Region)
	}

	server := httpapi.New(httpapi.Config{
		Orchestrator: orch,
		Sessions:     sessions,
		Events:       events,
		RateLimiter:  limiter,
		Model:        model,
		RulesVersion: rules.Version,
		Auth:         auth,
	})

	return &app{orchestrator: orch, server: server, limiter: limiter}, nil
}

// buildNotifier wires SNS and/or webhook alerting for level-4
// security events. Both unset means security events still auto-block;
// they simply have no SOC-alerting leg.
func buildNotifier(cfg AppConfig) notification.Notifier {
	var notifiers []notification.Notifier
	if cfg.SNSTopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			log.Printf("sentinel: failed to load AWS config for SNS notifier: %v", err)
		} else {
			notifiers = append(notifiers, notification.NewSNSNotifier(awsCfg, cfg.SNSTopicARN))
		}
	}
	if cfg.WebhookURL != "" {
		wh, err := notification.NewWebhookNotifier(notification.WebhookConfig{URL: cfg.WebhookURL})
		if err != nil {
			log.Printf("sentinel: failed to configure webhook notifier: %v", err)
		} else {
			notifiers = append(notifiers, wh)
		}
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notification.NewMultiNotifier(notifiers...)
	}
}

// buildLogger wires the decision/security/session JSON log sink: a
// local signed or unsigned JSONLogger by default, or a CloudWatchLogger
// (itself optionally signed) when a log group is configured. Signing
// and CloudWatch delivery are independent knobs, matching
// logging.CloudWatchConfig's own SignConfig field.
func buildLogger(cfg AppConfig) (logging.Logger, error) {
	var signConfig *logging.SignatureConfig
	if cfg.LogSigningKeyHex != "" {
		key, err := hex.DecodeString(cfg.LogSigningKeyHex)
		if err != nil {
			return nil, fmt.Errorf("log_signing_key_hex: %w", err)
		}
		signConfig = &logging.SignatureConfig{SecretKey: key, KeyID: cfg.LogSigningKeyID}
		if err := signConfig.Validate(); err != nil {
			return nil, fmt.Errorf("log signing config: %w", err)
		}
	}

	if cfg.CloudWatchLogGroup != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config for CloudWatch logger: %w", err)
		}
		stream := cfg.CloudWatchLogStream
		if stream == "" {
			stream = "sentinel"
		}
		return logging.NewCloudWatchLogger(awsCfg, &logging.CloudWatchConfig{
			LogGroupName:  cfg.CloudWatchLogGroup,
			LogStreamName: stream,
			SignConfig:    signConfig,
		}), nil
	}

	var w io.Writer = os.Stdout
	if signConfig != nil {
		return logging.NewSignedLogger(w, signConfig), nil
	}
	return logging.NewJSONLogger(w), nil
}

// tableSchemas returns the full set of DynamoDB table schemas the
// dynamodb backend needs, in the same grouping build() uses to
// construct the stores themselves: session, event store (security
// events/API access/blocked sources/audit trail), rate limit
// overrides, and device registry.
func tableSchemas(cfg AppConfig) []infrastructure.TableSchema {
	schemas := []infrastructure.TableSchema{
		infrastructure.SessionTableSchema(cfg.SessionTable),
		infrastructure.SessionEventsTableSchema(cfg.SessionEventsTable),
	}
	schemas = append(schemas, infrastructure.EventStoreTableSchemas(
		cfg.SecurityEventsTable, cfg.APIAccessTable, cfg.BlockedSourcesTable, cfg.AuditTrailTable,
	)...)
	schemas = append(schemas,
		infrastructure.RateLimitTableSchema(cfg.RateLimitTable),
		infrastructure.DeviceTableSchema(cfg.DeviceTable),
	)
	return schemas
}
