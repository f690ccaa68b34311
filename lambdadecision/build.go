package lambdadecision

import (
	"context"
	"encoding/hex"
	"fmt"
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
	"github.com/byteness/sentinel-fraud/logging"
	"github.com/byteness/sentinel-fraud/mlscore"
	"github.com/byteness/sentinel-fraud/notification"
	"github.com/byteness/sentinel-fraud/orchestrator"
	"github.com/byteness/sentinel-fraud/policy"
	"github.com/byteness/sentinel-fraud/ratelimit"
	"github.com/byteness/sentinel-fraud/security"
	"github.com/byteness/sentinel-fraud/session"
)

// Build wires an Orchestrator from cfg, following the same collaborator
// graph as cmd/sentinel's build (see that package's wire.go): rules,
// model, thresholds, then a storage backend selection, the rate
// limiter and security monitor over it, and finally the decision log
// sink. Lambda's cold-start path calls this once per warm container,
// not once per invocation.
func Build(ctx context.Context, cfg Config) (*orchestrator.Orchestrator, error) {
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
	if notifier := buildNotifier(ctx, cfg); notifier != nil {
		monitor.WithNotifier(notifier)
	}

	var ipRep feature.IPReputation = feature.NewMemoryIPReputation()
	if cfg.IPReputationSecretID != "" && cfg.IPReputationEndpoint != "" {
		if cfg.Backend != "dynamodb" {
			awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
			if err != nil {
				return nil, sentinelerrors.NewConfigError("load AWS config", err)
			}
		}
		client, err := feature.NewSecretsIPReputationClient(ctx, awsCfg, cfg.IPReputationSecretID, cfg.IPReputationEndpoint)
		if err != nil {
			return nil, sentinelerrors.NewConfigError("ip reputation client", err)
		}
		ipRep = client
	}

	logger, err := buildLogger(ctx, cfg)
	if err != nil {
		return nil, sentinelerrors.NewConfigError("logging", err)
	}

	return orchestrator.New(orchestrator.Config{
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
		PrivilegedEndpoints: cfg.PrivilegedEndpoints,
		Logger:              logger,
	}), nil
}

func buildNotifier(ctx context.Context, cfg Config) notification.Notifier {
	var notifiers []notification.Notifier
	if cfg.SNSTopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			log.Printf("lambdadecision: failed to load AWS config for SNS notifier: %v", err)
		} else {
			notifiers = append(notifiers, notification.NewSNSNotifier(awsCfg, cfg.SNSTopicARN))
		}
	}
	if cfg.WebhookURL != "" {
		wh, err := notification.NewWebhookNotifier(notification.WebhookConfig{URL: cfg.WebhookURL})
		if err != nil {
			log.Printf("lambdadecision: failed to configure webhook notifier: %v", err)
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

func buildLogger(ctx context.Context, cfg Config) (logging.Logger, error) {
	var signConfig *logging.SignatureConfig
	if cfg.LogSigningKeyHex != "" {
		key, err := hex.DecodeString(cfg.LogSigningKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvLogSigningKeyHex, err)
		}
		signConfig = &logging.SignatureConfig{SecretKey: key, KeyID: cfg.LogSigningKeyID}
		if err := signConfig.Validate(); err != nil {
			return nil, fmt.Errorf("log signing config: %w", err)
		}
	}

	if cfg.CloudWatchLogGroup != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config for CloudWatch logger: %w", err)
		}
		stream := cfg.CloudWatchLogStream
		if stream == "" {
			stream = os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
		}
		if stream == "" {
			stream = "sentinel-decision"
		}
		return logging.NewCloudWatchLogger(awsCfg, &logging.CloudWatchConfig{
			LogGroupName:  cfg.CloudWatchLogGroup,
			LogStreamName: stream,
			SignConfig:    signConfig,
		}), nil
	}

	if signConfig != nil {
		return logging.NewSignedLogger(os.Stdout, signConfig), nil
	}
	return logging.NewJSONLogger(os.Stdout), nil
}
