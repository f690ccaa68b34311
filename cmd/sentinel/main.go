// Command sentinel runs the fraud decision middleware's HTTP surface:
// the decision endpoint, the session and security query/mutation
// endpoints, and a standalone rules-document validator used in CI
// and before deploying a rules document.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/byteness/sentinel-fraud/audit"
	"github.com/byteness/sentinel-fraud/eventstore"
	"github.com/byteness/sentinel-fraud/infrastructure"
	"github.com/byteness/sentinel-fraud/policy"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	app := kingpin.New("sentinel", "Real-time fraud decision middleware")
	app.Version(Version)

	configureServeCommand(app)
	configureRulesValidateCommand(app)
	configureHealthCommand(app)
	configureProvisionCommand(app)
	configureAuditCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// configureServeCommand wires the `serve` subcommand: load AppConfig,
// build every collaborator, and mount the HTTP surface.
func configureServeCommand(app *kingpin.Application) {
	var configPath string

	cmd := app.Command("serve", "Start the decision and security API server")
	cmd.Flag("config", "Path to the sentinel YAML config file").StringVar(&configPath)

	cmd.Action(func(*kingpin.ParseContext) error {
		cfg, err := LoadAppConfig(configPath)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := build(ctx, cfg)
		if err != nil {
			return fmt.Errorf("sentinel: startup failed: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           a.server.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Printf("sentinel: listening on %s (backend=%s)", cfg.ListenAddr, cfg.Backend)
		return srv.ListenAndServe()
	})
}

// configureRulesValidateCommand wires `rules validate` and
// `rules reload`: standalone checks that a rules YAML document parses
// and is internally consistent, run before a document is deployed.
// Neither command touches a running process; the server reads its
// rules document only at startup.
func configureRulesValidateCommand(app *kingpin.Application) {
	rules := app.Command("rules", "Inspect and validate rules documents")

	var path string
	validate := rules.Command("validate", "Validate a rules YAML document")
	validate.Arg("path", "Path to the rules YAML document").Required().StringVar(&path)
	validate.Action(func(*kingpin.ParseContext) error {
		cfg, err := policy.LoadConfigFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("ok: rules document %s version %s is valid\n", path, cfg.Version)
		return nil
	})

	var oldPath, newPath string
	reload := rules.Command("reload", "Validate a candidate rules document against the currently loaded one")
	reload.Arg("current", "Path to the currently loaded rules document").Required().StringVar(&oldPath)
	reload.Arg("candidate", "Path to the candidate replacement document").Required().StringVar(&newPath)
	reload.Action(func(*kingpin.ParseContext) error {
		if _, err := policy.LoadConfigFile(oldPath); err != nil {
			return fmt.Errorf("current document: %w", err)
		}
		candidate, err := policy.LoadConfigFile(newPath)
		if err != nil {
			return fmt.Errorf("candidate document: %w", err)
		}
		fmt.Printf("ok: candidate rules document %s version %s validated; "+
			"restart the server with it to apply it\n", newPath, candidate.Version)
		return nil
	})
}

// configureProvisionCommand wires `provision`: create every DynamoDB
// table the dynamodb backend needs via
// infrastructure.TableProvisioner, idempotently (existing ACTIVE
// tables are left untouched).
func configureProvisionCommand(app *kingpin.Application) {
	var configPath string
	var dryRun bool

	cmd := app.Command("provision", "Create the DynamoDB tables the dynamodb backend requires")
	cmd.Flag("config", "Path to the sentinel YAML config file").StringVar(&configPath)
	cmd.Flag("dry-run", "Print what would be provisioned without calling AWS").BoolVar(&dryRun)

	cmd.Action(func(*kingpin.ParseContext) error {
		cfg, err := LoadAppConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Backend != "dynamodb" {
			return fmt.Errorf("sentinel: provision only applies to the dynamodb backend, got %q", cfg.Backend)
		}

		schemas := tableSchemas(cfg)
		if dryRun {
			for _, s := range schemas {
				fmt.Printf("would provision %s (gsis=%v ttl=%q)\n", s.TableName, s.GSINames(), s.TTLAttribute)
			}
			return nil
		}

		ctx := context.Background()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return fmt.Errorf("sentinel: load AWS config: %w", err)
		}
		provisioner := infrastructure.NewTableProvisioner(awsCfg)

		for _, s := range schemas {
			result, err := provisioner.Create(ctx, s)
			if err != nil {
				return fmt.Errorf("sentinel: provision %s: %w", s.TableName, err)
			}
			if result.Err != nil {
				return fmt.Errorf("sentinel: provision %s: %w", s.TableName, result.Err)
			}
			fmt.Printf("%s: %s\n", result.TableName, result.Status)
		}
		return nil
	})
}

// configureAuditCommand wires `audit verify`: a SOC sweep comparing
// the local audit trail against CloudTrail over a time window. Only
// the dynamodb backend applies; an in-memory audit trail belongs to a
// live process this command cannot see into.
func configureAuditCommand(app *kingpin.Application) {
	auditCmd := app.Command("audit", "Audit-trail integrity checks")

	var (
		configPath string
		actor      string
		startStr   string
		endStr     string
	)
	verify := auditCmd.Command("verify", "Cross-check the local audit trail against CloudTrail")
	verify.Flag("config", "Path to the sentinel YAML config file").StringVar(&configPath)
	verify.Flag("actor", "Narrow the sweep to one analyst username").StringVar(&actor)
	verify.Flag("start", "Window start (RFC3339, default 24h ago)").StringVar(&startStr)
	verify.Flag("end", "Window end (RFC3339, default now)").StringVar(&endStr)

	verify.Action(func(*kingpin.ParseContext) error {
		cfg, err := LoadAppConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Backend != "dynamodb" {
			return fmt.Errorf("sentinel: audit verify only applies to the dynamodb backend, got %q", cfg.Backend)
		}

		end := time.Now()
		if endStr != "" {
			if end, err = time.Parse(time.RFC3339, endStr); err != nil {
				return fmt.Errorf("sentinel: parse --end: %w", err)
			}
		}
		start := end.Add(-24 * time.Hour)
		if startStr != "" {
			if start, err = time.Parse(time.RFC3339, startStr); err != nil {
				return fmt.Errorf("sentinel: parse --start: %w", err)
			}
		}
		if !start.Before(end) {
			return fmt.Errorf("sentinel: --start must be before --end")
		}

		ctx := context.Background()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return fmt.Errorf("sentinel: load AWS config: %w", err)
		}
		store := eventstore.NewDynamoDBStore(awsCfg, eventstore.Tables{
			SecurityEvents: cfg.SecurityEventsTable,
			APIAccess:      cfg.APIAccessTable,
			BlockedSources: cfg.BlockedSourcesTable,
			AuditTrail:     cfg.AuditTrailTable,
		})

		verifier := audit.NewVerifier(awsCfg, store)
		result, err := verifier.Verify(ctx, audit.VerifyInput{
			StartTime: start,
			EndTime:   end,
			Actor:     actor,
			WatchedTables: []string{
				cfg.AuditTrailTable,
				cfg.BlockedSourcesTable,
				cfg.SecurityEventsTable,
			},
		})
		if err != nil {
			return fmt.Errorf("sentinel: audit verify: %w", err)
		}

		fmt.Printf("window %s .. %s: %d local analyst actions, %d CloudTrail events, %d corroborated\n",
			result.StartTime.Format(time.RFC3339), result.EndTime.Format(time.RFC3339),
			result.LocalActions, result.TrailEvents, result.Corroborated)
		for _, issue := range result.Issues {
			fmt.Printf("[%s] %s: %s\n", issue.Severity, issue.Type, issue.Message)
		}
		if len(result.Issues) == 0 {
			fmt.Println("ok: no integrity issues found")
		}
		return nil
	})
}

// configureHealthCommand wires `health`, a thin CLI client for
// GET /v1/security/health, useful for a deploy smoke test without a
// separate curl/jq invocation.
func configureHealthCommand(app *kingpin.Application) {
	var addr string
	cmd := app.Command("health", "Check a running sentinel server's health endpoint")
	cmd.Flag("addr", "Base URL of the running server").Default("http://localhost:8443").StringVar(&addr)
	cmd.Action(func(*kingpin.ParseContext) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(addr + "/v1/security/health")
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned status %d", resp.StatusCode)
		}
		fmt.Println("ok")
		return nil
	})
}
