package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"

	"github.com/byteness/sentinel-fraud/eventstore"
)

// corroborationWindow is how far apart a local audit row and a
// CloudTrail event from the same principal may be and still count as
// the same activity. CloudTrail delivery lags API activity by minutes,
// so this is deliberately loose.
const corroborationWindow = 15 * time.Minute

// cloudtrailAPI defines the CloudTrail operations used by Verifier.
// This interface enables testing with mock implementations.
type cloudtrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// Verifier sweeps a time window, comparing Sentinel's local audit
// trail with CloudTrail.
type Verifier struct {
	client cloudtrailAPI
	store  eventstore.Store
}

// NewVerifier creates a Verifier using the provided AWS configuration
// and the event store holding the local audit trail.
func NewVerifier(cfg aws.Config, store eventstore.Store) *Verifier {
	return &Verifier{
		client: cloudtrail.NewFromConfig(cfg),
		store:  store,
	}
}

// newVerifierWithClient creates a Verifier with a custom client.
// This is primarily used for testing with mock clients.
func newVerifierWithClient(client cloudtrailAPI, store eventstore.Store) *Verifier {
	return &Verifier{client: client, store: store}
}

// trailActivity is the projection of one CloudTrail event the sweep
// compares against.
type trailActivity struct {
	Username  string
	EventName string
	At        time.Time
	TableName string
}

// Verify runs the sweep: fetch local analyst actions and CloudTrail
// events for the window, then flag local actions without CloudTrail
// corroboration and watched-table writes without local actions.
func (v *Verifier) Verify(ctx context.Context, input VerifyInput) (*Result, error) {
	result := &Result{
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
	}

	local, err := v.localActions(ctx, input)
	if err != nil {
		return nil, err
	}
	result.LocalActions = len(local)

	activity, err := v.trailEvents(ctx, input)
	if err != nil {
		return nil, err
	}
	result.TrailEvents = len(activity)

	for _, entry := range local {
		if hasActivityNear(activity, entry.Actor, entry.Timestamp) {
			result.Corroborated++
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Type:     IssueTypeUncorroboratedAction,
			Actor:    entry.Actor,
			Action:   entry.Action,
			Resource: entry.Resource,
			At:       entry.Timestamp,
			Message:  fmt.Sprintf("audit action %s on %s by %s has no CloudTrail activity from that principal within %s", entry.Action, entry.Resource, entry.Actor, corroborationWindow),
		})
	}

	watched := make(map[string]bool, len(input.WatchedTables))
	for _, t := range input.WatchedTables {
		watched[t] = true
	}
	for _, a := range activity {
		if !watched[a.TableName] {
			continue
		}
		if hasLocalActionNear(local, a.Username, a.At) {
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityCritical,
			Type:     IssueTypeOutOfBandWrite,
			Actor:    a.Username,
			Action:   a.EventName,
			Resource: a.TableName,
			At:       a.At,
			Message:  fmt.Sprintf("CloudTrail shows %s on table %s by %s with no local audit entry within %s", a.EventName, a.TableName, a.Username, corroborationWindow),
		})
	}

	return result, nil
}

// localActions returns the analyst-initiated audit rows in the window.
// Rows recorded by "system" (decision requests, auto-blocks) are
// internal activity with no analyst principal behind them, so they are
// outside this sweep.
func (v *Verifier) localActions(ctx context.Context, input VerifyInput) ([]eventstore.AuditEntry, error) {
	entries, err := v.store.AuditTrail(ctx, eventstore.AuditFilter{
		Actor: input.Actor,
		Limit: eventstore.MaxQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}

	var out []eventstore.AuditEntry
	for _, e := range entries {
		if e.Actor == "system" {
			continue
		}
		if e.Timestamp.Before(input.StartTime) || e.Timestamp.After(input.EndTime) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// trailEvents pages through CloudTrail for the window.
func (v *Verifier) trailEvents(ctx context.Context, input VerifyInput) ([]trailActivity, error) {
	var lookupAttributes []types.LookupAttribute
	if input.Actor != "" {
		lookupAttributes = append(lookupAttributes, types.LookupAttribute{
			AttributeKey:   types.LookupAttributeKeyUsername,
			AttributeValue: aws.String(input.Actor),
		})
	}

	var out []trailActivity
	var nextToken *string
	for {
		lookupInput := &cloudtrail.LookupEventsInput{
			StartTime: aws.Time(input.StartTime),
			EndTime:   aws.Time(input.EndTime),
			NextToken: nextToken,
		}
		if len(lookupAttributes) > 0 {
			lookupInput.LookupAttributes = lookupAttributes
		}

		output, err := v.client.LookupEvents(ctx, lookupInput)
		if err != nil {
			return nil, fmt.Errorf("lookup events: %w", err)
		}

		for _, event := range output.Events {
			out = append(out, parseTrailEvent(event))
		}

		nextToken = output.NextToken
		if nextToken == nil {
			break
		}
	}
	return out, nil
}

// trailEventPayload represents the parsed JSON from the
// CloudTrailEvent field.
type trailEventPayload struct {
	UserIdentity struct {
		UserName string `json:"userName"`
		ARN      string `json:"arn"`
	} `json:"userIdentity"`
	RequestParameters struct {
		TableName string `json:"tableName"`
	} `json:"requestParameters"`
}

// parseTrailEvent extracts the fields the sweep compares on. A payload
// that fails to parse still yields the envelope fields; the table name
// is then simply absent.
func parseTrailEvent(event types.Event) trailActivity {
	a := trailActivity{}
	if event.Username != nil {
		a.Username = *event.Username
	}
	if event.EventName != nil {
		a.EventName = *event.EventName
	}
	if event.EventTime != nil {
		a.At = *event.EventTime
	}
	if event.CloudTrailEvent != nil {
		var payload trailEventPayload
		if err := json.Unmarshal([]byte(*event.CloudTrailEvent), &payload); err == nil {
			a.TableName = payload.RequestParameters.TableName
			if a.Username == "" {
				a.Username = payload.UserIdentity.UserName
			}
		}
	}
	return a
}

func hasActivityNear(activity []trailActivity, username string, at time.Time) bool {
	for _, a := range activity {
		if a.Username == username && within(a.At, at, corroborationWindow) {
			return true
		}
	}
	return false
}

func hasLocalActionNear(local []eventstore.AuditEntry, actor string, at time.Time) bool {
	for _, e := range local {
		if e.Actor == actor && within(e.Timestamp, at, corroborationWindow) {
			return true
		}
	}
	return false
}

func within(a, b time.Time, d time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d
}
