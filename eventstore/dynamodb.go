package eventstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
	"github.com/byteness/sentinel-fraud/security"
)

// GSI name constants, one per required query dimension.
const (
	GSISource = "gsi-source"
	GSIKind   = "gsi-kind"
	GSILevel  = "gsi-level"
	GSIActor  = "gsi-actor"
)

// dynamoDBAPI defines the DynamoDB operations DynamoDBStore needs.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Tables names the four DynamoDB tables DynamoDBStore writes to, one
// per logical table. Created externally via Terraform/CloudFormation
// (see infrastructure.EventStoreTableSchemas).
type Tables struct {
	SecurityEvents string
	APIAccess      string
	BlockedSources string
	AuditTrail     string
}

// DynamoDBStore implements Store using DynamoDB, one table per logical
// table. Dashboard and review-queue queries fall back to Scan with an
// in-process filter: those queries serve infrequent dashboard and
// audit traffic, not the decision hot path.
type DynamoDBStore struct {
	client dynamoDBAPI
	tables Tables
}

// NewDynamoDBStore creates a DynamoDB-backed Store using the provided
// AWS configuration.
func NewDynamoDBStore(cfg aws.Config, tables Tables) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tables: tables}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tables Tables) *DynamoDBStore {
	return &DynamoDBStore{client: client, tables: tables}
}

type eventItem struct {
	ID             string            `dynamodbav:"id"`
	Timestamp      string            `dynamodbav:"timestamp"`
	Kind           string            `dynamodbav:"kind"`
	Level          int               `dynamodbav:"level"`
	Source         string            `dynamodbav:"source"`
	Endpoint       string            `dynamodbav:"endpoint"`
	Description    string            `dynamodbav:"description"`
	Metadata       map[string]string `dynamodbav:"metadata,omitempty"`
	RequiresReview bool              `dynamodbav:"requires_review"`
	ReviewedBy     string            `dynamodbav:"reviewed_by,omitempty"`
	ReviewAction   string            `dynamodbav:"review_action,omitempty"`
	ReviewNotes    string            `dynamodbav:"review_notes,omitempty"`
}

func toEventItem(e SecurityEvent) eventItem {
	return eventItem{
		ID: e.ID, Timestamp: e.Timestamp.Format(time.RFC3339Nano), Kind: string(e.Kind),
		Level: int(e.Level), Source: e.Source, Endpoint: e.Endpoint, Description: e.Description,
		Metadata: e.Metadata, RequiresReview: e.RequiresReview, ReviewedBy: e.ReviewedBy,
		ReviewAction: e.ReviewAction, ReviewNotes: e.ReviewNotes,
	}
}

func fromEventItem(it eventItem) SecurityEvent {
	ts, _ := time.Parse(time.RFC3339Nano, it.Timestamp)
	return SecurityEvent{
		ID: it.ID, Timestamp: ts, Kind: security.Kind(it.Kind), Level: security.Level(it.Level),
		Source: it.Source, Endpoint: it.Endpoint, Description: it.Description, Metadata: it.Metadata,
		RequiresReview: it.RequiresReview, ReviewedBy: it.ReviewedBy, ReviewAction: it.ReviewAction,
		ReviewNotes: it.ReviewNotes,
	}
}

func (s *DynamoDBStore) StoreEvent(ctx context.Context, event SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	av, err := attributevalue.MarshalMap(toEventItem(event))
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.SecurityEvents), Item: av})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tables.SecurityEvents, "PutItem")
	}
	return nil
}

type accessItem struct {
	ID        string  `dynamodbav:"id"`
	Timestamp string  `dynamodbav:"timestamp"`
	Source    string  `dynamodbav:"source"`
	Endpoint  string  `dynamodbav:"endpoint"`
	Method    string  `dynamodbav:"method"`
	Status    int     `dynamodbav:"status"`
	LatencyMS float64 `dynamodbav:"latency_ms"`
}

func (s *DynamoDBStore) LogAccess(ctx context.Context, access APIAccess) error {
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.Timestamp.IsZero() {
		access.Timestamp = time.Now()
	}
	av, err := attributevalue.MarshalMap(accessItem{
		ID: access.ID, Timestamp: access.Timestamp.Format(time.RFC3339Nano), Source: access.Source,
		Endpoint: access.Endpoint, Method: access.Method, Status: access.Status, LatencyMS: access.LatencyMS,
	})
	if err != nil {
		return fmt.Errorf("marshal api access: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.APIAccess), Item: av})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tables.APIAccess, "PutItem")
	}
	return nil
}

type blockItem struct {
	Source      string `dynamodbav:"source"`
	BlockedAt   string `dynamodbav:"blocked_at"`
	Reason      string `dynamodbav:"reason"`
	Level       int    `dynamodbav:"level"`
	Auto        bool   `dynamodbav:"auto"`
	UnblockedAt string `dynamodbav:"unblocked_at,omitempty"`
	UnblockedBy string `dynamodbav:"unblocked_by,omitempty"`
}

func (s *DynamoDBStore) RecordBlock(ctx context.Context, block BlockedSource) error {
	if block.BlockedAt.IsZero() {
		block.BlockedAt = time.Now()
	}
	av, err := attributevalue.MarshalMap(blockItem{
		Source: block.Source, BlockedAt: block.BlockedAt.Format(time.RFC3339Nano),
		Reason: block.Reason, Level: int(block.Level), Auto: block.Auto,
	})
	if err != nil {
		return fmt.Errorf("marshal blocked source: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.BlockedSources), Item: av})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tables.BlockedSources, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Unblock(ctx context.Context, source, unblockedBy string, now time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.BlockedSources),
		Key:              map[string]types.AttributeValue{"source": &types.AttributeValueMemberS{Value: source}},
		UpdateExpression: aws.String("SET unblocked_at = :ua, unblocked_by = :ub"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":ub": &types.AttributeValueMemberS{Value: unblockedBy},
		},
		ConditionExpression: aws.String("attribute_exists(source)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tables.BlockedSources, "UpdateItem:Unblock")
	}
	return nil
}

func (s *DynamoDBStore) RecordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string) {
	av, err := attributevalue.MarshalMap(struct {
		ID        string            `dynamodbav:"id"`
		Timestamp string            `dynamodbav:"timestamp"`
		Actor     string            `dynamodbav:"actor"`
		Action    string            `dynamodbav:"action"`
		Resource  string            `dynamodbav:"resource"`
		Success   bool              `dynamodbav:"success"`
		Metadata  map[string]string `dynamodbav:"metadata,omitempty"`
	}{
		ID: uuid.NewString(), Timestamp: time.Now().Format(time.RFC3339Nano),
		Actor: actor, Action: action, Resource: resource, Success: success, Metadata: metadata,
	})
	if err != nil {
		log.Printf("eventstore: marshal audit entry: %v", err)
		return
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tables.AuditTrail), Item: av}); err != nil {
		log.Printf("eventstore: DynamoDB audit PutItem error (fail-open): %v", err)
	}
}

// RecentEvents scans the security_events table and filters in
// process. This query serves the review dashboard, not the decision
// hot path, so a bounded Scan is acceptable.
func (s *DynamoDBStore) RecentEvents(ctx context.Context, filter EventFilter) ([]SecurityEvent, error) {
	limit := enforceLimit(filter.Limit)
	items, err := s.scanEvents(ctx, func(e SecurityEvent) bool {
		if filter.MinLevel != 0 && e.Level < filter.MinLevel {
			return false
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			return false
		}
		if filter.Source != "" && e.Source != filter.Source {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sortEventsDesc(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *DynamoDBStore) ReviewQueue(ctx context.Context, limit int) ([]SecurityEvent, error) {
	effLimit := enforceLimit(limit)
	items, err := s.scanEvents(ctx, func(e SecurityEvent) bool {
		return e.Level >= security.LevelMedium && !e.Reviewed()
	})
	if err != nil {
		return nil, err
	}
	sortEventsDesc(items)
	if len(items) > effLimit {
		items = items[:effLimit]
	}
	return items, nil
}

func (s *DynamoDBStore) ReviewEvent(ctx context.Context, id, reviewedBy, action, notes string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.SecurityEvents),
		Key:              map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		UpdateExpression: aws.String("SET reviewed_by = :rb, review_action = :ra, review_notes = :rn"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rb": &types.AttributeValueMemberS{Value: reviewedBy},
			":ra": &types.AttributeValueMemberS{Value: action},
			":rn": &types.AttributeValueMemberS{Value: notes},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		wrapped := sentinelerrors.WrapDynamoDBError(err, s.tables.SecurityEvents, "UpdateItem:ReviewEvent")
		if wrapped.Code() == sentinelerrors.ErrCodeDynamoDBConditionFailed {
			return ErrEventNotFound
		}
		return wrapped
	}
	return nil
}

func (s *DynamoDBStore) Dashboard(ctx context.Context) (DashboardAggregates, error) {
	agg := DashboardAggregates{TotalsByKind: make(map[security.Kind]int), TotalsByLevel: make(map[security.Level]int)}
	events, err := s.scanEvents(ctx, func(SecurityEvent) bool { return true })
	if err != nil {
		return agg, err
	}
	for _, e := range events {
		agg.TotalsByKind[e.Kind]++
		agg.TotalsByLevel[e.Level]++
		if e.Level >= security.LevelMedium && !e.Reviewed() {
			agg.PendingReviews++
		}
	}
	sortEventsDesc(events)
	const recentN = 10
	if len(events) > recentN {
		events = events[:recentN]
	}
	agg.Recent = events

	blocked, err := s.BlockedSources(ctx)
	if err != nil {
		return agg, err
	}
	agg.BlockedSourcesCount = len(blocked)
	return agg, nil
}

func (s *DynamoDBStore) SourceRisk(ctx context.Context, source string, window time.Duration) (SourceRiskProfile, error) {
	profile := SourceRiskProfile{Source: source, Window: window, EventsByLevel: make(map[security.Level]int), EventsByKind: make(map[security.Kind]int)}
	cutoff := time.Now().Add(-window)

	output, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.SecurityEvents),
		IndexName:              aws.String(GSISource),
		KeyConditionExpression: aws.String("source = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: source},
		},
	})
	if err != nil {
		return profile, sentinelerrors.WrapDynamoDBError(err, s.tables.SecurityEvents, fmt.Sprintf("Query:%s", GSISource))
	}
	for _, av := range output.Items {
		var it eventItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			continue
		}
		e := fromEventItem(it)
		if e.Timestamp.Before(cutoff) {
			continue
		}
		profile.EventsByLevel[e.Level]++
		profile.EventsByKind[e.Kind]++
	}

	blocked, err := s.IsBlocked(ctx, source)
	if err != nil {
		return profile, err
	}
	profile.CurrentlyBlocked = blocked
	return profile, nil
}

func (s *DynamoDBStore) BlockedSources(ctx context.Context) ([]BlockedSource, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tables.BlockedSources),
		FilterExpression: aws.String("attribute_not_exists(unblocked_at)"),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tables.BlockedSources, "Scan")
	}
	var out []BlockedSource
	for _, av := range output.Items {
		var it blockItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			continue
		}
		blockedAt, _ := time.Parse(time.RFC3339Nano, it.BlockedAt)
		out = append(out, BlockedSource{
			Source: it.Source, BlockedAt: blockedAt, Reason: it.Reason,
			Level: security.Level(it.Level), Auto: it.Auto,
		})
	}
	return out, nil
}

func (s *DynamoDBStore) IsBlocked(ctx context.Context, source string) (bool, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.BlockedSources),
		Key:       map[string]types.AttributeValue{"source": &types.AttributeValueMemberS{Value: source}},
	})
	if err != nil {
		return false, sentinelerrors.WrapDynamoDBError(err, s.tables.BlockedSources, "GetItem")
	}
	if output.Item == nil {
		return false, nil
	}
	_, unblocked := output.Item["unblocked_at"]
	return !unblocked, nil
}

func (s *DynamoDBStore) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	limit := enforceLimit(filter.Limit)

	var output *dynamodb.QueryOutput
	var err error
	switch {
	case filter.Actor != "":
		output, err = s.client.Query(ctx, &dynamodb.QueryInput{
			TableName: aws.String(s.tables.AuditTrail), IndexName: aws.String(GSIActor),
			KeyConditionExpression:    aws.String("actor = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: filter.Actor}},
			ScanIndexForward:          aws.Bool(false),
		})
	default:
		scanOut, scanErr := s.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tables.AuditTrail)})
		if scanErr != nil {
			return nil, sentinelerrors.WrapDynamoDBError(scanErr, s.tables.AuditTrail, "Scan")
		}
		return paginateAuditItems(scanOut.Items, filter.Resource, filter.Offset, limit)
	}
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tables.AuditTrail, "Query")
	}
	return paginateAuditItems(output.Items, filter.Resource, filter.Offset, limit)
}

func paginateAuditItems(avs []map[string]types.AttributeValue, resourceFilter string, offset, limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	for _, av := range avs {
		var it struct {
			ID        string            `dynamodbav:"id"`
			Timestamp string            `dynamodbav:"timestamp"`
			Actor     string            `dynamodbav:"actor"`
			Action    string            `dynamodbav:"action"`
			Resource  string            `dynamodbav:"resource"`
			Success   bool              `dynamodbav:"success"`
			Metadata  map[string]string `dynamodbav:"metadata,omitempty"`
		}
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			continue
		}
		if resourceFilter != "" && it.Resource != resourceFilter {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, it.Timestamp)
		entries = append(entries, AuditEntry{ID: it.ID, Timestamp: ts, Actor: it.Actor, Action: it.Action, Resource: it.Resource, Success: it.Success, Metadata: it.Metadata})
	}
	sortAuditDesc(entries)
	if offset >= len(entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], nil
}

func (s *DynamoDBStore) scanEvents(ctx context.Context, keep func(SecurityEvent) bool) ([]SecurityEvent, error) {
	var out []SecurityEvent
	var lastKey map[string]types.AttributeValue
	for {
		output, err := s.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tables.SecurityEvents), ExclusiveStartKey: lastKey})
		if err != nil {
			return nil, sentinelerrors.WrapDynamoDBError(err, s.tables.SecurityEvents, "Scan")
		}
		for _, av := range output.Items {
			var it eventItem
			if err := attributevalue.UnmarshalMap(av, &it); err != nil {
				continue
			}
			e := fromEventItem(it)
			if keep(e) {
				out = append(out, e)
			}
		}
		lastKey = output.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return out, nil
}

func sortEventsDesc(events []SecurityEvent) {
	for i := 0; i < len(events)-1; i++ {
		for j := i + 1; j < len(events); j++ {
			if events[j].Timestamp.After(events[i].Timestamp) {
				events[i], events[j] = events[j], events[i]
			}
		}
	}
}

func sortAuditDesc(entries []AuditEntry) {
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].Timestamp.After(entries[i].Timestamp) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
}

var _ Store = (*DynamoDBStore)(nil)
