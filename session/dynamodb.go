package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GSI names on the sessions table: indices on (account_id), (risk_score desc), (is_terminated),
// (created_at desc).
const (
	GSIAccount    = "gsi-account"
	GSIRisk       = "gsi-risk"
	GSITerminated = "gsi-terminated"
	GSICreated    = "gsi-created"
)

// dynamoDBAPI defines the DynamoDB operations DynamoDBStore needs.
// This interface enables testing with mock implementations.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store against two tables: one row per
// session in the sessions table, one row per (session, sequence) in the
// events table. A per-session in-process mutex (distinct from the
// DynamoDB item itself) serialises RecordTransaction the same way
// MemoryStore does, since DynamoDB's conditional UpdateItem alone
// cannot also append an ordered event row atomically.
type DynamoDBStore struct {
	client       dynamoDBAPI
	sessionTable string
	eventTable   string

	mu    timeKeyedLock
	count timeKeyedCounter
}

// timeKeyedLock hands out a per-session mutex on demand.
type timeKeyedLock struct {
	store *lockMap
}

func newDynamoDBStoreLock() timeKeyedLock {
	return timeKeyedLock{store: newLockMap()}
}

// NewDynamoDBStore creates a DynamoDB-backed Store.
func NewDynamoDBStore(cfg aws.Config, sessionTable, eventTable string) *DynamoDBStore {
	return &DynamoDBStore{
		client:       dynamodb.NewFromConfig(cfg),
		sessionTable: sessionTable,
		eventTable:   eventTable,
		mu:           newDynamoDBStoreLock(),
	}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, sessionTable, eventTable string) *DynamoDBStore {
	return &DynamoDBStore{
		client:       client,
		sessionTable: sessionTable,
		eventTable:   eventTable,
		mu:           newDynamoDBStoreLock(),
	}
}

type sessionItem struct {
	ID                  string   `dynamodbav:"id"`
	AccountID           string   `dynamodbav:"account_id"`
	CreatedAt           string   `dynamodbav:"created_at"`
	LastActivityAt      string   `dynamodbav:"last_activity_at"`
	TransactionCount    int      `dynamodbav:"transaction_count"`
	TotalAmount         float64  `dynamodbav:"total_amount"`
	NewBeneficiaryCount int      `dynamodbav:"new_beneficiary_count"`
	RiskScore           float64  `dynamodbav:"risk_score"`
	SignalsTriggered    []string `dynamodbav:"signals_triggered,omitempty"`
	Terminated          bool     `dynamodbav:"is_terminated"`
	TerminationReason   string   `dynamodbav:"termination_reason,omitempty"`
	TerminatedBy        string   `dynamodbav:"terminated_by,omitempty"`
	Anomalies           []string `dynamodbav:"anomalies,omitempty"`
	FirstLocation       string   `dynamodbav:"first_location,omitempty"`
	FirstTransactionAt  string   `dynamodbav:"first_transaction_at,omitempty"`

	// TerminatedFlag shadows Terminated as a number (0/1) because
	// DynamoDB GSI key attributes cannot be type BOOL; gsi-terminated
	// partitions on this field instead.
	TerminatedFlag int `dynamodbav:"is_terminated_flag"`
}

func toSessionItem(s Session) sessionItem {
	item := sessionItem{
		ID:                  s.ID,
		AccountID:           s.AccountID,
		CreatedAt:           s.CreatedAt.Format(time.RFC3339Nano),
		LastActivityAt:      s.LastActivityAt.Format(time.RFC3339Nano),
		TransactionCount:    s.TransactionCount,
		TotalAmount:         s.TotalAmount,
		NewBeneficiaryCount: s.NewBeneficiaryCount,
		RiskScore:           s.RiskScore,
		SignalsTriggered:    s.SignalsTriggered,
		Terminated:          s.Terminated,
		TerminationReason:   s.TerminationReason,
		TerminatedBy:        s.TerminatedBy,
		Anomalies:           s.Anomalies,
		FirstLocation:       s.FirstLocation,
	}
	if s.Terminated {
		item.TerminatedFlag = 1
	}
	if !s.FirstTransactionAt.IsZero() {
		item.FirstTransactionAt = s.FirstTransactionAt.Format(time.RFC3339Nano)
	}
	return item
}

func fromSessionItem(item sessionItem) (Session, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("session: parse created_at: %w", err)
	}
	lastActivity, err := time.Parse(time.RFC3339Nano, item.LastActivityAt)
	if err != nil {
		return Session{}, fmt.Errorf("session: parse last_activity_at: %w", err)
	}
	var firstTxAt time.Time
	if item.FirstTransactionAt != "" {
		firstTxAt, _ = time.Parse(time.RFC3339Nano, item.FirstTransactionAt)
	}
	return Session{
		ID:                  item.ID,
		AccountID:           item.AccountID,
		CreatedAt:           createdAt,
		LastActivityAt:      lastActivity,
		TransactionCount:    item.TransactionCount,
		TotalAmount:         item.TotalAmount,
		NewBeneficiaryCount: item.NewBeneficiaryCount,
		RiskScore:           item.RiskScore,
		SignalsTriggered:    item.SignalsTriggered,
		Terminated:          item.Terminated,
		TerminationReason:   item.TerminationReason,
		TerminatedBy:        item.TerminatedBy,
		Anomalies:           item.Anomalies,
		FirstLocation:       item.FirstLocation,
		FirstTransactionAt:  firstTxAt,
	}, nil
}

func (s *DynamoDBStore) getItem(ctx context.Context, sessionID string) (*sessionItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.sessionTable),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: sessionID}},
	})
	if err != nil {
		return nil, fmt.Errorf("session: GetItem: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &item, nil
}

func (s *DynamoDBStore) putItem(ctx context.Context, item sessionItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.sessionTable), Item: av})
	if err != nil {
		return fmt.Errorf("session: PutItem: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) appendEvent(ctx context.Context, ev Event) error {
	seq := s.count.next(ev.SessionID)
	item := map[string]any{
		"session_id": ev.SessionID,
		"seq":        seq,
		"kind":       string(ev.Kind),
		"at":         ev.At.Format(time.RFC3339Nano),
	}
	if ev.RiskDelta != 0 {
		item["risk_delta"] = ev.RiskDelta
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("session: marshal event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.eventTable), Item: av})
	if err != nil {
		return fmt.Errorf("session: PutItem event: %w", err)
	}
	return nil
}

// RecordTransaction implements Store. The per-session lock serialises
// concurrent calls for the same session identifier, matching
// MemoryStore's ordering guarantee, since DynamoDB alone cannot
// atomically create-or-increment and append an ordered event in one
// round trip.
func (s *DynamoDBStore) RecordTransaction(ctx context.Context, in RecordTransactionInput) (Session, error) {
	unlock := s.mu.lock(in.SessionID)
	defer unlock()

	existing, err := s.getItem(ctx, in.SessionID)
	if err != nil {
		return Session{}, err
	}

	if existing == nil {
		sess := Session{
			ID:                 in.SessionID,
			AccountID:          in.AccountID,
			CreatedAt:          in.Now,
			LastActivityAt:     in.Now,
			FirstLocation:      in.Location,
			FirstTransactionAt: in.Now,
		}
		if err := s.putItem(ctx, toSessionItem(sess)); err != nil {
			return Session{}, err
		}
		if err := s.appendEvent(ctx, Event{SessionID: in.SessionID, Kind: EventStart, At: in.Now}); err != nil {
			return Session{}, err
		}
		existing = ptr(toSessionItem(sess))
	}

	sess, err := fromSessionItem(*existing)
	if err != nil {
		return Session{}, err
	}
	if sess.Terminated {
		return sess, nil
	}

	sess.TransactionCount++
	sess.TotalAmount += in.Amount
	if in.IsNewBeneficiary {
		sess.NewBeneficiaryCount++
	}
	sess.LastActivityAt = in.Now

	if err := s.putItem(ctx, toSessionItem(sess)); err != nil {
		return Session{}, err
	}
	if err := s.appendEvent(ctx, Event{
		SessionID: in.SessionID,
		Kind:      EventTransaction,
		At:        in.Now,
		Data:      map[string]any{"amount": in.Amount, "location": in.Location, "is_new_beneficiary": in.IsNewBeneficiary},
	}); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// UpdateRisk implements Store.
func (s *DynamoDBStore) UpdateRisk(ctx context.Context, sessionID string, riskScore float64, signals, anomalies []string) (Session, error) {
	unlock := s.mu.lock(sessionID)
	defer unlock()

	item, err := s.getItem(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if item == nil {
		return Session{}, ErrSessionNotFound
	}
	sess, err := fromSessionItem(*item)
	if err != nil {
		return Session{}, err
	}
	sess.RiskScore = riskScore
	sess.SignalsTriggered = signals
	sess.Anomalies = anomalies
	if err := s.putItem(ctx, toSessionItem(sess)); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Get implements Store.
func (s *DynamoDBStore) Get(ctx context.Context, sessionID string) (Session, error) {
	item, err := s.getItem(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if item == nil {
		return Session{}, ErrSessionNotFound
	}
	return fromSessionItem(*item)
}

// ListActive implements Store via a Query against gsi-terminated.
func (s *DynamoDBStore) ListActive(ctx context.Context, limit int) ([]Session, error) {
	return s.queryBool(ctx, GSITerminated, "is_terminated_flag", false, enforceLimit(limit))
}

// ListByAccount implements Store via a Query against gsi-account.
func (s *DynamoDBStore) ListByAccount(ctx context.Context, accountID string, activeOnly bool, limit int) ([]Session, error) {
	effectiveLimit := enforceLimit(limit)
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.sessionTable),
		IndexName:                 aws.String(GSIAccount),
		KeyConditionExpression:    aws.String("account_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: accountID}},
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("session: Query gsi-account: %w", err)
	}
	sessions, err := unmarshalSessions(out.Items)
	if err != nil {
		return nil, err
	}
	if activeOnly {
		sessions = filterSessions(sessions, func(s Session) bool { return !s.Terminated })
	}
	return capSessions(sessions, effectiveLimit), nil
}

// ListSuspicious implements Store with a Scan of the sessions table,
// filtered in process to the requested minimum and sorted by risk,
// highest first.
func (s *DynamoDBStore) ListSuspicious(ctx context.Context, minRisk float64, limit int) ([]Session, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.sessionTable)})
	if err != nil {
		return nil, fmt.Errorf("session: Scan: %w", err)
	}
	sessions, err := unmarshalSessions(out.Items)
	if err != nil {
		return nil, err
	}
	sessions = filterSessions(sessions, func(s Session) bool { return s.RiskScore >= minRisk })
	sortSessionsByRiskDesc(sessions)
	return capSessions(sessions, enforceLimit(limit)), nil
}

func (s *DynamoDBStore) queryBool(ctx context.Context, index, attr string, val bool, limit int) ([]Session, error) {
	n := "0"
	if val {
		n = "1"
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.sessionTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#a = :v"),
		ExpressionAttributeNames: map[string]string{
			"#a": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberN{Value: n}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("session: Query %s: %w", index, err)
	}
	return unmarshalSessions(out.Items)
}

// Events implements Store via a Query against the events table.
func (s *DynamoDBStore) Events(ctx context.Context, sessionID string) ([]Event, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.eventTable),
		KeyConditionExpression:    aws.String("session_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: sessionID}},
		ScanIndexForward:          aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session: Query events: %w", err)
	}
	events := make([]Event, 0, len(out.Items))
	for _, av := range out.Items {
		var row struct {
			SessionID string  `dynamodbav:"session_id"`
			Kind      string  `dynamodbav:"kind"`
			At        string  `dynamodbav:"at"`
			RiskDelta float64 `dynamodbav:"risk_delta"`
		}
		if err := attributevalue.UnmarshalMap(av, &row); err != nil {
			continue
		}
		at, _ := time.Parse(time.RFC3339Nano, row.At)
		events = append(events, Event{SessionID: row.SessionID, Kind: EventKind(row.Kind), At: at, RiskDelta: row.RiskDelta})
	}
	return events, nil
}

// Terminate implements Store.
func (s *DynamoDBStore) Terminate(ctx context.Context, sessionID, reason, actor string, now time.Time) (Session, error) {
	unlock := s.mu.lock(sessionID)
	defer unlock()

	item, err := s.getItem(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if item == nil {
		return Session{}, ErrSessionNotFound
	}
	sess, err := fromSessionItem(*item)
	if err != nil {
		return Session{}, err
	}
	if sess.Terminated {
		return sess, nil
	}
	sess.Terminated = true
	sess.TerminationReason = reason
	sess.TerminatedBy = actor
	if err := s.putItem(ctx, toSessionItem(sess)); err != nil {
		return Session{}, err
	}
	if err := s.appendEvent(ctx, Event{SessionID: sessionID, Kind: EventTerminated, At: now, Data: map[string]any{"reason": reason, "actor": actor}}); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Cleanup implements Store. For an infrequent maintenance query, a scan
// with an in-process filter is acceptable (mirrors
// ratelimit.DynamoDBStore's handling of bulk, non-hot-path operations).
func (s *DynamoDBStore) Cleanup(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.sessionTable)})
	if err != nil {
		return 0, fmt.Errorf("session: Scan cleanup: %w", err)
	}
	sessions, err := unmarshalSessions(out.Items)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-olderThan)
	affected := 0
	for _, sess := range sessions {
		if sess.Terminated || !sess.LastActivityAt.Before(cutoff) {
			continue
		}
		if _, err := s.Terminate(ctx, sess.ID, "expired", "system", now); err != nil {
			continue
		}
		affected++
	}
	return affected, nil
}

func unmarshalSessions(items []map[string]types.AttributeValue) ([]Session, error) {
	sessions := make([]Session, 0, len(items))
	for _, av := range items {
		var item sessionItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("session: unmarshal: %w", err)
		}
		sess, err := fromSessionItem(item)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func filterSessions(in []Session, keep func(Session) bool) []Session {
	out := make([]Session, 0, len(in))
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func sortSessionsByRiskDesc(sessions []Session) {
	for i := 0; i < len(sessions)-1; i++ {
		for j := i + 1; j < len(sessions); j++ {
			if sessions[j].RiskScore > sessions[i].RiskScore {
				sessions[i], sessions[j] = sessions[j], sessions[i]
			}
		}
	}
}

func capSessions(sessions []Session, limit int) []Session {
	if len(sessions) > limit {
		return sessions[:limit]
	}
	return sessions
}

func ptr(s sessionItem) *sessionItem { return &s }
