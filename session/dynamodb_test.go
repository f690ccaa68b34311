package session

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/byteness/sentinel-fraud/testutil"
)

func TestDynamoDBStore_RecordTransaction_CreatesOnFirstSight(t *testing.T) {
	client := &testutil.MockDynamoDBClient{}
	s := newDynamoDBStoreWithClient(client, "sentinel-sessions", "sentinel-session-events")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sess, err := s.RecordTransaction(context.Background(), RecordTransactionInput{
		SessionID: "sess-1", AccountID: "acct-1", Amount: 250, Location: "US", Now: now,
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if sess.TransactionCount != 1 || sess.TotalAmount != 250 {
		t.Errorf("unexpected session: %+v", sess)
	}

	if len(client.PutItemCalls) < 2 {
		t.Fatalf("expected at least 2 PutItem calls (session row + start event), got %d", len(client.PutItemCalls))
	}
	wroteSessionTable := false
	for _, call := range client.PutItemCalls {
		if *call.TableName == "sentinel-sessions" {
			wroteSessionTable = true
		}
	}
	if !wroteSessionTable {
		t.Error("expected a PutItem against the sessions table")
	}
}

func TestDynamoDBStore_RecordTransaction_TerminatedNeverReopens(t *testing.T) {
	now := time.Now()
	stored := toSessionItem(Session{
		ID: "sess-1", AccountID: "acct-1", CreatedAt: now, LastActivityAt: now,
		Terminated: true, TerminationReason: "fraud_confirmed",
	})
	av, err := attributevalue.MarshalMap(stored)
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}

	client := &testutil.MockDynamoDBClient{
		GetItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: av}, nil
		},
	}
	s := newDynamoDBStoreWithClient(client, "sentinel-sessions", "sentinel-session-events")

	sess, err := s.RecordTransaction(context.Background(), RecordTransactionInput{SessionID: "sess-1", AccountID: "acct-1", Amount: 500, Now: now})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if !sess.Terminated || sess.TransactionCount != 0 {
		t.Errorf("expected terminated session to be left unmodified, got %+v", sess)
	}
	for _, call := range client.PutItemCalls {
		if *call.TableName == "sentinel-sessions" {
			t.Error("expected no write to the sessions table for a terminated session")
		}
	}
}

func TestDynamoDBStore_Get_NotFound(t *testing.T) {
	client := &testutil.MockDynamoDBClient{}
	s := newDynamoDBStoreWithClient(client, "sentinel-sessions", "sentinel-session-events")

	_, err := s.Get(context.Background(), "missing")
	if err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDynamoDBStore_UpdateRisk(t *testing.T) {
	now := time.Now()
	stored := toSessionItem(Session{ID: "sess-1", AccountID: "acct-1", CreatedAt: now, LastActivityAt: now})
	av, _ := attributevalue.MarshalMap(stored)

	client := &testutil.MockDynamoDBClient{
		GetItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: av}, nil
		},
	}
	s := newDynamoDBStoreWithClient(client, "sentinel-sessions", "sentinel-session-events")

	sess, err := s.UpdateRisk(context.Background(), "sess-1", 92, []string{"velocity"}, []string{"burst of transactions"})
	if err != nil {
		t.Fatalf("UpdateRisk: %v", err)
	}
	if sess.RiskScore != 92 {
		t.Errorf("RiskScore = %v, want 92", sess.RiskScore)
	}
}

func TestDynamoDBStore_Terminate_Idempotent(t *testing.T) {
	now := time.Now()
	stored := toSessionItem(Session{
		ID: "sess-1", AccountID: "acct-1", CreatedAt: now, LastActivityAt: now,
		Terminated: true, TerminationReason: "fraud_confirmed", TerminatedBy: "analyst-1",
	})
	av, _ := attributevalue.MarshalMap(stored)

	client := &testutil.MockDynamoDBClient{
		GetItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: av}, nil
		},
	}
	s := newDynamoDBStoreWithClient(client, "sentinel-sessions", "sentinel-session-events")

	sess, err := s.Terminate(context.Background(), "sess-1", "other_reason", "analyst-2", now)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if sess.TerminationReason != "fraud_confirmed" || sess.TerminatedBy != "analyst-1" {
		t.Errorf("expected idempotent terminate to preserve original reason/actor, got %+v", sess)
	}
	if len(client.PutItemCalls) != 0 {
		t.Error("expected no write for an already-terminated session")
	}
}

func TestFromSessionItem_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	original := Session{
		ID: "sess-1", AccountID: "acct-1", CreatedAt: now, LastActivityAt: now,
		TransactionCount: 3, TotalAmount: 42.5, RiskScore: 61,
		SignalsTriggered: []string{"amount_deviation"}, FirstLocation: "US", FirstTransactionAt: now,
	}
	item := toSessionItem(original)
	back, err := fromSessionItem(item)
	if err != nil {
		t.Fatalf("fromSessionItem: %v", err)
	}
	if back.ID != original.ID || back.TotalAmount != original.TotalAmount || !back.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("round trip mismatch: %+v vs %+v", back, original)
	}
}
