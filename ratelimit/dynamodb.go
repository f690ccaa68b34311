package ratelimit

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI defines the DynamoDB operations DynamoDBStore needs.
// This interface enables testing with mock implementations.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBStore implements Store using DynamoDB for tier-override and
// block-state persistence.
//
// Table schema (single-table design):
//   - PK: "RL#" + source
//   - Tier: string tier name, present only when overridden
//   - BlockedUntil: ISO8601 timestamp, present only while blocked
//   - TTL: Unix timestamp for DynamoDB TTL cleanup
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBStore creates a DynamoDB-backed Store. tableName must
// reference a table with a String partition key named "PK".
func NewDynamoDBStore(client DynamoDBAPI, tableName string) (*DynamoDBStore, error) {
	if client == nil {
		return nil, errors.New("ratelimit: DynamoDB client cannot be nil")
	}
	if tableName == "" {
		return nil, errors.New("ratelimit: tableName cannot be empty")
	}
	return &DynamoDBStore{client: client, tableName: tableName}, nil
}

func pkFor(source string) string {
	return "RL#" + source
}

// LoadTier fetches a source's tier override, if any.
func (s *DynamoDBStore) LoadTier(ctx context.Context, source string) (Tier, bool, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pkFor(source)}},
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB GetItem error (treating as no override): %v", err)
		return Free, false, err
	}
	attr, ok := output.Item["Tier"]
	if !ok {
		return Free, false, nil
	}
	s2, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return Free, false, nil
	}
	tier, err := ParseTier(s2.Value)
	if err != nil {
		return Free, false, nil
	}
	return tier, true, nil
}

// SaveTier persists a source's tier override.
func (s *DynamoDBStore) SaveTier(ctx context.Context, source string, tier Tier) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pkFor(source)}},
		UpdateExpression: aws.String("SET #tier = :tier"),
		ExpressionAttributeNames: map[string]string{
			"#tier": "Tier",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tier": &types.AttributeValueMemberS{Value: tier.String()},
		},
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB SaveTier error: %v", err)
	}
	return err
}

// LoadBlock fetches a source's block expiry, if currently blocked.
func (s *DynamoDBStore) LoadBlock(ctx context.Context, source string) (time.Time, bool, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pkFor(source)}},
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB GetItem error (treating as not blocked): %v", err)
		return time.Time{}, false, err
	}
	attr, ok := output.Item["BlockedUntil"]
	if !ok {
		return time.Time{}, false, nil
	}
	s2, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return time.Time{}, false, nil
	}
	until, err := time.Parse(time.RFC3339, s2.Value)
	if err != nil {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// SaveBlock persists a source's block expiry.
func (s *DynamoDBStore) SaveBlock(ctx context.Context, source string, until time.Time) error {
	ttl := until.Add(time.Hour).Unix()
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pkFor(source)}},
		UpdateExpression: aws.String("SET #bu = :bu, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#bu":  "BlockedUntil",
			"#ttl": "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bu":  &types.AttributeValueMemberS{Value: until.Format(time.RFC3339)},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB SaveBlock error: %v", err)
	}
	return err
}

// ClearBlock removes a source's block expiry, leaving any tier
// override intact.
func (s *DynamoDBStore) ClearBlock(ctx context.Context, source string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pkFor(source)}},
		UpdateExpression: aws.String("REMOVE #bu, #ttl"),
		ExpressionAttributeNames: map[string]string{
			"#bu":  "BlockedUntil",
			"#ttl": "TTL",
		},
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB ClearBlock error: %v", err)
	}
	return err
}

var _ Store = (*DynamoDBStore)(nil)
