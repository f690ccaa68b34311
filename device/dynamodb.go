package device

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
)

// dynamoDBAPI defines the DynamoDB operations used by DynamoDBRegistry.
// This interface enables testing with mock implementations.
type dynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBRegistry is a durable device registry backed by DynamoDB.
//
// Table schema assumptions (created externally via Terraform/CloudFormation):
//   - Partition key: device_id (String)
//   - Attribute: users (String Set) — the distinct user IDs seen with this device
type DynamoDBRegistry struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBRegistry creates a DynamoDBRegistry using the provided AWS configuration.
func NewDynamoDBRegistry(cfg aws.Config, tableName string) *DynamoDBRegistry {
	return &DynamoDBRegistry{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}
}

// newDynamoDBRegistryWithClient creates a DynamoDBRegistry with a custom client,
// used for testing with mock clients.
func newDynamoDBRegistryWithClient(client dynamoDBAPI, tableName string) *DynamoDBRegistry {
	return &DynamoDBRegistry{client: client, tableName: tableName}
}

type deviceItem struct {
	DeviceID string   `dynamodbav:"device_id"`
	Users    []string `dynamodbav:"users"`
}

// IsKnown reports whether deviceID has previously been recorded for userID,
// recording the pair as a side effect, and returns the device's current
// distinct-user reuse count. Store errors fail open: the device is
// reported as new with a reuse count of 1, since the orchestrator's
// fail-safe policy treats a degraded lookup the same as a cache miss.
func (r *DynamoDBRegistry) IsKnown(userID, deviceID string) (known bool, reuseCount int) {
	if deviceID == "" {
		return false, 0
	}

	ctx := context.Background()
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"device_id": &types.AttributeValueMemberS{Value: deviceID},
		},
	})

	var users []string
	if err == nil && output.Item != nil {
		var item deviceItem
		if unmarshalErr := attributevalue.UnmarshalMap(output.Item, &item); unmarshalErr == nil {
			users = item.Users
		}
	}

	for _, u := range users {
		if u == userID {
			known = true
			break
		}
	}

	r.record(ctx, deviceID, userID)

	reuseCount = len(users)
	if !known {
		reuseCount++
	}
	return known, reuseCount
}

// record appends userID to the device's user set idempotently. Errors are
// swallowed: device-registry persistence is best-effort observability, not
// a correctness dependency of the decision pipeline.
func (r *DynamoDBRegistry) record(ctx context.Context, deviceID, userID string) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"device_id": &types.AttributeValueMemberS{Value: deviceID},
		},
		UpdateExpression: aws.String("ADD users :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberSS{Value: []string{userID}},
		},
	})
	if err != nil {
		_ = sentinelerrors.WrapDynamoDBError(err, r.tableName, "UpdateItem:RecordDevice")
	}
}
