package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
)

// ProvisionStatus represents the result status of a provision operation.
type ProvisionStatus string

const (
	// StatusCreated indicates the table was created successfully.
	StatusCreated ProvisionStatus = "CREATED"
	// StatusExists indicates the table already exists and is active.
	StatusExists ProvisionStatus = "EXISTS"
	// StatusFailed indicates the provision operation failed.
	StatusFailed ProvisionStatus = "FAILED"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	waitTimeout    = 5 * time.Minute
)

// dynamoDBProvisionerAPI defines the DynamoDB operations TableProvisioner
// needs. This enables testing with mock implementations.
type dynamoDBProvisionerAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// TableProvisioner creates the DynamoDB tables Sentinel's stores expect,
// idempotently: `sentinel provision` runs this once per deployment
// before the decision and Lambda entry points are allowed to serve
// traffic against the dynamodb backend.
type TableProvisioner struct {
	client dynamoDBProvisionerAPI
}

// NewTableProvisioner creates a TableProvisioner from an AWS config.
func NewTableProvisioner(cfg aws.Config) *TableProvisioner {
	return &TableProvisioner{client: dynamodb.NewFromConfig(cfg)}
}

func newTableProvisionerWithClient(client dynamoDBProvisionerAPI) *TableProvisioner {
	return &TableProvisioner{client: client}
}

// ProvisionResult is the outcome of provisioning one table.
type ProvisionResult struct {
	TableName string
	Status    ProvisionStatus
	ARN       string
	Err       error
}

// Create provisions a DynamoDB table from schema. It is idempotent: a
// table that already exists and is ACTIVE reports StatusExists rather
// than erroring or attempting to alter it.
func (p *TableProvisioner) Create(ctx context.Context, schema TableSchema) (*ProvisionResult, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("infrastructure: invalid schema for %s: %w", schema.TableName, err)
	}

	status, arn, err := p.getTableStatus(ctx, schema.TableName)
	if err != nil {
		return nil, err
	}

	switch status {
	case "ACTIVE":
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case "CREATING", "UPDATING":
		arn, err := p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Err: err}, nil
		}
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case "NOT_FOUND":
		output, err := p.client.CreateTable(ctx, schemaToCreateTableInput(schema))
		if err != nil {
			var riu *types.ResourceInUseException
			if errors.As(err, &riu) {
				arn, waitErr := p.waitForActive(ctx, schema.TableName)
				if waitErr != nil {
					return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Err: waitErr}, nil
				}
				return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil
			}
			return &ProvisionResult{
				TableName: schema.TableName,
				Status:    StatusFailed,
				Err:       sentinelerrors.WrapDynamoDBError(err, schema.TableName, "CreateTable"),
			}, nil
		}

		arn, err = p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Err: err}, nil
		}
		if arn == "" && output.TableDescription != nil {
			arn = aws.ToString(output.TableDescription.TableArn)
		}

		if schema.TTLAttribute != "" {
			if err := p.configureTTL(ctx, schema.TableName, schema.TTLAttribute); err != nil {
				return &ProvisionResult{
					TableName: schema.TableName,
					Status:    StatusFailed,
					ARN:       arn,
					Err:       fmt.Errorf("table created but TTL configuration failed: %w", err),
				}, nil
			}
		}

		return &ProvisionResult{TableName: schema.TableName, Status: StatusCreated, ARN: arn}, nil

	default:
		return &ProvisionResult{
			TableName: schema.TableName,
			Status:    StatusFailed,
			Err:       fmt.Errorf("table exists with unexpected status: %s", status),
		}, nil
	}
}

func (p *TableProvisioner) getTableStatus(ctx context.Context, tableName string) (string, string, error) {
	output, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return "NOT_FOUND", "", nil
		}
		return "", "", sentinelerrors.WrapDynamoDBError(err, tableName, "DescribeTable")
	}
	if output.Table == nil {
		return "NOT_FOUND", "", nil
	}
	return string(output.Table.TableStatus), aws.ToString(output.Table.TableArn), nil
}

func (p *TableProvisioner) waitForActive(ctx context.Context, tableName string) (string, error) {
	backoff := initialBackoff
	deadline := time.Now().Add(waitTimeout)

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout waiting for table %s to become ACTIVE", tableName)
		}
		status, arn, err := p.getTableStatus(ctx, tableName)
		if err != nil {
			return "", err
		}
		if status == "ACTIVE" {
			return arn, nil
		}
		if status == "NOT_FOUND" || status == "DELETING" {
			return "", fmt.Errorf("table %s is %s", tableName, status)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *TableProvisioner) configureTTL(ctx context.Context, tableName, ttlAttribute string) error {
	_, err := p.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttribute),
		},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, tableName, "UpdateTimeToLive")
	}
	return nil
}

func schemaToCreateTableInput(schema TableSchema) *dynamodb.CreateTableInput {
	attrDefs := make(map[string]types.AttributeDefinition)
	attrDefs[schema.PartitionKey.Name] = types.AttributeDefinition{
		AttributeName: aws.String(schema.PartitionKey.Name),
		AttributeType: types.ScalarAttributeType(schema.PartitionKey.Type),
	}
	if schema.SortKey != nil {
		attrDefs[schema.SortKey.Name] = types.AttributeDefinition{
			AttributeName: aws.String(schema.SortKey.Name),
			AttributeType: types.ScalarAttributeType(schema.SortKey.Type),
		}
	}
	for _, gsi := range schema.GlobalSecondaryIndexes {
		attrDefs[gsi.PartitionKey.Name] = types.AttributeDefinition{
			AttributeName: aws.String(gsi.PartitionKey.Name),
			AttributeType: types.ScalarAttributeType(gsi.PartitionKey.Type),
		}
		if gsi.SortKey != nil {
			attrDefs[gsi.SortKey.Name] = types.AttributeDefinition{
				AttributeName: aws.String(gsi.SortKey.Name),
				AttributeType: types.ScalarAttributeType(gsi.SortKey.Type),
			}
		}
	}
	attrDefSlice := make([]types.AttributeDefinition, 0, len(attrDefs))
	for _, ad := range attrDefs {
		attrDefSlice = append(attrDefSlice, ad)
	}

	keySchema := []types.KeySchemaElement{
		{AttributeName: aws.String(schema.PartitionKey.Name), KeyType: types.KeyTypeHash},
	}
	if schema.SortKey != nil {
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: aws.String(schema.SortKey.Name),
			KeyType:       types.KeyTypeRange,
		})
	}

	var gsis []types.GlobalSecondaryIndex
	for _, gsi := range schema.GlobalSecondaryIndexes {
		gsiKeySchema := []types.KeySchemaElement{
			{AttributeName: aws.String(gsi.PartitionKey.Name), KeyType: types.KeyTypeHash},
		}
		if gsi.SortKey != nil {
			gsiKeySchema = append(gsiKeySchema, types.KeySchemaElement{
				AttributeName: aws.String(gsi.SortKey.Name),
				KeyType:       types.KeyTypeRange,
			})
		}
		projectionType := types.ProjectionTypeAll
		if gsi.Projection != "" {
			projectionType = types.ProjectionType(gsi.Projection)
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(gsi.IndexName),
			KeySchema:  gsiKeySchema,
			Projection: &types.Projection{ProjectionType: projectionType},
		})
	}

	billingMode := types.BillingModePayPerRequest
	if schema.BillingMode != "" {
		billingMode = types.BillingMode(schema.BillingMode)
	}

	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.TableName),
		AttributeDefinitions: attrDefSlice,
		KeySchema:            keySchema,
		BillingMode:          billingMode,
	}
	if len(gsis) > 0 {
		input.GlobalSecondaryIndexes = gsis
	}

	if schema.Encryption != nil {
		switch schema.Encryption.Type {
		case EncryptionDefault:
			// AWS owned encryption; no SSESpecification needed.
		case EncryptionKMS:
			input.SSESpecification = &types.SSESpecification{Enabled: aws.Bool(true), SSEType: types.SSETypeKms}
		case EncryptionCustomerKey:
			input.SSESpecification = &types.SSESpecification{
				Enabled:        aws.Bool(true),
				SSEType:        types.SSETypeKms,
				KMSMasterKeyId: aws.String(schema.Encryption.KMSKeyARN),
			}
		}
	}

	return input
}
