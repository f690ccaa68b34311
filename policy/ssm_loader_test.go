package policy

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/byteness/sentinel-fraud/testutil"
)

const testConfigYAML = "version: '1'\n" +
	"velocity:\n  user_hourly: 10\n  user_daily: 50\n  device_hourly: 5\n  high_value_daily: 3\n" +
	"geo:\n  distance_km_review: 500\n  impossible_travel_kmh: 500\n" +
	"time:\n  night_window_start: 3\n  night_window_end: 5\n" +
	"amount:\n  first_transaction_step_up: 500\n  review_absolute: 10000\n  review_multiplier_of_mean: 100\n"

func TestSSMLoader_Load_Success(t *testing.T) {
	ssmMock := &testutil.MockSSMClient{
		GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			switch aws.ToString(params.Name) {
			case "/sentinel/rules/config":
				return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(testConfigYAML)}}, nil
			case "/sentinel/rules/signature":
				return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("sig-bytes")}}, nil
			}
			t.Fatalf("unexpected parameter name: %s", aws.ToString(params.Name))
			return nil, nil
		},
	}

	kmsMock := &testutil.MockKMSClient{
		VerifyFunc: func(ctx context.Context, params *kms.VerifyInput, optFns ...func(*kms.Options)) (*kms.VerifyOutput, error) {
			return &kms.VerifyOutput{SignatureValid: true}, nil
		},
	}
	signer := NewConfigSignerWithClient(kmsMock, "test-key")

	loader := newSSMLoaderWithClient(ssmMock, signer, "/sentinel/rules/config", "/sentinel/rules/signature")
	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Velocity.UserHourly != 10 {
		t.Errorf("UserHourly = %d, want 10", cfg.Velocity.UserHourly)
	}
}

func TestSSMLoader_Load_InvalidSignature(t *testing.T) {
	ssmMock := &testutil.MockSSMClient{
		GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(testConfigYAML)}}, nil
		},
	}
	kmsMock := &testutil.MockKMSClient{
		VerifyFunc: func(ctx context.Context, params *kms.VerifyInput, optFns ...func(*kms.Options)) (*kms.VerifyOutput, error) {
			return &kms.VerifyOutput{SignatureValid: false}, nil
		},
	}
	signer := NewConfigSignerWithClient(kmsMock, "test-key")

	loader := newSSMLoaderWithClient(ssmMock, signer, "/sentinel/rules/config", "/sentinel/rules/signature")
	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected signature verification error")
	}
}

func TestSSMLoader_Load_NoSigner(t *testing.T) {
	ssmMock := &testutil.MockSSMClient{
		GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(testConfigYAML)}}, nil
		},
	}
	loader := newSSMLoaderWithClient(ssmMock, nil, "/sentinel/rules/config", "/sentinel/rules/signature")
	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Amount.ReviewAbsolute != 10000 {
		t.Errorf("ReviewAbsolute = %v, want 10000", cfg.Amount.ReviewAbsolute)
	}
}
