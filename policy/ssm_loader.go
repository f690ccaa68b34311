package policy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"

	sentinelerrors "github.com/byteness/sentinel-fraud/errors"
)

// ssmAPI defines the SSM operations used by SSMLoader.
// This interface enables testing with mock implementations.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Document is the signed, versioned rules configuration as it is stored in
// Parameter Store: the canonical YAML encoding of a Config alongside its
// KMS signature.
type Document struct {
	YAML      []byte
	Signature []byte
}

// SSMLoader fetches the signed rules configuration from SSM Parameter
// Store and verifies it against ConfigSigner before returning a usable
// Config, rejecting a tampered document as a load-time error rather than
// letting it silently take effect.
type SSMLoader struct {
	ssm    ssmAPI
	signer *ConfigSigner

	configParam    string
	signatureParam string
}

// NewSSMLoader creates an SSMLoader using the provided AWS configuration.
func NewSSMLoader(cfg aws.Config, signer *ConfigSigner, configParam, signatureParam string) *SSMLoader {
	return &SSMLoader{
		ssm:            ssm.NewFromConfig(cfg),
		signer:         signer,
		configParam:    configParam,
		signatureParam: signatureParam,
	}
}

// newSSMLoaderWithClient creates an SSMLoader with a custom SSM client.
// This is primarily used for testing with mock clients.
func newSSMLoaderWithClient(client ssmAPI, signer *ConfigSigner, configParam, signatureParam string) *SSMLoader {
	return &SSMLoader{
		ssm:            client,
		signer:         signer,
		configParam:    configParam,
		signatureParam: signatureParam,
	}
}

// Load fetches, verifies, and parses the rules configuration document.
// A signature mismatch is reported as an error; the caller must not fall
// back to a previously-loaded Config on this path (the Config keeps
// serving the last good value until Load next succeeds).
func (l *SSMLoader) Load(ctx context.Context) (Config, error) {
	configYAML, err := l.getParameter(ctx, l.configParam)
	if err != nil {
		return Config{}, fmt.Errorf("policy: fetch config parameter: %w", err)
	}
	signature, err := l.getParameter(ctx, l.signatureParam)
	if err != nil {
		return Config{}, fmt.Errorf("policy: fetch signature parameter: %w", err)
	}

	if l.signer != nil {
		valid, err := l.signer.Verify(ctx, configYAML, signature)
		if err != nil {
			return Config{}, fmt.Errorf("policy: verify config signature: %w", err)
		}
		if !valid {
			return Config{}, fmt.Errorf("policy: config signature verification failed, refusing to load")
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(configYAML, &cfg); err != nil {
		return Config{}, fmt.Errorf("policy: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("policy: invalid config: %w", err)
	}
	return cfg, nil
}

func (l *SSMLoader) getParameter(ctx context.Context, name string) ([]byte, error) {
	output, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, sentinelerrors.WrapSSMError(err, name)
	}
	return []byte(aws.ToString(output.Parameter.Value)), nil
}
