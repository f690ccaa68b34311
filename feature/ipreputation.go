package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// MemoryIPReputation is a simple in-memory IPReputation, used in tests and
// as a seedable fixture for local development.
type MemoryIPReputation struct {
	mu    sync.RWMutex
	risks map[string]float64
}

// NewMemoryIPReputation creates an empty reputation table.
func NewMemoryIPReputation() *MemoryIPReputation {
	return &MemoryIPReputation{risks: make(map[string]float64)}
}

// Set records a risk score for a source address.
func (m *MemoryIPReputation) Set(sourceIP string, risk float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risks[sourceIP] = risk
}

// Risk implements IPReputation.
func (m *MemoryIPReputation) Risk(sourceIP string) (risk float64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	risk, ok = m.risks[sourceIP]
	return risk, ok
}

// secretsAPI defines the Secrets Manager operation SecretsIPReputationClient
// depends on, narrowed for testability.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsIPReputationClient calls a third-party IP reputation API, using
// an API key stored in Secrets Manager rather than process configuration
// so the key can be rotated without a redeploy. The key is fetched once
// at construction and cached for the client's lifetime.
type SecretsIPReputationClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewSecretsIPReputationClient resolves the API key from Secrets Manager
// and returns a ready-to-use client. endpoint is the base URL of the
// reputation service; the client appends "?ip=<addr>&key=<apiKey>".
func NewSecretsIPReputationClient(ctx context.Context, cfg aws.Config, secretID, endpoint string) (*SecretsIPReputationClient, error) {
	client := secretsmanager.NewFromConfig(cfg)
	return newSecretsIPReputationClientWithAPI(ctx, client, secretID, endpoint)
}

func newSecretsIPReputationClientWithAPI(ctx context.Context, client secretsAPI, secretID, endpoint string) (*SecretsIPReputationClient, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ip reputation api key: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", secretID)
	}
	return &SecretsIPReputationClient{
		httpClient: &http.Client{Timeout: 2 * time.Second},
		endpoint:   endpoint,
		apiKey:     *out.SecretString,
	}, nil
}

type reputationResponse struct {
	Risk  float64 `json:"risk"`
	Found bool    `json:"found"`
}

// Risk implements IPReputation. A transport or decode failure is treated
// as a lookup miss, not an error: the feature extractor falls back to the
// documented default risk of 0.5 rather than blocking the decision path
// on a third-party outage.
func (c *SecretsIPReputationClient) Risk(sourceIP string) (risk float64, ok bool) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint, nil)
	if err != nil {
		return 0, false
	}
	q := req.URL.Query()
	q.Set("ip", sourceIP)
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var body reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false
	}
	if !body.Found {
		return 0, false
	}
	return body.Risk, true
}
