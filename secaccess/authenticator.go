// Package secaccess authenticates SOC analysts on the security and
// session API surface. Analysts present short-lived STS credentials as
// a bearer token; the authenticator validates them by calling
// GetCallerIdentity and caches the resulting identity briefly so a
// busy analyst console does not generate one STS round trip per
// request.
package secaccess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Sentinel errors callers can test with errors.Is. A transport maps
// any of them to a 401.
var (
	// ErrMissingCredentials means no Authorization header was supplied.
	ErrMissingCredentials = errors.New("secaccess: missing credentials")
	// ErrMalformedCredentials means the bearer token could not be
	// parsed into STS credentials.
	ErrMalformedCredentials = errors.New("secaccess: malformed credentials")
	// ErrInvalidCredentials means STS rejected the credentials.
	ErrInvalidCredentials = errors.New("secaccess: invalid credentials")
)

// identityTTL bounds how long a validated identity is served from
// cache before STS is consulted again. Short enough that a revoked
// session stops working promptly, long enough to absorb a console's
// request burst.
const identityTTL = 5 * time.Minute

// Analyst is the STS-verified identity of the caller.
type Analyst struct {
	ARN     string
	Account string
	UserID  string
}

// Credentials are the short-lived STS credentials an analyst presents.
// The session token is mandatory: long-lived IAM user keys are not
// accepted on this surface.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ParseBearerToken extracts Credentials from an Authorization header
// of the form "Bearer <access-key-id>:<secret-access-key>:<session-token>".
func ParseBearerToken(authorization string) (Credentials, error) {
	if authorization == "" {
		return Credentials{}, ErrMissingCredentials
	}
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return Credentials{}, fmt.Errorf("%w: not a bearer token", ErrMalformedCredentials)
	}
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Credentials{}, fmt.Errorf("%w: want access-key-id:secret-access-key:session-token", ErrMalformedCredentials)
	}
	return Credentials{
		AccessKeyID:     parts[0],
		SecretAccessKey: parts[1],
		SessionToken:    parts[2],
	}, nil
}

// stsAPI defines the STS operations used by Authenticator.
// This interface enables testing with mock implementations.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type cachedIdentity struct {
	analyst Analyst
	expires time.Time
}

// Authenticator validates analyst bearer tokens against STS. Safe for
// concurrent use.
type Authenticator struct {
	clientFor func(Credentials) stsAPI
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

// NewAuthenticator creates an Authenticator whose STS calls are signed
// with the credentials each caller presents, in the given region.
func NewAuthenticator(region string) *Authenticator {
	return &Authenticator{
		clientFor: func(c Credentials) stsAPI {
			return sts.NewFromConfig(aws.Config{
				Region:      region,
				Credentials: credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
			})
		},
		now:   time.Now,
		cache: make(map[string]cachedIdentity),
	}
}

// newAuthenticatorWithClient creates an Authenticator with a custom
// client factory. This is primarily used for testing with mock clients.
func newAuthenticatorWithClient(clientFor func(Credentials) stsAPI) *Authenticator {
	return &Authenticator{
		clientFor: clientFor,
		now:       time.Now,
		cache:     make(map[string]cachedIdentity),
	}
}

// Authenticate parses the Authorization header and resolves it to an
// Analyst, consulting the cache first. All failures map to one of the
// package's sentinel errors.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (Analyst, error) {
	creds, err := ParseBearerToken(authorization)
	if err != nil {
		return Analyst{}, err
	}

	key := cacheKey(creds)
	now := a.now()

	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && now.Before(entry.expires) {
		a.mu.Unlock()
		return entry.analyst, nil
	}
	a.mu.Unlock()

	out, err := a.clientFor(creds).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Analyst{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	analyst := Analyst{
		ARN:     aws.ToString(out.Arn),
		Account: aws.ToString(out.Account),
		UserID:  aws.ToString(out.UserId),
	}

	a.mu.Lock()
	for k, entry := range a.cache {
		if !now.Before(entry.expires) {
			delete(a.cache, k)
		}
	}
	a.cache[key] = cachedIdentity{analyst: analyst, expires: now.Add(identityTTL)}
	a.mu.Unlock()

	return analyst, nil
}

// cacheKey hashes the full credential triple so the cache never holds
// secret material.
func cacheKey(c Credentials) string {
	h := sha256.Sum256([]byte(c.AccessKeyID + "\x00" + c.SecretAccessKey + "\x00" + c.SessionToken))
	return hex.EncodeToString(h[:])
}
