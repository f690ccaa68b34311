// Package errors provides structured error types for Sentinel. Every
// failure the system reports belongs to one of six kinds -- input,
// rate-limited, pipeline, store, config, timeout -- each with an
// errors.Is-compatible sentinel and a stable code. Errors wrapping AWS
// failures additionally carry actionable fix suggestions.
package errors

import (
	stderrors "errors"
)

// Kind classifies a failure by how it propagates: input errors are
// reported to the caller verbatim, rate-limited errors carry retry
// information, pipeline errors surface as a 500 with a generic
// message, store errors are logged and swallowed, config errors are
// fatal at startup only, and timeout errors degrade the decision to
// Review.
type Kind int

const (
	// KindUnknown is an error that does not participate in the
	// propagation rules above.
	KindUnknown Kind = iota
	// KindInput is a malformed transaction or impossible field
	// combination.
	KindInput
	// KindRateLimited is an admission denial.
	KindRateLimited
	// KindPipeline is a feature-extraction, rules, ML, or policy
	// failure.
	KindPipeline
	// KindStore is an event- or session-persistence failure.
	KindStore
	// KindConfig is a missing or malformed artifact at startup.
	KindConfig
	// KindTimeout is a request-budget overrun.
	KindTimeout
)

// Sentinel errors, one per Kind. Errors created by this package with a
// kind match them via errors.Is, so callers can branch on kind without
// knowing the concrete type:
//
//	if errors.Is(err, sentinelerrors.ErrStore) { log and continue }
var (
	ErrInput       = stderrors.New("sentinel: input error")
	ErrRateLimited = stderrors.New("sentinel: rate limited")
	ErrPipeline    = stderrors.New("sentinel: pipeline error")
	ErrStore       = stderrors.New("sentinel: store error")
	ErrConfig      = stderrors.New("sentinel: config error")
	ErrTimeout     = stderrors.New("sentinel: timeout")
)

// String returns the kind's stable code.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return ErrCodeInput
	case KindRateLimited:
		return ErrCodeRateLimited
	case KindPipeline:
		return ErrCodePipeline
	case KindStore:
		return ErrCodeStore
	case KindConfig:
		return ErrCodeConfig
	case KindTimeout:
		return ErrCodeTimeout
	default:
		return "UNKNOWN"
	}
}

// sentinel returns the errors.Is target for this kind, or nil for
// KindUnknown.
func (k Kind) sentinel() error {
	switch k {
	case KindInput:
		return ErrInput
	case KindRateLimited:
		return ErrRateLimited
	case KindPipeline:
		return ErrPipeline
	case KindStore:
		return ErrStore
	case KindConfig:
		return ErrConfig
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// KindOf reports the kind of err, unwrapping as needed. Errors that
// carry no kind report KindUnknown.
func KindOf(err error) Kind {
	for _, k := range []Kind{KindInput, KindRateLimited, KindPipeline, KindStore, KindConfig, KindTimeout} {
		if stderrors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindUnknown
}

// Kind codes: the wire-stable strings transports put in error response
// bodies.
const (
	ErrCodeInput       = "INPUT_ERROR"
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodePipeline    = "PIPELINE_ERROR"
	ErrCodeStore       = "STORE_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
	ErrCodeTimeout     = "TIMEOUT"
)

// SSM error codes (rules/thresholds configuration fetch; KindConfig).
const (
	ErrCodeSSMAccessDenied      = "SSM_ACCESS_DENIED"
	ErrCodeSSMParameterNotFound = "SSM_PARAMETER_NOT_FOUND"
	ErrCodeSSMKMSAccessDenied   = "SSM_KMS_ACCESS_DENIED"
	ErrCodeSSMThrottled         = "SSM_THROTTLED"
	ErrCodeSSMInvalidParameter  = "SSM_INVALID_PARAMETER"
)

// DynamoDB error codes (event/session/device persistence; KindStore).
const (
	ErrCodeDynamoDBAccessDenied    = "DYNAMODB_ACCESS_DENIED"
	ErrCodeDynamoDBTableNotFound   = "DYNAMODB_TABLE_NOT_FOUND"
	ErrCodeDynamoDBThrottled       = "DYNAMODB_THROTTLED"
	ErrCodeDynamoDBConditionFailed = "DYNAMODB_CONDITION_FAILED"
)

// Policy error codes (rules-engine outcomes; KindPipeline).
const (
	ErrCodePolicyDenied        = "POLICY_DENIED"
	ErrCodePolicyNotConfigured = "POLICY_NOT_CONFIGURED"
)

// SentinelError provides additional context for error handling.
// It wraps underlying errors with a kind, an error code, and an
// actionable suggestion.
type SentinelError interface {
	error
	Unwrap() error              // Original error
	Kind() Kind                 // Propagation class
	Code() string               // Error code (e.g., "SSM_ACCESS_DENIED")
	Suggestion() string         // Actionable fix suggestion
	Context() map[string]string // Additional context (parameter, table, etc.)
}

// sentinelError implements the SentinelError interface.
type sentinelError struct {
	kind       Kind
	code       string
	message    string
	suggestion string
	context    map[string]string
	cause      error
}

// Error implements the error interface.
func (e *sentinelError) Error() string {
	return e.message
}

// Unwrap returns the underlying cause error.
func (e *sentinelError) Unwrap() error {
	return e.cause
}

// Is matches the error's own kind sentinel, so errors.Is(err,
// ErrStore) holds for every KindStore error regardless of its cause
// chain.
func (e *sentinelError) Is(target error) bool {
	s := e.kind.sentinel()
	return s != nil && target == s
}

// Kind returns the propagation class.
func (e *sentinelError) Kind() Kind {
	return e.kind
}

// Code returns the error code.
func (e *sentinelError) Code() string {
	return e.code
}

// Suggestion returns the actionable fix suggestion.
func (e *sentinelError) Suggestion() string {
	return e.suggestion
}

// Context returns additional context about the error.
func (e *sentinelError) Context() map[string]string {
	return e.context
}

// New creates a new SentinelError with the given code, message,
// suggestion, and cause, with no propagation kind.
func New(code, message, suggestion string, cause error) SentinelError {
	return NewWithKind(KindUnknown, code, message, suggestion, cause)
}

// NewWithKind creates a new SentinelError carrying a propagation kind
// alongside the code, message, suggestion, and cause.
func NewWithKind(kind Kind, code, message, suggestion string, cause error) SentinelError {
	return &sentinelError{
		kind:       kind,
		code:       code,
		message:    message,
		suggestion: suggestion,
		context:    make(map[string]string),
		cause:      cause,
	}
}

// NewKind creates a SentinelError classified only by kind: the code is
// the kind's stable code and the suggestion comes from the default
// Suggestions table.
func NewKind(kind Kind, message string, cause error) SentinelError {
	return NewWithKind(kind, kind.String(), message, Suggestions[kind.String()], cause)
}

// WithContext adds context to an error and returns a new SentinelError.
// The original error is not modified.
func WithContext(err SentinelError, key, value string) SentinelError {
	// Get existing context
	existingCtx := err.Context()
	newCtx := make(map[string]string, len(existingCtx)+1)
	for k, v := range existingCtx {
		newCtx[k] = v
	}
	newCtx[key] = value

	return &sentinelError{
		kind:       err.Kind(),
		code:       err.Code(),
		message:    err.Error(),
		suggestion: err.Suggestion(),
		context:    newCtx,
		cause:      err.Unwrap(),
	}
}

// IsSentinelError checks if err is a SentinelError and returns it.
// If err is nil or not a SentinelError, returns (nil, false).
func IsSentinelError(err error) (SentinelError, bool) {
	if err == nil {
		return nil, false
	}
	if se, ok := err.(SentinelError); ok {
		return se, true
	}
	return nil, false
}

// GetCode extracts the error code from an error.
// Returns empty string if err is not a SentinelError.
func GetCode(err error) string {
	if se, ok := IsSentinelError(err); ok {
		return se.Code()
	}
	return ""
}
