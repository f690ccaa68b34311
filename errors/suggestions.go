package errors

import (
	"fmt"
	"strings"
)

// Suggestions contains default fix suggestions for each error code.
var Suggestions = map[string]string{
	ErrCodeSSMAccessDenied: "Ensure your IAM policy includes: ssm:GetParameter on the rules-config parameter.",
	ErrCodeSSMParameterNotFound: "The SSM parameter does not exist. " +
		"Check the configured parameter name, or store a rules document under it.",
	ErrCodeSSMKMSAccessDenied: "The SSM parameter is encrypted. " +
		"Ensure your IAM policy includes: kms:Decrypt on the KMS key used for encryption",
	ErrCodeSSMThrottled:        "SSM API rate limit exceeded. Wait a moment and retry.",
	ErrCodeSSMInvalidParameter: "The SSM parameter name is invalid. Check the path format and characters.",
	ErrCodeDynamoDBAccessDenied: "Ensure your IAM policy includes DynamoDB permissions. " +
		"Grant dynamodb:GetItem/PutItem/UpdateItem/Query on the Sentinel tables.",
	ErrCodeDynamoDBTableNotFound: "The DynamoDB table does not exist. " +
		"Create it with: sentinel provision --config <config>",
	ErrCodeDynamoDBThrottled:       "DynamoDB throughput exceeded. Wait a moment and retry, or increase table capacity.",
	ErrCodeDynamoDBConditionFailed: "The DynamoDB conditional check failed. The item may have been modified by another process.",
	ErrCodePolicyDenied:            "Transaction blocked by the rules engine.",
	ErrCodePolicyNotConfigured:     "No rules configuration is loaded for this deployment. Check the configured rules source and restart.",
	ErrCodeInput:                   "The transaction is malformed. Correct the named fields and resubmit.",
	ErrCodeRateLimited:             "The source is over its admission rate. Honor Retry-After before resubmitting.",
	ErrCodePipeline:                "The decision pipeline failed internally. Check the audit trail for the diagnostic.",
	ErrCodeStore:                   "A persistence write failed. The observation was logged and dropped; check store health.",
	ErrCodeConfig:                  "A startup artifact is missing or malformed. Validate with: sentinel rules validate",
	ErrCodeTimeout:                 "The request exceeded its latency budget and was degraded to review.",
}

// GetSuggestion returns the default suggestion for an error code.
// Returns empty string if no suggestion is defined.
func GetSuggestion(code string) string {
	return Suggestions[code]
}

// WrapSSMError examines an SSM error and returns a SentinelError with context.
func WrapSSMError(err error, parameter string) SentinelError {
	if err == nil {
		return nil
	}

	var code string
	var message string
	var suggestion string

	errStr := strings.ToLower(err.Error())

	switch {
	case isParameterNotFound(errStr):
		code = ErrCodeSSMParameterNotFound
		message = fmt.Sprintf("SSM parameter not found: %s", parameter)
		suggestion = Suggestions[ErrCodeSSMParameterNotFound]
	case isKMSAccessDenied(errStr):
		code = ErrCodeSSMKMSAccessDenied
		message = fmt.Sprintf("KMS access denied for SSM parameter: %s", parameter)
		suggestion = Suggestions[ErrCodeSSMKMSAccessDenied]
	case isAccessDenied(errStr):
		code = ErrCodeSSMAccessDenied
		message = fmt.Sprintf("Access denied to SSM parameter: %s", parameter)
		suggestion = Suggestions[ErrCodeSSMAccessDenied]
	case isThrottled(errStr):
		code = ErrCodeSSMThrottled
		message = fmt.Sprintf("SSM API throttled while accessing: %s", parameter)
		suggestion = Suggestions[ErrCodeSSMThrottled]
	case isValidationError(errStr):
		code = ErrCodeSSMInvalidParameter
		message = fmt.Sprintf("Invalid SSM parameter: %s", parameter)
		suggestion = Suggestions[ErrCodeSSMInvalidParameter]
	default:
		code = ErrCodeSSMAccessDenied
		message = fmt.Sprintf("SSM error for parameter %s: %v", parameter, err)
		suggestion = "Check your AWS credentials and SSM permissions"
	}

	se := NewWithKind(KindConfig, code, message, suggestion, err)
	return WithContext(se, "parameter", parameter)
}

// WrapDynamoDBError examines a DynamoDB error and returns a SentinelError.
func WrapDynamoDBError(err error, table, operation string) SentinelError {
	if err == nil {
		return nil
	}

	var code string
	var message string
	var suggestion string

	errStr := strings.ToLower(err.Error())

	switch {
	case isResourceNotFound(errStr):
		code = ErrCodeDynamoDBTableNotFound
		message = fmt.Sprintf("DynamoDB table not found: %s", table)
		suggestion = Suggestions[ErrCodeDynamoDBTableNotFound]
	case isAccessDenied(errStr):
		code = ErrCodeDynamoDBAccessDenied
		message = fmt.Sprintf("Access denied to DynamoDB table: %s", table)
		suggestion = Suggestions[ErrCodeDynamoDBAccessDenied]
	case isThrottled(errStr) || isProvisionedThroughputExceeded(errStr):
		code = ErrCodeDynamoDBThrottled
		message = fmt.Sprintf("DynamoDB throughput exceeded for table: %s", table)
		suggestion = Suggestions[ErrCodeDynamoDBThrottled]
	case isConditionalCheckFailed(errStr):
		code = ErrCodeDynamoDBConditionFailed
		message = fmt.Sprintf("DynamoDB conditional check failed for table: %s", table)
		suggestion = Suggestions[ErrCodeDynamoDBConditionFailed]
	default:
		code = ErrCodeDynamoDBAccessDenied
		message = fmt.Sprintf("DynamoDB error for table %s during %s: %v", table, operation, err)
		suggestion = "Check your AWS credentials and DynamoDB permissions"
	}

	se := NewWithKind(KindStore, code, message, suggestion, err)
	se = WithContext(se, "table", table)
	return WithContext(se, "operation", operation)
}

// NewConfigError wraps a missing or malformed startup artifact as a
// KindConfig error. Callers treat it as fatal at startup and never
// after.
func NewConfigError(what string, cause error) SentinelError {
	return NewKind(KindConfig, fmt.Sprintf("config: %s: %v", what, cause), cause)
}

// MatchedRule represents the rules-engine rule that forced a hard
// outcome on a transaction. This is a simplified representation for
// error messaging, not the full policy.Rule.
type MatchedRule struct {
	Name        string
	HardOutcome string
	Description string
}

// NewRuleDeniedError creates a SentinelError describing why a
// transaction was blocked by the rules engine, for surfacing in
// operator-facing diagnostics (not the caller-facing Decision, which
// carries its own machine-readable reasons).
func NewRuleDeniedError(transactionID string, matchedRule *MatchedRule) SentinelError {
	var message string
	var suggestion string

	if matchedRule == nil {
		message = fmt.Sprintf("Transaction %s blocked: no rule matched but the pipeline forced a deny", transactionID)
		suggestion = "Check the ML score and policy thresholds; no rules-engine rule fired."
	} else {
		message = fmt.Sprintf("Transaction %s blocked by rule '%s'", transactionID, matchedRule.Name)
		if matchedRule.Description != "" {
			suggestion = fmt.Sprintf("Rule '%s' fired because: %s", matchedRule.Name, matchedRule.Description)
		} else {
			suggestion = fmt.Sprintf("Rule '%s' forced outcome '%s'. Review the rules configuration if this is a false positive.", matchedRule.Name, matchedRule.HardOutcome)
		}
	}

	se := NewWithKind(KindPipeline, ErrCodePolicyDenied, message, suggestion, nil)
	se = WithContext(se, "transaction_id", transactionID)
	if matchedRule != nil {
		se = WithContext(se, "matched_rule", matchedRule.Name)
	}
	return se
}

// isAccessDenied checks if error contains access denied indicators.
func isAccessDenied(errStr string) bool {
	return strings.Contains(errStr, "accessdenied") ||
		strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "not authorized") ||
		strings.Contains(errStr, "403")
}

// isParameterNotFound checks if error indicates parameter not found.
func isParameterNotFound(errStr string) bool {
	return strings.Contains(errStr, "parameternotfound") ||
		strings.Contains(errStr, "parameter not found") ||
		strings.Contains(errStr, "parameterversionnotfound")
}

// isResourceNotFound checks if error indicates resource not found.
func isResourceNotFound(errStr string) bool {
	return strings.Contains(errStr, "resourcenotfound") ||
		strings.Contains(errStr, "resource not found") ||
		strings.Contains(errStr, "table not found") ||
		strings.Contains(errStr, "cannot do operations on a non-existent table")
}

// isThrottled checks if error indicates throttling.
func isThrottled(errStr string) bool {
	return strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "rate exceeded") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "slowdown")
}

// isKMSAccessDenied checks if error indicates KMS access denied.
func isKMSAccessDenied(errStr string) bool {
	return (strings.Contains(errStr, "kms") || strings.Contains(errStr, "key")) &&
		isAccessDenied(errStr)
}

// isValidationError checks if error indicates validation failure.
func isValidationError(errStr string) bool {
	return strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "invalid parameter")
}

// isProvisionedThroughputExceeded checks if error indicates throughput exceeded.
func isProvisionedThroughputExceeded(errStr string) bool {
	return strings.Contains(errStr, "provisionedthroughputexceeded") ||
		strings.Contains(errStr, "throughput exceeded") ||
		strings.Contains(errStr, "capacity")
}

// isConditionalCheckFailed checks if error indicates conditional check failure.
func isConditionalCheckFailed(errStr string) bool {
	return strings.Contains(errStr, "conditionalcheckfailed") ||
		strings.Contains(errStr, "conditional check failed") ||
		strings.Contains(errStr, "condition expression")
}
