// Package logging provides structured logging for the decision pipeline.
// It defines a Logger interface and implementations for JSON output
// and no-op logging.
package logging

import (
	"encoding/json"
	"io"
)

// Logger defines the interface for logging decision, security, and session
// activity.
type Logger interface {
	// LogDecision logs a fraud decision entry.
	LogDecision(entry DecisionLogEntry)

	// LogSecurityEvent logs a security monitor detection.
	LogSecurityEvent(entry SecurityEventLogEntry)

	// LogSession logs a session risk-state change.
	LogSession(entry SessionLogEntry)
}

// JSONLogger implements Logger with JSON Lines output.
// Each entry is written as a single line of JSON suitable for log aggregation.
type JSONLogger struct {
	writer io.Writer
}

// NewJSONLogger creates a new JSONLogger that writes to the given writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{writer: w}
}

func (l *JSONLogger) writeLine(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// LogDecision writes the entry as a single line of JSON.
func (l *JSONLogger) LogDecision(entry DecisionLogEntry) { l.writeLine(entry) }

// LogSecurityEvent writes the entry as a single line of JSON.
func (l *JSONLogger) LogSecurityEvent(entry SecurityEventLogEntry) { l.writeLine(entry) }

// LogSession writes the entry as a single line of JSON.
func (l *JSONLogger) LogSession(entry SessionLogEntry) { l.writeLine(entry) }

// NopLogger implements Logger but discards all entries.
// Useful for testing or when logging is disabled.
type NopLogger struct{}

// NewNopLogger creates a new NopLogger that discards all entries.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// LogDecision discards the entry.
func (l *NopLogger) LogDecision(entry DecisionLogEntry) {}

// LogSecurityEvent discards the entry.
func (l *NopLogger) LogSecurityEvent(entry SecurityEventLogEntry) {}

// LogSession discards the entry.
func (l *NopLogger) LogSession(entry SessionLogEntry) {}
