package testutil

import (
	"context"
	"sync"

	"github.com/byteness/sentinel-fraud/logging"
	"github.com/byteness/sentinel-fraud/notification"
)

// ============================================================================
// MockNotifier - notification.Notifier interface
// ============================================================================

// MockNotifier implements notification.Notifier for testing.
// Tracks all notification calls for assertions.
type MockNotifier struct {
	mu sync.Mutex

	// Configurable behavior function
	NotifyFunc func(ctx context.Context, event *notification.Event) error

	// Error injection
	NotifyErr error

	// Call tracking
	NotifyCalls []*notification.Event
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify sends a notification.
func (m *MockNotifier) Notify(ctx context.Context, event *notification.Event) error {
	m.mu.Lock()
	m.NotifyCalls = append(m.NotifyCalls, event)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	return nil
}

// Reset clears all call tracking.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyCalls = nil
}

// NotifyCallCount returns the number of Notify calls made.
func (m *MockNotifier) NotifyCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.NotifyCalls)
}

// LastNotification returns the last notification event, or nil if none.
func (m *MockNotifier) LastNotification() *notification.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.NotifyCalls) == 0 {
		return nil
	}
	return m.NotifyCalls[len(m.NotifyCalls)-1]
}

// ============================================================================
// MockLogger - logging.Logger interface
// ============================================================================

// MockLogger implements logging.Logger for testing.
// Captures all log entries for assertions.
type MockLogger struct {
	mu sync.Mutex

	// Captured log entries
	DecisionEntries      []logging.DecisionLogEntry
	SecurityEventEntries []logging.SecurityEventLogEntry
	SessionEntries       []logging.SessionLogEntry
}

// NewMockLogger creates a new MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// LogDecision logs a fraud decision entry.
func (m *MockLogger) LogDecision(entry logging.DecisionLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecisionEntries = append(m.DecisionEntries, entry)
}

// LogSecurityEvent logs a security monitor detection.
func (m *MockLogger) LogSecurityEvent(entry logging.SecurityEventLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SecurityEventEntries = append(m.SecurityEventEntries, entry)
}

// LogSession logs a session risk-state change.
func (m *MockLogger) LogSession(entry logging.SessionLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionEntries = append(m.SessionEntries, entry)
}

// Reset clears all captured log entries.
func (m *MockLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecisionEntries = nil
	m.SecurityEventEntries = nil
	m.SessionEntries = nil
}

// DecisionCount returns the number of decision log entries.
func (m *MockLogger) DecisionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DecisionEntries)
}

// SecurityEventCount returns the number of security event log entries.
func (m *MockLogger) SecurityEventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SecurityEventEntries)
}

// SessionCount returns the number of session log entries.
func (m *MockLogger) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SessionEntries)
}

// LastDecision returns the last decision log entry, or empty if none.
func (m *MockLogger) LastDecision() logging.DecisionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.DecisionEntries) == 0 {
		return logging.DecisionLogEntry{}
	}
	return m.DecisionEntries[len(m.DecisionEntries)-1]
}

// LastSecurityEvent returns the last security event log entry, or empty if none.
func (m *MockLogger) LastSecurityEvent() logging.SecurityEventLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SecurityEventEntries) == 0 {
		return logging.SecurityEventLogEntry{}
	}
	return m.SecurityEventEntries[len(m.SecurityEventEntries)-1]
}

// LastSession returns the last session log entry, or empty if none.
func (m *MockLogger) LastSession() logging.SessionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SessionEntries) == 0 {
		return logging.SessionLogEntry{}
	}
	return m.SessionEntries[len(m.SessionEntries)-1]
}
