// Package notification provides event types and interfaces for Sentinel's
// alerting system. It enables pluggable notification delivery when the
// security monitor emits a SecurityEvent and when the decision pipeline
// reaches an outcome an analyst should know about.
//
// # Event Types
//
// The event types are:
//   - security.threat_detected: a detector predicate fired
//   - security.auto_block: a source was automatically blocked
//   - decision.block: the combiner reached a Block outcome
//
// The security monitor emits security.threat_detected for each level-4
// detection; nothing in this module emits the other two types.
//
// # Notification Delivery
//
// The Notifier interface allows pluggable notification backends (SNS,
// webhook, etc.). MultiNotifier composes multiple backends for fanout
// delivery.
package notification

import (
	"time"
)

// EventType represents the type of notification event.
type EventType string

const (
	// EventThreatDetected is emitted when a security detector predicate fires.
	EventThreatDetected EventType = "security.threat_detected"
	// EventAutoBlock is emitted when the security monitor auto-blocks a source.
	EventAutoBlock EventType = "security.auto_block"
	// EventDecisionBlock is emitted when the policy combiner reaches Block.
	EventDecisionBlock EventType = "decision.block"
)

// IsValid returns true if the EventType is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventThreatDetected, EventAutoBlock, EventDecisionBlock:
		return true
	}
	return false
}

// String returns the string representation of the EventType.
func (t EventType) String() string {
	return string(t)
}

// Event represents a notification event triggered by monitoring activity.
// It deliberately carries plain fields rather than a security.SecurityEvent
// or txn.Decision value so this package has no dependency on either.
type Event struct {
	// Type is the event type.
	Type EventType

	// SourceID identifies the source the event concerns (user, device, or
	// network address, depending on how the event was keyed).
	SourceID string

	// ThreatLevel is 0 (Info) through 4 (Critical); zero for non-security events.
	ThreatLevel int

	// Kind is the detector name ("brute_force", "data_exfiltration", ...)
	// or decision outcome name, as applicable.
	Kind string

	// Description is a human-readable summary.
	Description string

	// Metadata carries structured context (rule names, counts, thresholds).
	Metadata map[string]string

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Actor is who or what triggered the event ("system" for automated
	// detections, an analyst ID for manual actions).
	Actor string
}

// NewEvent creates a new notification event. The timestamp is set to the
// current time.
func NewEvent(eventType EventType, sourceID, kind, description string, level int, actor string) *Event {
	return &Event{
		Type:        eventType,
		SourceID:    sourceID,
		Kind:        kind,
		Description: description,
		ThreatLevel: level,
		Timestamp:   time.Now(),
		Actor:       actor,
	}
}
