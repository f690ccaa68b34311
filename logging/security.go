package logging

import (
	"time"

	"github.com/byteness/sentinel-fraud/iso8601"
)

// SecurityEventLogEntry captures a security monitor detection for the
// audit trail.
type SecurityEventLogEntry struct {
	Timestamp      string            `json:"timestamp"`
	EventID        string            `json:"event_id"`
	Kind           string            `json:"kind"`  // api_abuse, brute_force, data_exfiltration, ...
	Level          int               `json:"level"` // 0 Info ... 4 Critical
	SourceID       string            `json:"source_id"`
	Endpoint       string            `json:"endpoint,omitempty"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RequiresReview bool              `json:"requires_review"`
}

// NewSecurityEventLogEntry builds a SecurityEventLogEntry from detector output.
func NewSecurityEventLogEntry(eventID, kind, sourceID, endpoint, description string, level int, metadata map[string]string) SecurityEventLogEntry {
	return SecurityEventLogEntry{
		Timestamp:      iso8601.Format(time.Now()),
		EventID:        eventID,
		Kind:           kind,
		Level:          level,
		SourceID:       sourceID,
		Endpoint:       endpoint,
		Description:    description,
		Metadata:       metadata,
		RequiresReview: level >= 2,
	}
}
