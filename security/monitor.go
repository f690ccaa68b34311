package security

import (
	"context"
	"sync"
	"time"

	"github.com/byteness/sentinel-fraud/notification"
)

// Monitor maintains per-source rolling windows and evaluates the
// threat-detection battery on every request. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	windows  map[string]*sourceWindow
	blocker  Blocker
	notifier notification.Notifier
}

// NewMonitor creates a Monitor. blocker may be nil, in which case a
// level-4 event is still returned to the caller but nothing is
// auto-blocked.
func NewMonitor(blocker Blocker) *Monitor {
	return &Monitor{
		windows:  make(map[string]*sourceWindow),
		blocker:  blocker,
		notifier: &notification.NoopNotifier{},
	}
}

// WithNotifier attaches a notifier that receives a security.threat_detected
// event for every level-4 detection, in addition to the synchronous
// auto-block path below, which never depends on delivery succeeding.
func (m *Monitor) WithNotifier(n notification.Notifier) *Monitor {
	if n != nil {
		m.notifier = n
	}
	return m
}

// Observe updates source's rolling window with meta and evaluates
// every detection predicate, returning the SecurityEvents that should
// be emitted this call. A level-4 event triggers an auto-block via the
// configured Blocker.
func (m *Monitor) Observe(ctx context.Context, meta RequestMeta, now time.Time) []Event {
	m.mu.Lock()
	w, ok := m.windows[meta.Source]
	if !ok {
		w = newSourceWindow()
		m.windows[meta.Source] = w
	}

	w.recordRequest(meta, now)

	detections := []detection{
		detectAPIAbuse(w, now),
		detectBruteForce(w, now),
		detectDataExfiltration(w, meta, now),
		detectInsiderThreat(meta, now),
		detectPrivilegeEscalation(w, meta),
		detectUnusualAccess(w, meta, now),
		detectSystemAnomaly(meta),
	}

	var events []Event
	for _, d := range detections {
		if !w.shouldEmit(d.family, d.triggered, d.level, now) {
			continue
		}
		events = append(events, Event{
			Source:         meta.Source,
			Kind:           d.kind,
			Level:          d.level,
			Endpoint:       meta.Endpoint,
			Description:    d.description,
			Timestamp:      now,
			RequiresReview: d.level >= LevelMedium,
		})
	}

	w.commitHistory(meta, now)
	m.mu.Unlock()

	for _, e := range events {
		if e.Level == LevelCritical {
			if m.blocker != nil {
				_ = m.blocker.BlockSource(ctx, e.Source, string(e.Kind)+": "+e.Description, e.Level)
			}
			_ = m.notifier.Notify(ctx, notification.NewEvent(
				notification.EventThreatDetected, e.Source, string(e.Kind), e.Description, int(e.Level), "system",
			))
		}
	}

	return events
}
