package eventstore

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-fraud/security"
)

// writeJob is one mutation, applied to MemoryStore's guarded state by
// the single runWriter goroutine. Serializing every write through one
// goroutine keeps the store a single logical writer;
// readers take the RWMutex's read lock directly and are never blocked
// behind the writer's queue.
type writeJob struct {
	apply func()
	done  chan struct{}
}

// MemoryStore is the default Store: an in-process system of record.
// Events are kept in insertion order and queries scan them; there are
// no secondary indices.
// It does not survive a process restart; use DynamoDBStore for that.
type MemoryStore struct {
	mu sync.RWMutex

	events     map[string]*SecurityEvent
	eventOrder []string // insertion order, oldest first

	access []APIAccess

	// blocks holds only the current row per source. Historical
	// block/unblock transitions are reconstructable from the
	// security_events and audit_trail tables; the memory backend does
	// not keep a separate block history table.
	blocks map[string]*BlockedSource

	auditLog []AuditEntry

	writeCh chan writeJob
	closed  chan struct{}
	wg      sync.WaitGroup
}

// NewMemoryStore creates a MemoryStore and starts its writer goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		events:  make(map[string]*SecurityEvent),
		blocks:  make(map[string]*BlockedSource),
		writeCh: make(chan writeJob, 256),
		closed:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runWriter()
	return s
}

func (s *MemoryStore) runWriter() {
	defer s.wg.Done()
	for job := range s.writeCh {
		job.apply()
		close(job.done)
	}
}

// Close stops the writer goroutine once queued writes drain. Safe to
// call once; further writes after Close will block forever and should
// not be issued.
func (s *MemoryStore) Close() {
	close(s.writeCh)
	s.wg.Wait()
}

func (s *MemoryStore) submit(ctx context.Context, apply func()) error {
	job := writeJob{apply: apply, done: make(chan struct{})}
	select {
	case s.writeCh <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) StoreEvent(ctx context.Context, event SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e := event
		s.events[e.ID] = &e
		s.eventOrder = append(s.eventOrder, e.ID)
	})
}

func (s *MemoryStore) LogAccess(ctx context.Context, access APIAccess) error {
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.Timestamp.IsZero() {
		access.Timestamp = time.Now()
	}
	return s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.access = append(s.access, access)
	})
}

func (s *MemoryStore) RecordBlock(ctx context.Context, block BlockedSource) error {
	if block.BlockedAt.IsZero() {
		block.BlockedAt = time.Now()
	}
	return s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		b := block
		s.blocks[b.Source] = &b
	})
}

func (s *MemoryStore) Unblock(ctx context.Context, source, unblockedBy string, now time.Time) error {
	return s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		b, ok := s.blocks[source]
		if !ok || !b.Blocked() {
			return
		}
		t := now
		b.UnblockedAt = &t
		b.UnblockedBy = unblockedBy
	})
}

func (s *MemoryStore) RecordAudit(ctx context.Context, actor, action, resource string, success bool, metadata map[string]string) {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Success:   success,
		Metadata:  metadata,
	}
	err := s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auditLog = append(s.auditLog, entry)
	})
	if err != nil {
		log.Printf("eventstore: audit write for actor %s action %s not confirmed: %v", actor, action, err)
	}
}

func (s *MemoryStore) RecentEvents(ctx context.Context, filter EventFilter) ([]SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := enforceLimit(filter.Limit)
	var out []SecurityEvent
	for i := len(s.eventOrder) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[s.eventOrder[i]]
		if e == nil {
			continue
		}
		if filter.MinLevel != 0 && e.Level < filter.MinLevel {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) ReviewQueue(ctx context.Context, limit int) ([]SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	effLimit := enforceLimit(limit)
	var out []SecurityEvent
	for i := len(s.eventOrder) - 1; i >= 0 && len(out) < effLimit; i-- {
		e := s.events[s.eventOrder[i]]
		if e == nil {
			continue
		}
		if e.Level >= security.LevelMedium && !e.Reviewed() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *MemoryStore) ReviewEvent(ctx context.Context, id, reviewedBy, action, notes string) error {
	found := true
	err := s.submit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e, ok := s.events[id]
		if !ok {
			found = false
			return
		}
		e.ReviewedBy = reviewedBy
		e.ReviewAction = action
		e.ReviewNotes = notes
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrEventNotFound
	}
	return nil
}

func (s *MemoryStore) Dashboard(ctx context.Context) (DashboardAggregates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := DashboardAggregates{
		TotalsByKind:  make(map[security.Kind]int),
		TotalsByLevel: make(map[security.Level]int),
	}
	for _, id := range s.eventOrder {
		e := s.events[id]
		if e == nil {
			continue
		}
		agg.TotalsByKind[e.Kind]++
		agg.TotalsByLevel[e.Level]++
		if e.Level >= security.LevelMedium && !e.Reviewed() {
			agg.PendingReviews++
		}
	}
	for _, b := range s.blocks {
		if b.Blocked() {
			agg.BlockedSourcesCount++
		}
	}
	const recentN = 10
	for i := len(s.eventOrder) - 1; i >= 0 && len(agg.Recent) < recentN; i-- {
		if e := s.events[s.eventOrder[i]]; e != nil {
			agg.Recent = append(agg.Recent, *e)
		}
	}
	return agg, nil
}

func (s *MemoryStore) SourceRisk(ctx context.Context, source string, window time.Duration) (SourceRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	profile := SourceRiskProfile{
		Source:        source,
		Window:        window,
		EventsByLevel: make(map[security.Level]int),
		EventsByKind:  make(map[security.Kind]int),
	}
	for _, id := range s.eventOrder {
		e := s.events[id]
		if e == nil || e.Source != source || e.Timestamp.Before(cutoff) {
			continue
		}
		profile.EventsByLevel[e.Level]++
		profile.EventsByKind[e.Kind]++
	}
	if b, ok := s.blocks[source]; ok {
		profile.CurrentlyBlocked = b.Blocked()
	}
	return profile, nil
}

func (s *MemoryStore) BlockedSources(ctx context.Context) ([]BlockedSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []BlockedSource
	for _, b := range s.blocks {
		if b.Blocked() {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })
	return out, nil
}

func (s *MemoryStore) IsBlocked(ctx context.Context, source string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[source]
	return ok && b.Blocked(), nil
}

func (s *MemoryStore) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := enforceLimit(filter.Limit)
	var matched []AuditEntry
	for i := len(s.auditLog) - 1; i >= 0; i-- {
		e := s.auditLog[i]
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		matched = append(matched, e)
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

var _ Store = (*MemoryStore)(nil)
