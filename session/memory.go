package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// entry is one session's state plus its own lock, so RecordTransaction
// calls for different sessions never contend with each other while calls
// for the same session are serialised.
type entry struct {
	mu      sync.Mutex
	session Session
	events  []Event
}

// MemoryStore implements Store entirely in memory. Safe for concurrent
// use. It is the default backend and the one the in-process behavioral
// test scenarios exercise; DynamoDBStore is the persistent backend for
// a deployed instance.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*entry)}
}

func (m *MemoryStore) entryFor(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{}
		m.sessions[id] = e
	}
	return e
}

// RecordTransaction implements Store.
func (m *MemoryStore) RecordTransaction(ctx context.Context, in RecordTransactionInput) (Session, error) {
	e := m.entryFor(in.SessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.ID == "" {
		e.session = Session{
			ID:                 in.SessionID,
			AccountID:          in.AccountID,
			CreatedAt:          in.Now,
			LastActivityAt:     in.Now,
			Metadata:           in.Metadata,
			FirstLocation:      in.Location,
			FirstTransactionAt: in.Now,
		}
		e.events = append(e.events, Event{SessionID: in.SessionID, Kind: EventStart, At: in.Now})
	}

	if e.session.Terminated {
		return e.session, nil
	}

	e.session.TransactionCount++
	e.session.TotalAmount += in.Amount
	if in.IsNewBeneficiary {
		e.session.NewBeneficiaryCount++
	}
	e.session.LastActivityAt = in.Now
	e.events = append(e.events, Event{
		SessionID: in.SessionID,
		Kind:      EventTransaction,
		At:        in.Now,
		Data: map[string]any{
			"amount":             in.Amount,
			"location":           in.Location,
			"is_new_beneficiary": in.IsNewBeneficiary,
		},
	})

	return e.session, nil
}

// UpdateRisk implements Store.
func (m *MemoryStore) UpdateRisk(ctx context.Context, sessionID string, riskScore float64, signals, anomalies []string) (Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.RiskScore = riskScore
	e.session.SignalsTriggered = signals
	e.session.Anomalies = anomalies
	return e.session, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// ListActive implements Store.
func (m *MemoryStore) ListActive(ctx context.Context, limit int) ([]Session, error) {
	return m.filtered(enforceLimit(limit), func(s Session) bool { return !s.Terminated }, byLastActivityDesc)
}

// ListByAccount implements Store.
func (m *MemoryStore) ListByAccount(ctx context.Context, accountID string, activeOnly bool, limit int) ([]Session, error) {
	return m.filtered(enforceLimit(limit), func(s Session) bool {
		if s.AccountID != accountID {
			return false
		}
		return !activeOnly || !s.Terminated
	}, byLastActivityDesc)
}

// ListSuspicious implements Store.
func (m *MemoryStore) ListSuspicious(ctx context.Context, minRisk float64, limit int) ([]Session, error) {
	return m.filtered(enforceLimit(limit), func(s Session) bool { return s.RiskScore >= minRisk }, byRiskDesc)
}

func byLastActivityDesc(a, b Session) bool { return a.LastActivityAt.After(b.LastActivityAt) }
func byRiskDesc(a, b Session) bool         { return a.RiskScore > b.RiskScore }

func (m *MemoryStore) filtered(limit int, keep func(Session) bool, less func(a, b Session) bool) ([]Session, error) {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		e.mu.Unlock()
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events implements Store.
func (m *MemoryStore) Events(ctx context.Context, sessionID string) ([]Event, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out, nil
}

// Terminate implements Store. Idempotent: terminating an already
// terminated session is a no-op that preserves the original reason/actor.
func (m *MemoryStore) Terminate(ctx context.Context, sessionID, reason, actor string, now time.Time) (Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Terminated {
		return e.session, nil
	}
	e.session.Terminated = true
	e.session.TerminationReason = reason
	e.session.TerminatedBy = actor
	e.events = append(e.events, Event{SessionID: sessionID, Kind: EventTerminated, At: now, Data: map[string]any{"reason": reason, "actor": actor}})
	return e.session, nil
}

// Cleanup implements Store.
func (m *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	affected := 0
	cutoff := now.Add(-olderThan)
	for _, e := range entries {
		e.mu.Lock()
		if !e.session.Terminated && e.session.LastActivityAt.Before(cutoff) {
			e.session.Terminated = true
			e.session.TerminationReason = "expired"
			e.events = append(e.events, Event{SessionID: e.session.ID, Kind: EventTerminated, At: now, Data: map[string]any{"reason": "expired"}})
			affected++
		}
		e.mu.Unlock()
	}
	return affected, nil
}
