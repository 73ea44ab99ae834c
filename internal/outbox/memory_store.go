package outbox

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests. InsertTx ignores tx,
// since the in-memory store has no transactional isolation of its own.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[string]*Event
	endpointFor func(tenantID string) (string, bool)
}

// NewMemoryStore builds a MemoryStore. endpointFor resolves a tenant's
// active endpoint id, mirroring the join PostgresStore.InsertTx performs
// against the webhooks table.
func NewMemoryStore(endpointFor func(tenantID string) (string, bool)) *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Event), endpointFor: endpointFor}
}

func (m *MemoryStore) InsertTx(ctx context.Context, tx *sql.Tx, tenantID, eventType string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpointID, ok := m.endpointFor(tenantID)
	if !ok {
		return "", ErrNotFound
	}

	id := newEventID()
	m.byID[id] = &Event{
		ID:         id,
		TenantID:   tenantID,
		EndpointID: endpointID,
		EventType:  eventType,
		Payload:    append([]byte(nil), payload...),
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	return id, nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) MarkDelivered(ctx context.Context, id string) error {
	return m.transitionFromPending(id, StatusDelivered)
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	return m.transitionFromPending(id, StatusFailed)
}

// transitionFromPending mirrors PostgresStore's conditional UPDATE: a row
// that exists but is no longer pending is indistinguishable from a missing
// one, matching the guard that keeps schedule_retry from racing a terminal
// transition.
func (m *MemoryStore) transitionFromPending(id string, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.Status != StatusPending {
		return ErrNotFound
	}
	e.Status = to
	return nil
}

func (m *MemoryStore) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.Status != StatusPending {
		return ErrNotFound
	}
	e.AttemptCount++
	t := nextRetryAt
	e.NextRetryAt = &t
	return nil
}

func (m *MemoryStore) ListPendingDue(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var due []*Event
	for _, e := range m.byID {
		if e.Status != StatusPending {
			continue
		}
		if e.NextRetryAt == nil || !e.NextRetryAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	var ids []string
	for _, e := range due {
		ids = append(ids, e.ID)
	}
	return ids, nil
}
