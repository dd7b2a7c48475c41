package incidents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fakeTx implements pgx.Tx for testing. Writes staged on it are applied on Commit.
type fakeTx struct {
	pgx.Tx
	pending    []func()
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	for _, apply := range t.pending {
		apply()
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.pending = nil
	t.rolledBack = true
	return nil
}

// mockRepository implements Repository for testing.
type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	updates   []domain.IncidentUpdate
	clock     time.Time
	txs       []*fakeTx

	createIncidentErr error
	createUpdateErr   error
	updateStatusErr   error

	// onBeginTx runs once when the next transaction is opened, before the
	// caller can lock any row.
	onBeginTx func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		clock:     time.Date(2024, 1, 22, 10, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepository) nextID() string {
	return uuid.NewString()
}

func (m *mockRepository) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockRepository) lastTx() *fakeTx {
	return m.txs[len(m.txs)-1]
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	if hook := m.onBeginTx; hook != nil {
		m.onBeginTx = nil
		hook()
	}
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockRepository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	if m.createIncidentErr != nil {
		return m.createIncidentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	incident.ID = m.nextID()
	incident.CreatedAt = m.now()
	incident.UpdatedAt = incident.CreatedAt
	if incident.Status == domain.IncidentStatusResolved {
		resolvedAt := incident.CreatedAt
		incident.ResolvedAt = &resolvedAt
	}
	stored := *incident
	m.incidents[stored.ID] = &stored
	return nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockRepository) GetIncidentForUpdateTx(ctx context.Context, _ pgx.Tx, id string) (*domain.Incident, error) {
	return m.GetIncident(ctx, id)
}

func (m *mockRepository) ListIncidents(_ context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Incident, 0)
	for _, i := range m.incidents {
		if filter.ServiceID != nil && i.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.OrganizationID != nil && i.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != nil && i.Status != *filter.Status {
			continue
		}
		if filter.ActiveOnly && i.ResolvedAt != nil {
			continue
		}
		result = append(result, *i)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.After(result[b].CreatedAt) })
	return paginate(result, filter.Offset, filter.Limit), nil
}

func (m *mockRepository) UpdateIncidentTx(_ context.Context, tx pgx.Tx, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	incident.UpdatedAt = m.now()
	stored := *incident
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.incidents[stored.ID] = &stored
	})
	return nil
}

func (m *mockRepository) UpdateIncidentStatusTx(_ context.Context, tx pgx.Tx, incident *domain.Incident) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	incident.UpdatedAt = m.now()
	id, status, resolvedAt, updatedAt := incident.ID, incident.Status, incident.ResolvedAt, incident.UpdatedAt
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.incidents[id].Status = status
		m.incidents[id].ResolvedAt = resolvedAt
		m.incidents[id].UpdatedAt = updatedAt
	})
	return nil
}

func (m *mockRepository) DeleteIncident(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[id]; !ok {
		return ErrIncidentNotFound
	}
	delete(m.incidents, id)
	kept := m.updates[:0]
	for _, u := range m.updates {
		if u.IncidentID != id {
			kept = append(kept, u)
		}
	}
	m.updates = kept
	return nil
}

func (m *mockRepository) CreateIncidentUpdateTx(_ context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error {
	if m.createUpdateErr != nil {
		return m.createUpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	update.ID = m.nextID()
	update.CreatedAt = m.now()
	update.UpdatedAt = update.CreatedAt
	stored := *update
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.updates = append(m.updates, stored)
	})
	return nil
}

func (m *mockRepository) ListIncidentUpdates(_ context.Context, incidentID string, offset, limit int) ([]domain.IncidentUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.IncidentUpdate, 0)
	for _, u := range m.updates {
		if u.IncidentID == incidentID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.After(result[b].CreatedAt) })
	return paginate(result, offset, limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// mockServices implements ServiceReader for testing.
type mockServices struct {
	services map[string]*domain.Service
	err      error
}

func (m *mockServices) GetService(_ context.Context, id string) (*domain.Service, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("get service: %w", catalog.ErrServiceNotFound)
	}
	return s, nil
}

// mockUsers implements UserReader for testing.
type mockUsers struct {
	users map[string]*domain.User
}

func (m *mockUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", identity.ErrUserNotFound)
	}
	return u, nil
}

type broadcastCall struct {
	organizationID string
	event          realtime.Event
}

// mockBroadcaster implements Broadcaster for testing. onBroadcast runs
// before the call is recorded.
type mockBroadcaster struct {
	mu          sync.Mutex
	calls       []broadcastCall
	onBroadcast func()
}

func (m *mockBroadcaster) BroadcastToOrganization(_ context.Context, organizationID string, event realtime.Event) {
	if m.onBroadcast != nil {
		m.onBroadcast()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{organizationID: organizationID, event: event})
}
