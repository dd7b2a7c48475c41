package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/realtime"
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
	mu       sync.Mutex
	services map[string]*domain.Service
	ledger   []domain.StatusLedgerEntry
	seq      int
	clock    time.Time
	txs      []*fakeTx

	createEntryErr  error
	updateStatusErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		services: make(map[string]*domain.Service),
		clock:    time.Date(2024, 1, 22, 10, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepository) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockRepository) now() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *mockRepository) lastTx() *fakeTx {
	return m.txs[len(m.txs)-1]
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockRepository) CreateServiceTx(_ context.Context, tx pgx.Tx, service *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	service.ID = m.nextID("svc")
	service.CreatedAt = m.now()
	service.UpdatedAt = service.CreatedAt
	stored := *service
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.services[stored.ID] = &stored
	})
	return nil
}

func (m *mockRepository) GetServiceByID(_ context.Context, id string) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepository) GetServiceByName(_ context.Context, organizationID, name string) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.services {
		if s.OrganizationID == organizationID && s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrServiceNotFound
}

func (m *mockRepository) GetServiceForUpdateTx(ctx context.Context, _ pgx.Tx, id string) (*domain.Service, error) {
	return m.GetServiceByID(ctx, id)
}

func (m *mockRepository) ListServices(_ context.Context, filter ServiceFilter) ([]domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Service, 0)
	for _, s := range m.services {
		if filter.OrganizationID != nil && s.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockRepository) UpdateService(_ context.Context, service *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.services[service.ID]
	if !ok {
		return ErrServiceNotFound
	}
	stored.Name = service.Name
	stored.Description = service.Description
	stored.UpdatedAt = m.now()
	service.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *mockRepository) UpdateServiceStatusTx(_ context.Context, tx pgx.Tx, service *domain.Service) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	service.UpdatedAt = m.now()
	id, status, updatedAt := service.ID, service.Status, service.UpdatedAt
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.services[id].Status = status
		m.services[id].UpdatedAt = updatedAt
	})
	return nil
}

func (m *mockRepository) DeleteService(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return ErrServiceNotFound
	}
	delete(m.services, id)
	kept := m.ledger[:0]
	for _, e := range m.ledger {
		if e.ServiceID != id {
			kept = append(kept, e)
		}
	}
	m.ledger = kept
	return nil
}

func (m *mockRepository) CreateStatusEntryTx(_ context.Context, tx pgx.Tx, entry *domain.StatusLedgerEntry) error {
	if m.createEntryErr != nil {
		return m.createEntryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextID("entry")
	entry.CreatedAt = m.now()
	entry.UpdatedAt = entry.CreatedAt
	stored := *entry
	tx.(*fakeTx).pending = append(tx.(*fakeTx).pending, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ledger = append(m.ledger, stored)
	})
	return nil
}

func (m *mockRepository) ListStatusHistory(_ context.Context, serviceID string, limit int) ([]domain.StatusLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.StatusLedgerEntry, 0)
	for _, e := range m.ledger {
		if e.ServiceID == serviceID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepository) entriesFor(serviceID string) []domain.StatusLedgerEntry {
	entries, _ := m.ListStatusHistory(context.Background(), serviceID, 1<<30)
	return entries
}

// mockOrganizations implements OrganizationChecker for testing.
type mockOrganizations struct {
	ids map[string]bool
	err error
}

func (m *mockOrganizations) OrganizationExists(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.ids[id], nil
}

type broadcastCall struct {
	organizationID string
	event          realtime.Event
}

// mockBroadcaster implements Broadcaster for testing.
type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockBroadcaster) BroadcastToOrganization(_ context.Context, organizationID string, event realtime.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{organizationID: organizationID, event: event})
}
