package organizations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
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

func (t *fakeTx) stage(apply func()) {
	t.pending = append(t.pending, apply)
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
	mu      sync.Mutex
	orgs    map[string]*domain.Organization
	teams   map[string]*domain.Team
	members map[string]map[string]bool
	txs     []*fakeTx

	createOrgErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orgs:    make(map[string]*domain.Organization),
		teams:   make(map[string]*domain.Team),
		members: make(map[string]map[string]bool),
	}
}

func (m *mockRepository) lastTx() *fakeTx {
	return m.txs[len(m.txs)-1]
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockRepository) CreateOrganizationTx(_ context.Context, tx pgx.Tx, org *domain.Organization) error {
	if m.createOrgErr != nil {
		return m.createOrgErr
	}
	org.ID = uuid.NewString()
	stored := *org
	tx.(*fakeTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.orgs[stored.ID] = &stored
	})
	return nil
}

func (m *mockRepository) GetOrganizationByID(_ context.Context, id string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, ErrOrganizationNotFound
}

func (m *mockRepository) GetOrganizationBySubdomain(_ context.Context, subdomain string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Subdomain == subdomain {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrganizationNotFound
}

func (m *mockRepository) ListOrganizations(_ context.Context, offset, limit int) ([]domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		result = append(result, *o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if offset >= len(result) {
		return []domain.Organization{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepository) UpdateOrganization(_ context.Context, org *domain.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[org.ID]; !ok {
		return ErrOrganizationNotFound
	}
	stored := *org
	m.orgs[org.ID] = &stored
	return nil
}

func (m *mockRepository) DeleteOrganization(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[id]; !ok {
		return ErrOrganizationNotFound
	}
	delete(m.orgs, id)
	for teamID, t := range m.teams {
		if t.OrganizationID == id {
			delete(m.teams, teamID)
			delete(m.members, teamID)
		}
	}
	return nil
}

func (m *mockRepository) OrganizationExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orgs[id]
	return ok, nil
}

func (m *mockRepository) CreateTeam(_ context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	team.ID = uuid.NewString()
	stored := *team
	m.teams[team.ID] = &stored
	return nil
}

func (m *mockRepository) GetTeam(_ context.Context, id string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.teams[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrTeamNotFound
}

// ListTeams returns members as users carrying only their IDs.
func (m *mockRepository) ListTeams(_ context.Context, organizationID string) ([]domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Team, 0)
	for _, t := range m.teams {
		if t.OrganizationID != organizationID {
			continue
		}
		cp := *t
		cp.Members = []domain.User{}
		for userID := range m.members[t.ID] {
			cp.Members = append(cp.Members, domain.User{ID: userID})
		}
		sort.Slice(cp.Members, func(i, j int) bool { return cp.Members[i].ID < cp.Members[j].ID })
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockRepository) AddTeamMember(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[teamID] == nil {
		m.members[teamID] = make(map[string]bool)
	}
	m.members[teamID][userID] = true
	return nil
}

func (m *mockRepository) RemoveTeamMember(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members[teamID][userID] {
		return ErrNotTeamMember
	}
	delete(m.members[teamID], userID)
	return nil
}

// mockUsers implements UserProvisioner for testing.
type mockUsers struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	createErr error
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: make(map[string]*domain.User)}
}

func (m *mockUsers) add(user domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.users[user.ID] = &user
	return &user
}

func (m *mockUsers) PrepareUser(_ context.Context, input identity.CreateUserInput) (*domain.User, error) {
	email, err := identity.NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, identity.ErrEmailExists
		}
	}

	return &domain.User{
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: "hashed:" + input.Password,
		IsActive:     true,
		IsSuperuser:  input.IsSuperuser,
	}, nil
}

func (m *mockUsers) CreateUserTx(_ context.Context, tx pgx.Tx, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.OrganizationID == "" {
		return fmt.Errorf("user without organization")
	}
	user.ID = uuid.NewString()
	stored := *user
	tx.(*fakeTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.users[stored.ID] = &stored
	})
	return nil
}

func (m *mockUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("get user: %w", identity.ErrUserNotFound)
}
