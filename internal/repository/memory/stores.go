package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
)

type OperationStore struct {
	mu  sync.RWMutex
	ops map[docKey][]models.Operation
}

func NewOperationStore() *OperationStore {
	return &OperationStore{ops: make(map[docKey][]models.Operation)}
}

func (s *OperationStore) Save(_ context.Context, op models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{op.TenantID, op.DocumentID}
	s.ops[key] = append(s.ops[key], op)
	return nil
}

// ListByDocument returns operations newest first.
func (s *OperationStore) ListByDocument(_ context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.ops[docKey{tenantID, documentID}]
	out := make([]models.Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ops[i])
	}
	return out, nil
}

type UserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *UserStore) Create(_ context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, taken := s.byEmail[key]; taken {
		return nil, fmt.Errorf("insert user: %w", apperr.ErrConflict)
	}
	u := models.User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID
	return &u, nil
}

func (s *UserStore) GetByID(_ context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	u := s.byID[id]
	return &u, nil
}

type TenantStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]models.Tenant
}

func NewTenantStore() *TenantStore {
	return &TenantStore{tenants: make(map[uuid.UUID]models.Tenant)}
}

func (s *TenantStore) Create(_ context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is empty: %w", apperr.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := models.Tenant{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	s.tenants[t.ID] = t
	return &t, nil
}

// PresenceStore counts sessions per user per document.
type PresenceStore struct {
	mu    sync.Mutex
	users map[docKey]map[uuid.UUID]int64
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{users: make(map[docKey]map[uuid.UUID]int64)}
}

func (s *PresenceStore) Join(_ context.Context, tenantID, documentID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{tenantID, documentID}
	if s.users[key] == nil {
		s.users[key] = make(map[uuid.UUID]int64)
	}
	s.users[key][userID]++
	return nil
}

func (s *PresenceStore) Leave(_ context.Context, tenantID, documentID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{tenantID, documentID}
	users := s.users[key]
	if users == nil {
		return nil
	}
	if users[userID] <= 1 {
		delete(users, userID)
	} else {
		users[userID]--
	}
	if len(users) == 0 {
		delete(s.users, key)
	}
	return nil
}

func (s *PresenceStore) List(_ context.Context, tenantID, documentID uuid.UUID) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Participant, 0)
	for userID, n := range s.users[docKey{tenantID, documentID}] {
		out = append(out, models.Participant{UserID: userID, Sessions: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}
