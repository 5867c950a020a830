package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
)

// versionLog is one document's history, ascending by sequence.
type versionLog struct {
	mu      sync.RWMutex
	entries []models.DocumentVersion
}

// VersionStore keeps one log per document, each behind its own lock, so
// history reads never wait on another document's commit. Writes arrive
// through the DocumentStore sharing it.
type VersionStore struct {
	mu   sync.Mutex
	logs map[docKey]*versionLog
}

func NewVersionStore() *VersionStore {
	return &VersionStore{logs: make(map[docKey]*versionLog)}
}

func (s *VersionStore) log(tenantID, documentID uuid.UUID, create bool) *versionLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{tenantID, documentID}
	l, ok := s.logs[key]
	if !ok && create {
		l = &versionLog{}
		s.logs[key] = l
	}
	return l
}

// appendEntry adds v if it is exactly the next sequence. Only DocumentStore
// calls it.
func (s *VersionStore) appendEntry(v models.DocumentVersion) error {
	l := s.log(v.TenantID, v.DocumentID, true)

	l.mu.Lock()
	defer l.mu.Unlock()

	next := int64(len(l.entries))
	if v.Sequence != next {
		return fmt.Errorf("append version %d for %s, next is %d: %w",
			v.Sequence, v.DocumentID, next, apperr.ErrConflict)
	}
	l.entries = append(l.entries, v)
	return nil
}

func (s *VersionStore) List(_ context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.DocumentVersion, error) {
	out := make([]models.DocumentVersion, 0)
	l := s.log(tenantID, documentID, false)
	if l == nil {
		return out, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (s *VersionStore) GetByID(_ context.Context, tenantID, documentID, versionID uuid.UUID) (*models.DocumentVersion, error) {
	l := s.log(tenantID, documentID, false)
	if l == nil {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, v := range l.entries {
		if v.ID == versionID {
			found := v
			return &found, nil
		}
	}
	return nil, nil
}
