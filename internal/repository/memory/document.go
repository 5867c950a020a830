// Package memory holds goroutine-safe in-memory stores for development and
// tests. Returned entities are copies; callers may mutate them freely.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
)

type docKey struct {
	tenantID   uuid.UUID
	documentID uuid.UUID
}

// DocumentStore writes history entries into versions while holding its own
// lock, so a document row and its history always move together.
type DocumentStore struct {
	mu       sync.RWMutex
	docs     map[docKey]*models.Document
	versions *VersionStore
}

func NewDocumentStore(versions *VersionStore) *DocumentStore {
	return &DocumentStore{
		docs:     make(map[docKey]*models.Document),
		versions: versions,
	}
}

func (s *DocumentStore) Create(_ context.Context, doc *models.Document, initial models.DocumentVersion) error {
	if initial.DocumentID != doc.ID || initial.TenantID != doc.TenantID || initial.Sequence != doc.Version {
		return fmt.Errorf("insert document %s: initial version does not match: %w", doc.ID, apperr.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{doc.TenantID, doc.ID}
	if _, exists := s.docs[key]; exists {
		return fmt.Errorf("insert document %s: %w", doc.ID, apperr.ErrConflict)
	}
	if err := s.versions.appendEntry(initial); err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	s.docs[key] = cloneDocument(doc)
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, tenantID, documentID uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docKey{tenantID, documentID}]
	if !ok {
		return nil, nil
	}
	return cloneDocument(doc), nil
}

func (s *DocumentStore) ListByTenant(_ context.Context, tenantID, subjectID uuid.UUID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]models.Document, 0)
	for key, doc := range s.docs {
		if key.tenantID != tenantID {
			continue
		}
		d := *doc
		d.Permissions = make(map[uuid.UUID]models.AccessLevel, 1)
		if level, ok := doc.Permissions[subjectID]; ok {
			d.Permissions[subjectID] = level
		}
		d.ShareLinks = nil
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (s *DocumentStore) Commit(_ context.Context, v models.DocumentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docKey{v.TenantID, v.DocumentID}]
	if !ok {
		return fmt.Errorf("commit document %s: %w", v.DocumentID, apperr.ErrNotFound)
	}
	if doc.Version != v.Sequence-1 {
		return fmt.Errorf("commit document %s: stored version %d, want %d: %w",
			v.DocumentID, doc.Version, v.Sequence-1, apperr.ErrConflict)
	}
	if err := s.versions.appendEntry(v); err != nil {
		return fmt.Errorf("commit document %s: %w", v.DocumentID, err)
	}
	doc.Content = v.Content
	doc.Version = v.Sequence
	doc.UpdatedAt = v.CreatedAt
	return nil
}

func (s *DocumentStore) UpsertPermission(_ context.Context, tenantID, documentID, subjectID uuid.UUID, level models.AccessLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docKey{tenantID, documentID}]
	if !ok {
		return fmt.Errorf("upsert permission: %w", apperr.ErrNotFound)
	}
	if doc.Permissions == nil {
		doc.Permissions = make(map[uuid.UUID]models.AccessLevel)
	}
	doc.Permissions[subjectID] = level
	return nil
}

func (s *DocumentStore) AddShareLink(_ context.Context, link models.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docKey{link.TenantID, link.DocumentID}]
	if !ok {
		return fmt.Errorf("add share link: %w", apperr.ErrNotFound)
	}
	for _, d := range s.docs {
		for _, existing := range d.ShareLinks {
			if existing.Token == link.Token {
				return fmt.Errorf("add share link: token reused: %w", apperr.ErrConflict)
			}
		}
	}
	doc.ShareLinks = append(doc.ShareLinks, link)
	return nil
}

func (s *DocumentStore) DeleteShareLink(_ context.Context, tenantID, documentID, linkID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docKey{tenantID, documentID}]
	if !ok {
		return false, nil
	}
	for i, link := range doc.ShareLinks {
		if link.ID == linkID {
			doc.ShareLinks = append(doc.ShareLinks[:i:i], doc.ShareLinks[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func cloneDocument(doc *models.Document) *models.Document {
	out := *doc
	out.Permissions = make(map[uuid.UUID]models.AccessLevel, len(doc.Permissions))
	for k, v := range doc.Permissions {
		out.Permissions[k] = v
	}
	out.ShareLinks = append([]models.ShareLink{}, doc.ShareLinks...)
	return &out
}
