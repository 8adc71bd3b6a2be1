package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"approvals/internal/document/models"
)

// InMemory is a mutex-guarded document store for development and tests.
// Each conditional update runs entirely under the write lock.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[string]*models.Document)}
}

func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("create document %s: %w", doc.ID, ErrConflict)
	}
	if doc.Number != "" {
		for _, existing := range s.docs {
			if existing.Kind == doc.Kind && existing.Number == doc.Number {
				return fmt.Errorf("create document %s: number %s: %w", doc.ID, doc.Number, ErrConflict)
			}
		}
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) ListDispatchable(_ context.Context, kinds []models.Kind, after models.ScanCursor, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[models.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []*models.Document
	for _, doc := range s.docs {
		if !wanted[doc.Kind] || doc.Status != models.StatusPending || doc.Notified || doc.ApproverContact == "" {
			continue
		}
		if after.Precedes(doc) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) TransitionFromPending(_ context.Context, id string, to models.Status, reason string, now time.Time) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err := doc.Decide(to, reason, now); err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *InMemory) UpdateApproverContact(_ context.Context, id, contact string, now time.Time) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if !doc.IsPending() {
		return nil, fmt.Errorf("document %s is %s: %w", id, doc.Status, ErrInvalidState)
	}
	doc.ApproverContact = contact
	doc.LastModifiedAt = now
	return doc.Clone(), nil
}

func (s *InMemory) MarkNotified(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return false, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc.MarkNotified(now), nil
}
