// Package store persists local user records.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"userprofile/internal/users/models"
	"userprofile/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in maps guarded by a single lock. It
// enforces the same external-id uniqueness as the PostgreSQL store.
type InMemoryUserStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*models.User
	byExternal map[string]uuid.UUID
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:       make(map[uuid.UUID]*models.User),
		byExternal: make(map[string]uuid.UUID),
	}
}

func (s *InMemoryUserStore) FindByExternalID(_ context.Context, externalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUserStore) Insert(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExternal[user.ExternalID]; ok {
		return fmt.Errorf("user with external id %s: %w", user.ExternalID, sentinel.ErrConflict)
	}
	if _, ok := s.byID[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, sentinel.ErrConflict)
	}
	u := *user
	s.byID[u.ID] = &u
	s.byExternal[u.ExternalID] = u.ID
	return nil
}

func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[user.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.ExternalID != user.ExternalID {
		return fmt.Errorf("external id is immutable: %w", sentinel.ErrConflict)
	}
	u := *user
	s.byID[u.ID] = &u
	return nil
}

// List returns every user ordered by creation time.
func (s *InMemoryUserStore) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byExternal, u.ExternalID)
	delete(s.byID, id)
	return nil
}

// Count returns the number of stored users.
func (s *InMemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
