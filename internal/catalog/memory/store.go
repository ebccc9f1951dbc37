// Package memory provides an in-memory catalog store for development/tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentdir/iconfetch/internal/assets"
)

// ErrEntityNotFound is returned when no catalog row exists for an entity.
var ErrEntityNotFound = errors.New("entity not found")

// Store keeps catalog rows in a map. Writes are upserts: last writer wins,
// matching the convergence guarantee of the production catalog.
type Store struct {
	mu       sync.RWMutex
	entities map[string]assets.Entity
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]assets.Entity),
	}
}

// Seed inserts or replaces an entity row, for test setup.
func (s *Store) Seed(entity assets.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = entity
}

// UpdateIconURL writes the icon URL and clears prior error state.
func (s *Store) UpdateIconURL(_ context.Context, entityID string, iconURL string) error {
	if entityID == "" {
		return errors.New("entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entity := s.entities[entityID]
	entity.ID = entityID
	entity.IconURL = iconURL
	entity.FetchError = ""
	entity.UpdatedAt = pointerTime(time.Now().UTC())
	s.entities[entityID] = entity
	return nil
}

// RecordFailure stores the reason and increments the retry counter.
func (s *Store) RecordFailure(_ context.Context, entityID string, reason string) error {
	if entityID == "" {
		return errors.New("entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entity := s.entities[entityID]
	entity.ID = entityID
	entity.FetchError = reason
	entity.FetchRetries++
	entity.UpdatedAt = pointerTime(time.Now().UTC())
	s.entities[entityID] = entity
	return nil
}

// GetEntity returns the stored row for an entity.
func (s *Store) GetEntity(_ context.Context, entityID string) (assets.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[entityID]
	if !ok {
		return assets.Entity{}, ErrEntityNotFound
	}
	return entity, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
