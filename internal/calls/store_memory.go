package calls

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// It mirrors the Postgres write-once semantics exactly.
type MemoryStore struct {
	mu    sync.RWMutex
	byPID map[string]Call
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPID: make(map[string]Call), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, c Call) error {
	if c.ID == "" || c.ProviderCallID == "" {
		return errors.New("calls: id and provider_call_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPID[c.ProviderCallID]; ok {
		return errors.New("calls: duplicate provider_call_id")
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	s.byPID[c.ProviderCallID] = c
	return nil
}

func (s *MemoryStore) FindByProviderID(_ context.Context, providerCallID string) (Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byPID[providerCallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Update(_ context.Context, providerCallID string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPID[providerCallID]
	if !ok {
		return ErrNotFound
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Type != nil {
		c.Type = *upd.Type
	}
	if upd.EndedAt != nil && c.EndedAt == nil {
		t := *upd.EndedAt
		c.EndedAt = &t
	}
	if upd.DurationSeconds != nil && c.DurationSeconds == nil {
		n := *upd.DurationSeconds
		c.DurationSeconds = &n
	}
	if upd.Cost != nil && c.Cost == nil {
		f := *upd.Cost
		c.Cost = &f
	}
	if upd.RecordingURL != nil && c.RecordingURL == "" {
		c.RecordingURL = *upd.RecordingURL
	}
	if upd.RecordingSID != nil && c.RecordingSID == "" {
		c.RecordingSID = *upd.RecordingSID
	}
	c.UpdatedAt = s.now().UTC()
	s.byPID[providerCallID] = c
	return nil
}

// Count reports the number of stored calls. Test helper.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPID)
}
