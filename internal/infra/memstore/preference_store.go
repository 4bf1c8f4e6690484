// internal/infra/memstore/preference_store.go
package memstore

import (
	"context"
	"sync"
	"time"

	"chore_notifier/internal/domain/notification"
)

type prefKey struct {
	userID   string
	familyID string
}

// PreferenceStore is an in-memory PreferenceRepository.
type PreferenceStore struct {
	mu   sync.RWMutex
	docs map[prefKey]*notification.Preferences
	now  func() time.Time
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{docs: make(map[prefKey]*notification.Preferences), now: time.Now}
}

func (s *PreferenceStore) Get(_ context.Context, userID, familyID string) (*notification.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.docs[prefKey{userID: userID, familyID: familyID}]
	if !ok {
		return nil, notification.ErrPreferencesNotFound
	}
	return clonePreferences(p), nil
}

func (s *PreferenceStore) Save(_ context.Context, p *notification.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clonePreferences(p)
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.docs[prefKey{userID: cp.UserID, familyID: cp.FamilyID}] = cp
	p.CreatedAt = cp.CreatedAt
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

func clonePreferences(p *notification.Preferences) *notification.Preferences {
	cp := *p
	cp.FallbackChannels = append([]notification.Channel(nil), p.FallbackChannels...)
	cp.Enabled = make(map[notification.Kind]bool, len(p.Enabled))
	for k, v := range p.Enabled {
		cp.Enabled[k] = v
	}
	return &cp
}
