// internal/infra/memstore/household_store.go
package memstore

import (
	"context"
	"sort"
	"sync"

	"chore_notifier/internal/domain/household"
)

// HouseholdStore is an in-memory household.Repository, used by tests and by
// deployments without a database. Chores and users are seeded by the caller.
type HouseholdStore struct {
	mu     sync.RWMutex
	chores map[string]*household.Chore
	users  map[string]*household.User
}

func NewHouseholdStore() *HouseholdStore {
	return &HouseholdStore{
		chores: make(map[string]*household.Chore),
		users:  make(map[string]*household.User),
	}
}

// PutChore inserts or replaces a chore.
func (s *HouseholdStore) PutChore(c *household.Chore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.chores[c.ID] = &cp
}

// PutUser inserts or replaces a user.
func (s *HouseholdStore) PutUser(u *household.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *HouseholdStore) ListOpenChoresWithDueDate(_ context.Context) ([]*household.Chore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*household.Chore
	for _, c := range s.chores {
		if c.Open() && !c.DueDate.IsZero() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *HouseholdStore) GetChore(_ context.Context, id string) (*household.Chore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chores[id]
	if !ok {
		return nil, household.ErrChoreNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *HouseholdStore) GetUser(_ context.Context, id string) (*household.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, household.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *HouseholdStore) ListFamilyMembers(_ context.Context, familyID string) ([]*household.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*household.User
	for _, u := range s.users {
		if u.FamilyID == familyID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
