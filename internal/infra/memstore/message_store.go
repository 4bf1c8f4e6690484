// internal/infra/memstore/message_store.go
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"chore_notifier/internal/domain/notification"
)

// MessageStore is an in-memory MessageRepository. It backs tests and
// single-process deployments without a database; all state transitions
// happen under one store lock, which gives the compare-and-set semantics the
// contract requires.
type MessageStore struct {
	mu      sync.Mutex
	byID    map[string]*notification.ScheduledMessage
	byKey   map[notification.MessageKey]string
	order   map[string]int64 // insertion sequence, tie-breaker for ClaimDue
	seq     int64
	recycle time.Duration
	now     func() time.Time
}

// NewMessageStore returns an empty store. recycle is the minimum scheduling
// gap before a terminal key may be reused by a new cycle.
func NewMessageStore(recycle time.Duration) *MessageStore {
	return &MessageStore{
		byID:    make(map[string]*notification.ScheduledMessage),
		byKey:   make(map[notification.MessageKey]string),
		order:   make(map[string]int64),
		recycle: recycle,
		now:     time.Now,
	}
}

// SetClock overrides the store clock; tests only.
func (s *MessageStore) SetClock(now func() time.Time) { s.now = now }

func (s *MessageStore) Enqueue(_ context.Context, m *notification.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if priorID, ok := s.byKey[m.Key()]; ok {
		prior := s.byID[priorID]
		if !prior.Status.Terminal() {
			return notification.ErrDuplicateMessage
		}
		if m.ScheduledAt.Sub(prior.ScheduledAt) < s.recycle {
			return notification.ErrDuplicateMessage
		}
		delete(s.byID, priorID)
		delete(s.order, priorID)
	}

	now := s.now()
	cp := cloneMessage(m)
	cp.Status = notification.StatusQueued
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.seq++
	s.byID[cp.ID] = cp
	s.byKey[cp.Key()] = cp.ID
	s.order[cp.ID] = s.seq

	m.Status = cp.Status
	m.CreatedAt = cp.CreatedAt
	m.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MessageStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*notification.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*notification.ScheduledMessage
	for _, m := range s.byID {
		if m.Status == notification.StatusQueued && !m.ScheduledAt.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return s.order[due[i].ID] < s.order[due[j].ID]
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*notification.ScheduledMessage, 0, len(due))
	for _, m := range due {
		m.Status = notification.StatusDispatching
		m.UpdatedAt = s.now()
		claimed = append(claimed, cloneMessage(m))
	}
	return claimed, nil
}

func (s *MessageStore) Upcoming(_ context.Context, now time.Time, window time.Duration) ([]*notification.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := now.Add(window)
	var out []*notification.ScheduledMessage
	for _, m := range s.byID {
		if m.Status == notification.StatusQueued && !m.ScheduledAt.After(horizon) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MessageStore) GetByID(_ context.Context, id string) (*notification.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, notification.ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

func (s *MessageStore) Requeue(_ context.Context, id string, at time.Time) error {
	return s.transition(id, notification.StatusDispatching, func(m *notification.ScheduledMessage) {
		m.Status = notification.StatusQueued
		m.ScheduledAt = at
	})
}

func (s *MessageStore) AddAttempt(_ context.Context, id string, ch notification.Channel, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return notification.ErrMessageNotFound
	}
	m.Attempted = append(m.Attempted, ch)
	m.Attempts++
	m.LastError = lastError
	m.UpdatedAt = s.now()
	return nil
}

func (s *MessageStore) MarkSent(_ context.Context, id string) error {
	return s.transition(id, notification.StatusDispatching, func(m *notification.ScheduledMessage) {
		m.Status = notification.StatusSent
		m.LastError = ""
	})
}

func (s *MessageStore) MarkFailed(_ context.Context, id string, lastError string) error {
	return s.transition(id, notification.StatusDispatching, func(m *notification.ScheduledMessage) {
		m.Status = notification.StatusFailed
		m.LastError = lastError
	})
}

func (s *MessageStore) MarkSkipped(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return notification.ErrMessageNotFound
	}
	// Cancellation wins over any prior outcome, including a send that
	// completed while the chore was being closed out.
	m.Status = notification.StatusSkipped
	m.UpdatedAt = s.now()
	return nil
}

func (s *MessageStore) CancelPendingForSource(_ context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.byID {
		if m.SourceID == sourceID && !m.Status.Terminal() {
			m.Status = notification.StatusSkipped
			m.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func (s *MessageStore) ActiveSourceIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.byID {
		if !m.Status.Terminal() && m.SourceID != "" && !seen[m.SourceID] {
			seen[m.SourceID] = true
			out = append(out, m.SourceID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MessageStore) StatusCounts(_ context.Context) (map[notification.MessageStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[notification.MessageStatus]int)
	for _, m := range s.byID {
		out[m.Status]++
	}
	return out, nil
}

func (s *MessageStore) QueueDepthByChannel(_ context.Context) (map[notification.Channel]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[notification.Channel]int)
	for _, m := range s.byID {
		if m.Status != notification.StatusQueued {
			continue
		}
		for _, ch := range m.Channels {
			out[ch]++
		}
	}
	return out, nil
}

func (s *MessageStore) ReminderStats(_ context.Context, familyID string) ([]notification.StageStatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[notification.Stage]map[notification.MessageStatus]int)
	for _, m := range s.byID {
		stage, ok := m.Kind.Stage()
		if !ok {
			continue
		}
		if familyID != "" && m.FamilyID != familyID {
			continue
		}
		if counts[stage] == nil {
			counts[stage] = make(map[notification.MessageStatus]int)
		}
		counts[stage][m.Status]++
	}
	var out []notification.StageStatusCount
	for stage, byStatus := range counts {
		for status, n := range byStatus {
			out = append(out, notification.StageStatusCount{Stage: stage, Status: status, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage.Order() < out[j].Stage.Order()
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (s *MessageStore) PruneTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.byID {
		if m.Status.Terminal() && m.UpdatedAt.Before(olderThan) {
			delete(s.byID, id)
			delete(s.order, id)
			if s.byKey[m.Key()] == id {
				delete(s.byKey, m.Key())
			}
			n++
		}
	}
	return n, nil
}

func cloneMessage(m *notification.ScheduledMessage) *notification.ScheduledMessage {
	cp := *m
	cp.Channels = append([]notification.Channel(nil), m.Channels...)
	cp.Attempted = append([]notification.Channel(nil), m.Attempted...)
	return &cp
}

func (s *MessageStore) transition(id string, from notification.MessageStatus, apply func(*notification.ScheduledMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return notification.ErrMessageNotFound
	}
	if m.Status != from {
		return notification.ErrMessageNotFound
	}
	apply(m)
	m.UpdatedAt = s.now()
	return nil
}
