// internal/infra/memstore/delivery_store.go
package memstore

import (
	"context"
	"sync"
	"time"

	"chore_notifier/internal/domain/notification"
)

// DeliveryStore is an in-memory, append-only DeliveryRepository.
type DeliveryStore struct {
	mu      sync.Mutex
	records []*notification.DeliveryRecord
	nextID  int64
	now     func() time.Time
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{nextID: 1, now: time.Now}
}

// SetClock overrides the store clock; tests only.
func (s *DeliveryStore) SetClock(now func() time.Time) { s.now = now }

func (s *DeliveryStore) Record(_ context.Context, r *notification.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.nextID++
	s.records = append(s.records, &cp)
	r.ID = cp.ID
	r.CreatedAt = cp.CreatedAt
	return nil
}

func (s *DeliveryStore) ListByMessage(_ context.Context, messageID string) ([]*notification.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notification.DeliveryRecord
	for _, r := range s.records {
		if r.MessageID == messageID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *DeliveryStore) GetByProviderID(_ context.Context, providerMessageID string) (*notification.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ProviderMessageID == providerMessageID {
			cp := *s.records[i]
			return &cp, nil
		}
	}
	return nil, notification.ErrDeliveryNotFound
}

func (s *DeliveryStore) Stats(_ context.Context, since time.Time) (*notification.DeliveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &notification.DeliveryStats{ByChannel: make(map[notification.Channel]int64)}
	for _, r := range s.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByChannel[r.Channel]++
		switch r.Status {
		case notification.DeliverySent, notification.DeliveryDelivered:
			stats.Succeeded++
		case notification.DeliveryFailed, notification.DeliveryUndelivered:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}
