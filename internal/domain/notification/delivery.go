// internal/domain/notification/delivery.go
package notification

import "time"

// DeliveryRecord is one send attempt on one channel. A ScheduledMessage may
// own several, one per channel tried in fallback order. Records are
// append-only and never overwritten.
type DeliveryRecord struct {
	ID                int64
	MessageID         string
	Channel           Channel
	ProviderMessageID string
	Status            DeliveryStatus
	ErrorCode         string
	CreatedAt         time.Time
}

// DeliveryStats aggregates delivery outcomes over a time range.
type DeliveryStats struct {
	Total       int64             `json:"total"`
	Succeeded   int64             `json:"succeeded"`
	Failed      int64             `json:"failed"`
	SuccessRate float64           `json:"successRate"`
	ByChannel   map[Channel]int64 `json:"byChannel"`
}
