// internal/infra/database/postgres_delivery_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chore_notifier/internal/domain/notification"
)

// PostgresDeliveryRepository implements notification.DeliveryRepository on
// the append-only delivery_records table.
type PostgresDeliveryRepository struct {
	db *sql.DB
}

func NewPostgresDeliveryRepository(db *sql.DB) *PostgresDeliveryRepository {
	return &PostgresDeliveryRepository{db: db}
}

func (r *PostgresDeliveryRepository) Record(ctx context.Context, rec *notification.DeliveryRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO delivery_records (message_id, channel, provider_message_id, status, error_code)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, created_at`,
		rec.MessageID, rec.Channel, rec.ProviderMessageID, rec.Status, rec.ErrorCode,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("error recording delivery attempt: %w", err)
	}
	return nil
}

func (r *PostgresDeliveryRepository) ListByMessage(ctx context.Context, messageID string) ([]*notification.DeliveryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, message_id, channel, provider_message_id, status, error_code, created_at
           FROM delivery_records WHERE message_id = $1 ORDER BY id`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("error listing delivery records: %w", err)
	}
	defer rows.Close()
	var out []*notification.DeliveryRecord
	for rows.Next() {
		rec := &notification.DeliveryRecord{}
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.Channel, &rec.ProviderMessageID,
			&rec.Status, &rec.ErrorCode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning delivery record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresDeliveryRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*notification.DeliveryRecord, error) {
	rec := &notification.DeliveryRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, message_id, channel, provider_message_id, status, error_code, created_at
           FROM delivery_records WHERE provider_message_id = $1
          ORDER BY id DESC LIMIT 1`,
		providerMessageID,
	).Scan(&rec.ID, &rec.MessageID, &rec.Channel, &rec.ProviderMessageID,
		&rec.Status, &rec.ErrorCode, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notification.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("error getting delivery record by provider id: %w", err)
	}
	return rec, nil
}

func (r *PostgresDeliveryRepository) Stats(ctx context.Context, since time.Time) (*notification.DeliveryStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel, status, COUNT(*) FROM delivery_records
          WHERE created_at >= $1 GROUP BY channel, status`,
		since)
	if err != nil {
		return nil, fmt.Errorf("error aggregating delivery stats: %w", err)
	}
	defer rows.Close()

	stats := &notification.DeliveryStats{ByChannel: make(map[notification.Channel]int64)}
	for rows.Next() {
		var ch notification.Channel
		var status notification.DeliveryStatus
		var n int64
		if err := rows.Scan(&ch, &status, &n); err != nil {
			return nil, fmt.Errorf("error scanning delivery stat row: %w", err)
		}
		stats.Total += n
		stats.ByChannel[ch] += n
		switch status {
		case notification.DeliverySent, notification.DeliveryDelivered:
			stats.Succeeded += n
		case notification.DeliveryFailed, notification.DeliveryUndelivered:
			stats.Failed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}
