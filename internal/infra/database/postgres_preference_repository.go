// internal/infra/database/postgres_preference_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chore_notifier/internal/domain/notification"
)

// PostgresPreferenceRepository stores each preferences document as a JSONB
// blob keyed by (user_id, family_id). Save is an upsert; documents are never
// deleted, only superseded.
type PostgresPreferenceRepository struct {
	db *sql.DB
}

func NewPostgresPreferenceRepository(db *sql.DB) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

func (r *PostgresPreferenceRepository) Get(ctx context.Context, userID, familyID string) (*notification.Preferences, error) {
	var doc []byte
	p := &notification.Preferences{}
	err := r.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM notification_preferences
          WHERE user_id = $1 AND family_id = $2`,
		userID, familyID,
	).Scan(&doc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notification.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("error getting notification preferences: %w", err)
	}
	createdAt, updatedAt := p.CreatedAt, p.UpdatedAt
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("error decoding preferences document: %w", err)
	}
	p.UserID, p.FamilyID = userID, familyID
	p.CreatedAt, p.UpdatedAt = createdAt, updatedAt
	return p, nil
}

func (r *PostgresPreferenceRepository) Save(ctx context.Context, p *notification.Preferences) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error encoding preferences document: %w", err)
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO notification_preferences (user_id, family_id, doc)
         VALUES ($1, $2, $3)
         ON CONFLICT (user_id, family_id)
         DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
         RETURNING created_at, updated_at`,
		p.UserID, p.FamilyID, doc,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving notification preferences: %w", err)
	}
	return nil
}
