// internal/infra/database/postgres_household_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"chore_notifier/internal/domain/household"
)

// PostgresHouseholdRepository reads the chores and users tables owned by the
// surrounding application. The engine never writes to them.
type PostgresHouseholdRepository struct {
	db *sql.DB
}

func NewPostgresHouseholdRepository(db *sql.DB) *PostgresHouseholdRepository {
	return &PostgresHouseholdRepository{db: db}
}

func (r *PostgresHouseholdRepository) ListOpenChoresWithDueDate(ctx context.Context) ([]*household.Chore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, title, assigned_to, due_date, status, created_at, updated_at
           FROM chores
          WHERE status = $1 AND due_date IS NOT NULL
          ORDER BY due_date`,
		household.ChoreStatusPending)
	if err != nil {
		return nil, fmt.Errorf("error listing open chores: %w", err)
	}
	defer rows.Close()
	var out []*household.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresHouseholdRepository) GetChore(ctx context.Context, id string) (*household.Chore, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, family_id, title, assigned_to, due_date, status, created_at, updated_at
           FROM chores WHERE id = $1`, id)
	c, err := scanChore(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, household.ErrChoreNotFound
		}
		return nil, fmt.Errorf("error getting chore by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresHouseholdRepository) GetUser(ctx context.Context, id string) (*household.User, error) {
	u := &household.User{}
	var chatID sql.NullInt64
	var phone, email sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, family_id, first_name, chat_id, phone, email FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.FamilyID, &u.FirstName, &chatID, &phone, &email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, household.ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	u.ChatID = chatID.Int64
	u.Phone = phone.String
	u.Email = email.String
	return u, nil
}

func (r *PostgresHouseholdRepository) ListFamilyMembers(ctx context.Context, familyID string) ([]*household.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, family_id, first_name, chat_id, phone, email FROM users
          WHERE family_id = $1 ORDER BY id`,
		familyID)
	if err != nil {
		return nil, fmt.Errorf("error listing family members: %w", err)
	}
	defer rows.Close()
	var out []*household.User
	for rows.Next() {
		u := &household.User{}
		var chatID sql.NullInt64
		var phone, email sql.NullString
		if err := rows.Scan(&u.ID, &u.FamilyID, &u.FirstName, &chatID, &phone, &email); err != nil {
			return nil, fmt.Errorf("error scanning family member: %w", err)
		}
		u.ChatID = chatID.Int64
		u.Phone = phone.String
		u.Email = email.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanChore(row rowScanner) (*household.Chore, error) {
	c := &household.Chore{}
	var due sql.NullTime
	err := row.Scan(&c.ID, &c.FamilyID, &c.Title, &c.AssignedTo, &due, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.DueDate = due.Time
	return c, nil
}
