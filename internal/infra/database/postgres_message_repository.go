// internal/infra/database/postgres_message_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"chore_notifier/internal/domain/notification"

	"github.com/lib/pq" // For pq.Array and driver registration
)

const messageColumns = `id, source_id, recipient_id, family_id, kind, channels, attempted,
        subject, body, scheduled_at, status, attempts, last_error, created_at, updated_at`

// PostgresMessageRepository implements notification.MessageRepository on the
// scheduled_messages table. The (source_id, recipient_id, kind) unique
// constraint is the sole guard against duplicate scheduling; claiming rows
// goes through UPDATE ... WHERE status so overlapping drains cannot grab the
// same message.
type PostgresMessageRepository struct {
	db      *sql.DB
	recycle time.Duration
}

func NewPostgresMessageRepository(db *sql.DB, recycle time.Duration) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db, recycle: recycle}
}

func (r *PostgresMessageRepository) Enqueue(ctx context.Context, m *notification.ScheduledMessage) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer txn.Rollback()

	var priorID string
	var priorStatus notification.MessageStatus
	var priorScheduledAt time.Time
	err = txn.QueryRowContext(ctx,
		`SELECT id, status, scheduled_at FROM scheduled_messages
          WHERE source_id = $1 AND recipient_id = $2 AND kind = $3
          FOR UPDATE`,
		m.SourceID, m.RecipientID, m.Kind,
	).Scan(&priorID, &priorStatus, &priorScheduledAt)
	switch {
	case err == sql.ErrNoRows:
		// No prior entry; fall through to insert.
	case err != nil:
		return fmt.Errorf("error checking prior message for key: %w", err)
	default:
		if !priorStatus.Terminal() {
			return notification.ErrDuplicateMessage
		}
		if m.ScheduledAt.Sub(priorScheduledAt) < r.recycle {
			return notification.ErrDuplicateMessage
		}
		if _, err := txn.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = $1`, priorID); err != nil {
			return fmt.Errorf("error replacing stale terminal message: %w", err)
		}
	}

	m.Status = notification.StatusQueued
	err = txn.QueryRowContext(ctx,
		`INSERT INTO scheduled_messages
           (id, source_id, recipient_id, family_id, kind, channels, attempted, subject, body, scheduled_at, status)
         VALUES ($1, $2, $3, $4, $5, $6, '{}', $7, $8, $9, $10)
         RETURNING created_at, updated_at`,
		m.ID, m.SourceID, m.RecipientID, m.FamilyID, m.Kind,
		pq.Array(channelStrings(m.Channels)), m.Payload.Subject, m.Payload.Body, m.ScheduledAt, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "message_key_unique") {
			return notification.ErrDuplicateMessage
		}
		return fmt.Errorf("error inserting scheduled message: %w", err)
	}

	return txn.Commit()
}

func (r *PostgresMessageRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`UPDATE scheduled_messages SET status = $1, updated_at = NOW()
          WHERE id IN (
                SELECT id FROM scheduled_messages
                 WHERE status = $2 AND scheduled_at <= $3
                 ORDER BY scheduled_at, seq
                 LIMIT $4
                 FOR UPDATE SKIP LOCKED)
         RETURNING `+messageColumns+`, seq`,
		notification.StatusDispatching, notification.StatusQueued, now, limit)
	if err != nil {
		return nil, fmt.Errorf("error claiming due messages: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		msg *notification.ScheduledMessage
		seq int64
	}
	var rowsOut []claimed
	for rows.Next() {
		var c claimed
		var err error
		if c.msg, err = scanMessage(rows, &c.seq); err != nil {
			return nil, fmt.Errorf("error scanning claimed message: %w", err)
		}
		rowsOut = append(rowsOut, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subselect ordering; restore
	// scheduled_at with seq as the tie-break.
	sort.Slice(rowsOut, func(i, j int) bool {
		if !rowsOut[i].msg.ScheduledAt.Equal(rowsOut[j].msg.ScheduledAt) {
			return rowsOut[i].msg.ScheduledAt.Before(rowsOut[j].msg.ScheduledAt)
		}
		return rowsOut[i].seq < rowsOut[j].seq
	})
	msgs := make([]*notification.ScheduledMessage, len(rowsOut))
	for i, c := range rowsOut {
		msgs[i] = c.msg
	}
	return msgs, nil
}

func (r *PostgresMessageRepository) Upcoming(ctx context.Context, now time.Time, window time.Duration) ([]*notification.ScheduledMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM scheduled_messages
          WHERE status = $1 AND scheduled_at <= $2
          ORDER BY scheduled_at, seq`,
		notification.StatusQueued, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("error listing upcoming messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id string) (*notification.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM scheduled_messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notification.ErrMessageNotFound
		}
		return nil, fmt.Errorf("error getting scheduled message by ID: %w", err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) Requeue(ctx context.Context, id string, at time.Time) error {
	return r.casStatus(ctx, id,
		`UPDATE scheduled_messages SET status = $1, scheduled_at = $2, updated_at = NOW()
          WHERE id = $3 AND status = $4`,
		notification.StatusQueued, at, id, notification.StatusDispatching)
}

func (r *PostgresMessageRepository) AddAttempt(ctx context.Context, id string, ch notification.Channel, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_messages
            SET attempted = array_append(attempted, $1), attempts = attempts + 1,
                last_error = $2, updated_at = NOW()
          WHERE id = $3`,
		string(ch), lastError, id)
	if err != nil {
		return fmt.Errorf("error recording attempt: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresMessageRepository) MarkSent(ctx context.Context, id string) error {
	return r.casStatus(ctx, id,
		`UPDATE scheduled_messages SET status = $1, last_error = '', updated_at = NOW()
          WHERE id = $2 AND status = $3`,
		notification.StatusSent, id, notification.StatusDispatching)
}

func (r *PostgresMessageRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	return r.casStatus(ctx, id,
		`UPDATE scheduled_messages SET status = $1, last_error = $2, updated_at = NOW()
          WHERE id = $3 AND status = $4`,
		notification.StatusFailed, lastError, id, notification.StatusDispatching)
}

func (r *PostgresMessageRepository) MarkSkipped(ctx context.Context, id string) error {
	// Unconditional: cancellation overrides any prior outcome.
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET status = $1, updated_at = NOW() WHERE id = $2`,
		notification.StatusSkipped, id)
	if err != nil {
		return fmt.Errorf("error marking message skipped: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresMessageRepository) CancelPendingForSource(ctx context.Context, sourceID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET status = $1, updated_at = NOW()
          WHERE source_id = $2 AND status IN ($3, $4)`,
		notification.StatusSkipped, sourceID, notification.StatusQueued, notification.StatusDispatching)
	if err != nil {
		return 0, fmt.Errorf("error cancelling pending messages for source: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *PostgresMessageRepository) ActiveSourceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM scheduled_messages
          WHERE status IN ($1, $2) AND source_id <> ''
          ORDER BY source_id`,
		notification.StatusQueued, notification.StatusDispatching)
	if err != nil {
		return nil, fmt.Errorf("error listing active source ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning source id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepository) StatusCounts(ctx context.Context) (map[notification.MessageStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM scheduled_messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting messages by status: %w", err)
	}
	defer rows.Close()
	out := make(map[notification.MessageStatus]int)
	for rows.Next() {
		var status notification.MessageStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepository) QueueDepthByChannel(ctx context.Context) (map[notification.Channel]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ch, COUNT(*) FROM scheduled_messages, unnest(channels) AS ch
          WHERE status = $1 GROUP BY ch`,
		notification.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("error counting queue depth by channel: %w", err)
	}
	defer rows.Close()
	out := make(map[notification.Channel]int)
	for rows.Next() {
		var ch notification.Channel
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, fmt.Errorf("error scanning queue depth: %w", err)
		}
		out[ch] = n
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepository) ReminderStats(ctx context.Context, familyID string) ([]notification.StageStatusCount, error) {
	query := `SELECT kind, status, COUNT(*) FROM scheduled_messages
               WHERE kind IN ($1, $2, $3)`
	args := []interface{}{notification.KindReminderFirst, notification.KindReminderSecond, notification.KindReminderFinal}
	if familyID != "" {
		query += ` AND family_id = $4`
		args = append(args, familyID)
	}
	query += ` GROUP BY kind, status ORDER BY kind, status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error aggregating reminder stats: %w", err)
	}
	defer rows.Close()
	var out []notification.StageStatusCount
	for rows.Next() {
		var kind notification.Kind
		var status notification.MessageStatus
		var n int
		if err := rows.Scan(&kind, &status, &n); err != nil {
			return nil, fmt.Errorf("error scanning reminder stat row: %w", err)
		}
		stage, ok := kind.Stage()
		if !ok {
			continue
		}
		out = append(out, notification.StageStatusCount{Stage: stage, Status: status, Count: n})
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepository) PruneTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_messages
          WHERE status IN ($1, $2, $3) AND updated_at < $4`,
		notification.StatusSent, notification.StatusFailed, notification.StatusSkipped, olderThan)
	if err != nil {
		return 0, fmt.Errorf("error pruning terminal messages: %w", err)
	}
	return res.RowsAffected()
}

// casStatus runs a conditional status update and maps a zero row count to
// ErrMessageNotFound (wrong id or the message was no longer in the expected
// state).
func (r *PostgresMessageRepository) casStatus(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating message %s: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return notification.ErrMessageNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMessage reads one messageColumns row; extra receives any columns
// selected after them.
func scanMessage(row rowScanner, extra ...interface{}) (*notification.ScheduledMessage, error) {
	m := &notification.ScheduledMessage{}
	var channels, attempted []string
	dest := append([]interface{}{&m.ID, &m.SourceID, &m.RecipientID, &m.FamilyID, &m.Kind,
		pq.Array(&channels), pq.Array(&attempted),
		&m.Payload.Subject, &m.Payload.Body, &m.ScheduledAt, &m.Status,
		&m.Attempts, &m.LastError, &m.CreatedAt, &m.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.Channels = toChannels(channels)
	m.Attempted = toChannels(attempted)
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*notification.ScheduledMessage, error) {
	var out []*notification.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning scheduled message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func channelStrings(chs []notification.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = string(ch)
	}
	return out
}

func toChannels(ss []string) []notification.Channel {
	out := make([]notification.Channel, len(ss))
	for i, s := range ss {
		out[i] = notification.Channel(s)
	}
	return out
}
