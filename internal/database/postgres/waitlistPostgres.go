package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"
)

type waitlistRepository struct {
	tx *sql.Tx
}

const waitlistColumns = `id, event_id, user_id, ticket_category_id, quantity, status, registered_at, notified_at, expires_at, updated_at`

func scanWaitlistEntry(row rowScanner) (*entity.WaitlistEntry, error) {
	var (
		entry      entity.WaitlistEntry
		notifiedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(
		&entry.ID,
		&entry.EventID,
		&entry.UserID,
		&entry.TicketCategoryID,
		&entry.Quantity,
		&entry.Status,
		&entry.RegisteredAt,
		&notifiedAt,
		&expiresAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notifiedAt.Valid {
		entry.NotifiedAt = &notifiedAt.Time
	}
	if expiresAt.Valid {
		entry.ExpiresAt = &expiresAt.Time
	}
	return &entry, nil
}

func (r *waitlistRepository) GetByID(ctx context.Context, id string) (*entity.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *waitlistRepository) GetByKey(ctx context.Context, eventID, userID, categoryID string) (*entity.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE event_id = $1 AND user_id = $2 AND ticket_category_id = $3
		FOR UPDATE
	`
	return r.get(ctx, query, eventID, userID, categoryID)
}

func (r *waitlistRepository) get(ctx context.Context, query string, args ...any) (*entity.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return entry, nil
}

func (r *waitlistRepository) Create(ctx context.Context, entry *entity.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (` + waitlistColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.tx.ExecContext(ctx, query,
		entry.ID,
		entry.EventID,
		entry.UserID,
		entry.TicketCategoryID,
		entry.Quantity,
		entry.Status,
		entry.RegisteredAt,
		entry.NotifiedAt,
		entry.ExpiresAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrAlreadyOnWaitlist
		}
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) Update(ctx context.Context, entry *entity.WaitlistEntry) error {
	query := `
		UPDATE waitlist_entries
		SET quantity = $2, status = $3, registered_at = $4, notified_at = $5, expires_at = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.tx.ExecContext(ctx, query,
		entry.ID,
		entry.Quantity,
		entry.Status,
		entry.RegisteredAt,
		entry.NotifiedAt,
		entry.ExpiresAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrWaitlistEntryNotFound
	}
	return nil
}

// NotifyOldestWaiting skips rows locked by a concurrent cascade so two
// releases never pop the same entry.
func (r *waitlistRepository) NotifyOldestWaiting(ctx context.Context, eventID, categoryID string, limit int, now time.Time, window time.Duration) ([]*entity.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET status = $3, notified_at = $4, expires_at = $5, updated_at = $4
		WHERE id IN (
			SELECT id FROM waitlist_entries
			WHERE event_id = $1 AND ticket_category_id = $2 AND status = $6
			ORDER BY registered_at, id
			LIMIT $7
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + waitlistColumns

	return r.updateReturning(ctx, query,
		eventID,
		categoryID,
		entity.WaitlistStatusNotified,
		now,
		now.Add(window),
		entity.WaitlistStatusWaiting,
		limit,
	)
}

func (r *waitlistRepository) ExpireNotified(ctx context.Context, now time.Time, limit int) ([]*entity.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM waitlist_entries
			WHERE status = $3 AND expires_at < $2
			ORDER BY expires_at, id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + waitlistColumns

	return r.updateReturning(ctx, query,
		entity.WaitlistStatusExpired,
		now,
		entity.WaitlistStatusNotified,
		limit,
	)
}

func (r *waitlistRepository) updateReturning(ctx context.Context, query string, args ...any) ([]*entity.WaitlistEntry, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waitlist entries: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
	})
	return entries, nil
}

func (r *waitlistRepository) Position(ctx context.Context, entry *entity.WaitlistEntry) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM waitlist_entries
		WHERE event_id = $1 AND ticket_category_id = $2 AND status = $3
			AND (registered_at, id) <= ($4, $5)
	`

	var position int
	err := r.tx.QueryRowContext(ctx, query,
		entry.EventID,
		entry.TicketCategoryID,
		entity.WaitlistStatusWaiting,
		entry.RegisteredAt,
		entry.ID,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to get waitlist position: %w", err)
	}
	return position, nil
}
