package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/followup"
)

// FollowUpRepo implements followup.Repository against PostgreSQL.
type FollowUpRepo struct{ db *sql.DB }

// NewFollowUpRepo creates a Postgres-backed follow-up repository.
func NewFollowUpRepo(db *sql.DB) *FollowUpRepo { return &FollowUpRepo{db: db} }

var _ followup.Repository = (*FollowUpRepo)(nil)

const followUpColumns = `id, contact_id, bundle_id, sequence_number, scheduled_date, status, sent_at, created_at`

func scanFollowUp(row rowScanner) (*domain.FollowUp, error) {
	f := &domain.FollowUp{}
	var bundleID sql.NullInt64
	var sentAt sql.NullTime
	if err := row.Scan(&f.ID, &f.ContactID, &bundleID, &f.SequenceNumber, &f.ScheduledDate, &f.Status, &sentAt, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.BundleID = int64Ptr(bundleID)
	f.ScheduledDate = domain.Date(f.ScheduledDate)
	f.SentAt = timePtr(sentAt)
	return f, nil
}

func (r *FollowUpRepo) Create(ctx context.Context, f *domain.FollowUp) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO follow_ups (contact_id, bundle_id, sequence_number, scheduled_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, f.ContactID, nullInt64(f.BundleID), f.SequenceNumber, f.ScheduledDate.Format(domain.BatchDateLayout), string(f.Status),
	).Scan(&f.ID, &f.CreatedAt)
	switch {
	case uniqueViolation(err, ""):
		return 0, fmt.Errorf("%w: contact %d sequence %d", followup.ErrSequenceTaken, f.ContactID, f.SequenceNumber)
	case foreignKeyViolation(err):
		return 0, fmt.Errorf("follow-up for contact %d: %w", f.ContactID, domain.ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("insert follow-up: %w", err)
	}
	return f.ID, nil
}

func (r *FollowUpRepo) Get(ctx context.Context, id int64) (*domain.FollowUp, error) {
	f, err := scanFollowUp(r.db.QueryRowContext(ctx, `SELECT `+followUpColumns+` FROM follow_ups WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, followup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up: %w", err)
	}
	return f, nil
}

func (r *FollowUpRepo) MaxSequence(ctx context.Context, contactID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM follow_ups WHERE contact_id = $1
	`, contactID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return n, nil
}

func (r *FollowUpRepo) query(ctx context.Context, q string, args ...any) ([]domain.FollowUp, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *FollowUpRepo) ListByContact(ctx context.Context, contactID int64) ([]domain.FollowUp, error) {
	return r.query(ctx, `
		SELECT `+followUpColumns+`
		FROM follow_ups
		WHERE contact_id = $1
		ORDER BY sequence_number
	`, contactID)
}

// DuePage is a keyset scan over the partial index follow_ups_due_idx.
func (r *FollowUpRepo) DuePage(ctx context.Context, asOf time.Time, after followup.Cursor, limit int) ([]domain.FollowUp, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `
		SELECT `+followUpColumns+`
		FROM follow_ups
		WHERE status = 'pending'
		  AND scheduled_date <= $1
		  AND (scheduled_date, contact_id, id) > ($2, $3, $4)
		ORDER BY scheduled_date, contact_id, id
		LIMIT $5
	`, asOf.Format(domain.BatchDateLayout), after.ScheduledDate.Format(domain.BatchDateLayout), after.ContactID, after.ID, limit)
}

func (r *FollowUpRepo) Transition(ctx context.Context, id int64, from, to domain.FollowUpStatus, sentAt *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE follow_ups SET status = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), nullTime(sentAt))
	if err != nil {
		return false, fmt.Errorf("transition follow-up: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM follow_ups WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("transition follow-up: %w", err)
	}
	if !exists {
		return false, followup.ErrNotFound
	}
	return false, nil
}

func (r *FollowUpRepo) CancelPending(ctx context.Context, contactID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE follow_ups SET status = 'cancelled' WHERE contact_id = $1 AND status = 'pending'
	`, contactID)
	if err != nil {
		return 0, fmt.Errorf("cancel follow-ups: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
