package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/bundle"
)

// BundleRepo implements bundle.Repository against PostgreSQL.
type BundleRepo struct{ db *sql.DB }

// NewBundleRepo creates a Postgres-backed bundle repository.
func NewBundleRepo(db *sql.DB) *BundleRepo { return &BundleRepo{db: db} }

var _ bundle.Repository = (*BundleRepo)(nil)

const bundleColumns = `id, contact_id, to_char(batch_date, 'YYYY-MM-DD'), subject, body, template_name,
		       status, recipient, approved_at, sent_at, email_sent, open_count, first_opened_at,
		       reply_type, reply_snippet, replied_at, created_at, updated_at`

func scanBundle(row rowScanner) (*domain.OutreachBundle, error) {
	b := &domain.OutreachBundle{}
	var approvedAt, sentAt, firstOpenedAt, repliedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.ContactID, &b.BatchDate, &b.Subject, &b.Body, &b.TemplateName,
		&b.Status, &b.Recipient, &approvedAt, &sentAt, &b.EmailSent, &b.OpenCount, &firstOpenedAt,
		&b.ReplyType, &b.ReplySnippet, &repliedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ApprovedAt = timePtr(approvedAt)
	b.SentAt = timePtr(sentAt)
	b.FirstOpenedAt = timePtr(firstOpenedAt)
	b.RepliedAt = timePtr(repliedAt)
	return b, nil
}

func (r *BundleRepo) Create(ctx context.Context, b *domain.OutreachBundle) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO outreach_bundles (contact_id, batch_date, subject, body, template_name, status, recipient)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, b.ContactID, b.BatchDate, b.Subject, b.Body, b.TemplateName, string(b.Status), b.Recipient,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	switch {
	case uniqueViolation(err, "outreach_bundles_one_unresolved"):
		return 0, fmt.Errorf("%w (contact %d)", bundle.ErrUnresolvedExists, b.ContactID)
	case foreignKeyViolation(err):
		return 0, fmt.Errorf("bundle for contact %d: %w", b.ContactID, domain.ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	return b.ID, nil
}

func (r *BundleRepo) Get(ctx context.Context, id int64) (*domain.OutreachBundle, error) {
	b, err := scanBundle(r.db.QueryRowContext(ctx, `SELECT `+bundleColumns+` FROM outreach_bundles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, bundle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return b, nil
}

func (r *BundleRepo) Unresolved(ctx context.Context, contactID int64) (*domain.OutreachBundle, error) {
	b, err := scanBundle(r.db.QueryRowContext(ctx, `
		SELECT `+bundleColumns+`
		FROM outreach_bundles
		WHERE contact_id = $1 AND status IN ('queued', 'approved')
	`, contactID))
	if err == sql.ErrNoRows {
		return nil, bundle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unresolved bundle: %w", err)
	}
	return b, nil
}

func (r *BundleRepo) list(ctx context.Context, where string, arg any) ([]domain.OutreachBundle, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bundleColumns+` FROM outreach_bundles WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []domain.OutreachBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BundleRepo) ListByBatch(ctx context.Context, batchDate string) ([]domain.OutreachBundle, error) {
	return r.list(ctx, "batch_date = $1", batchDate)
}

func (r *BundleRepo) ListByContact(ctx context.Context, contactID int64) ([]domain.OutreachBundle, error) {
	return r.list(ctx, "contact_id = $1", contactID)
}

func (r *BundleRepo) ListApproved(ctx context.Context, limit int) ([]domain.OutreachBundle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bundleColumns+`
		FROM outreach_bundles
		WHERE status = 'approved'
		ORDER BY approved_at NULLS LAST, id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list approved bundles: %w", err)
	}
	defer rows.Close()

	var out []domain.OutreachBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BundleRepo) DraftCandidates(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id
		FROM contacts c
		WHERE c.outreach_status = 'pending'
		  AND c.account_status <> 'lost'
		  AND c.email_status IN ('found', 'verified')
		  AND c.discovered_email <> ''
		  AND NOT EXISTS (
		      SELECT 1 FROM outreach_bundles b
		      WHERE b.contact_id = c.id AND b.status IN ('queued', 'approved'))
		ORDER BY c.priority_score DESC, c.id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("draft candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan draft candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *BundleRepo) Save(ctx context.Context, b *domain.OutreachBundle, expected domain.BundleStatus) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE outreach_bundles SET
			status = $2, recipient = $3, approved_at = $4, sent_at = $5, email_sent = $6,
			reply_type = $7, reply_snippet = $8, replied_at = $9, updated_at = NOW()
		WHERE id = $1 AND status = $10
		RETURNING updated_at
	`, b.ID, string(b.Status), b.Recipient, nullTime(b.ApprovedAt), nullTime(b.SentAt), b.EmailSent,
		b.ReplyType, b.ReplySnippet, nullTime(b.RepliedAt), string(expected),
	).Scan(&b.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("save bundle: %w", err)
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM outreach_bundles WHERE id = $1`, b.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return bundle.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}
	return fmt.Errorf("%w: stored status is %s, expected %s", bundle.ErrInvalidTransition, current, expected)
}

func (r *BundleRepo) CancelUnresolved(ctx context.Context, contactID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_bundles SET status = 'cancelled', updated_at = NOW()
		WHERE contact_id = $1 AND status IN ('queued', 'approved')
	`, contactID)
	if err != nil {
		return 0, fmt.Errorf("cancel bundles: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *BundleRepo) AppendSendLog(ctx context.Context, e *domain.SendLogEntry) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO send_log (bundle_id, follow_up_id, recipient, success, permanent,
		                      smtp_response_code, smtp_response_text, error, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, e.BundleID, nullInt64(e.FollowUpID), e.Recipient, e.Success, e.Permanent,
		e.SMTPCode, e.SMTPText, e.Error, e.MessageID,
	).Scan(&e.ID, &e.CreatedAt)
	if foreignKeyViolation(err) {
		return 0, bundle.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("insert send log: %w", err)
	}
	return e.ID, nil
}

func (r *BundleRepo) SendLog(ctx context.Context, bundleID int64) ([]domain.SendLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, bundle_id, follow_up_id, recipient, success, permanent,
		       smtp_response_code, smtp_response_text, error, message_id, created_at
		FROM send_log
		WHERE bundle_id = $1
		ORDER BY id
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("send log: %w", err)
	}
	defer rows.Close()

	var out []domain.SendLogEntry
	for rows.Next() {
		var e domain.SendLogEntry
		var followUpID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.BundleID, &followUpID, &e.Recipient, &e.Success, &e.Permanent,
			&e.SMTPCode, &e.SMTPText, &e.Error, &e.MessageID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan send log: %w", err)
		}
		e.FollowUpID = int64Ptr(followUpID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *BundleRepo) CountSends(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_log WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sends: %w", err)
	}
	return n, nil
}
