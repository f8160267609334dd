package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

// SignalRepo implements signal.Repository against PostgreSQL.
type SignalRepo struct{ db *sql.DB }

// NewSignalRepo creates a Postgres-backed signal repository.
func NewSignalRepo(db *sql.DB) *SignalRepo { return &SignalRepo{db: db} }

var _ signal.Repository = (*SignalRepo)(nil)

const signalColumns = `id, source_url, source, signal_type, headline, snippet, company_name, city,
		       published_at, contact_id, status, created_at, updated_at`

func scanSignal(row rowScanner) (*domain.NewsSignal, error) {
	n := &domain.NewsSignal{}
	var publishedAt sql.NullTime
	var contactID sql.NullInt64
	err := row.Scan(&n.ID, &n.SourceURL, &n.Source, &n.SignalType, &n.Headline, &n.Snippet, &n.CompanyName, &n.City,
		&publishedAt, &contactID, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.PublishedAt = timePtr(publishedAt)
	n.ContactID = int64Ptr(contactID)
	return n, nil
}

func (r *SignalRepo) Create(ctx context.Context, n *domain.NewsSignal) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO news_signals (source_url, source, signal_type, headline, snippet, company_name, city, published_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, n.SourceURL, n.Source, n.SignalType, n.Headline, n.Snippet, n.CompanyName, n.City,
		nullTime(n.PublishedAt), string(n.Status),
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if uniqueViolation(err, "") {
		return 0, fmt.Errorf("%w: %s", signal.ErrDuplicate, n.SourceURL)
	}
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return n.ID, nil
}

func (r *SignalRepo) one(ctx context.Context, where string, arg any) (*domain.NewsSignal, error) {
	n, err := scanSignal(r.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM news_signals WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, signal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return n, nil
}

func (r *SignalRepo) Get(ctx context.Context, id int64) (*domain.NewsSignal, error) {
	return r.one(ctx, "id = $1", id)
}

func (r *SignalRepo) GetByURL(ctx context.Context, sourceURL string) (*domain.NewsSignal, error) {
	return r.one(ctx, "source_url = $1", sourceURL)
}

func (r *SignalRepo) List(ctx context.Context, f signal.ListFilter) ([]domain.NewsSignal, error) {
	q := `SELECT ` + signalColumns + ` FROM news_signals WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.SignalType != "" {
		args = append(args, f.SignalType)
		q += fmt.Sprintf(" AND signal_type = $%d", len(args))
	}
	q += " ORDER BY created_at DESC, id DESC"
	q, args = pageClause(q, args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.NewsSignal
	for rows.Next() {
		n, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *SignalRepo) Transition(ctx context.Context, id int64, from []domain.SignalStatus, to domain.SignalStatus, contactID *int64) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE news_signals SET status = $2, contact_id = COALESCE($3, contact_id), updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, string(to), nullInt64(contactID), pq.Array(statuses))
	if err != nil {
		return false, fmt.Errorf("transition signal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
