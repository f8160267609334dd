package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/bundle"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// TrackingRepo implements tracking.Repository against PostgreSQL.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking repository.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

var _ tracking.Repository = (*TrackingRepo)(nil)

func (r *TrackingRepo) InsertToken(ctx context.Context, t *domain.TrackingToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracking_tokens (tracking_id, bundle_id, issued_at) VALUES ($1, $2, $3)
	`, t.TrackingID, t.BundleID, t.IssuedAt)
	switch {
	case uniqueViolation(err, ""):
		return fmt.Errorf("%w: bundle %d", tracking.ErrAlreadyIssued, t.BundleID)
	case foreignKeyViolation(err):
		return bundle.ErrNotFound
	case err != nil:
		return fmt.Errorf("insert tracking token: %w", err)
	}
	return nil
}

func (r *TrackingRepo) token(ctx context.Context, where string, arg any) (*domain.TrackingToken, error) {
	t := &domain.TrackingToken{}
	err := r.db.QueryRowContext(ctx, `
		SELECT tracking_id, bundle_id, issued_at FROM tracking_tokens WHERE `+where, arg,
	).Scan(&t.TrackingID, &t.BundleID, &t.IssuedAt)
	if err == sql.ErrNoRows {
		return nil, tracking.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking token: %w", err)
	}
	return t, nil
}

func (r *TrackingRepo) TokenByBundle(ctx context.Context, bundleID int64) (*domain.TrackingToken, error) {
	return r.token(ctx, "bundle_id = $1", bundleID)
}

func (r *TrackingRepo) Token(ctx context.Context, trackingID string) (*domain.TrackingToken, error) {
	return r.token(ctx, "tracking_id = $1", trackingID)
}

// RecordOpen locks the bundle row, appends the event and recomputes the
// cached aggregate from open_events, so concurrent opens never lose a
// count and first_opened_at is always the minimum.
func (r *TrackingRepo) RecordOpen(ctx context.Context, ev *domain.OpenEvent) (domain.OpenAggregate, error) {
	agg := domain.OpenAggregate{BundleID: ev.BundleID}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM outreach_bundles WHERE id = $1 FOR UPDATE`, ev.BundleID).Scan(&id)
		if err == sql.ErrNoRows {
			return bundle.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock bundle: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO open_events (tracking_id, bundle_id, ip, user_agent, opened_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, ev.TrackingID, ev.BundleID, ev.IP, ev.UserAgent, ev.OpenedAt).Scan(&ev.ID)
		if err != nil {
			return fmt.Errorf("insert open event: %w", err)
		}

		var first sql.NullTime
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*), MIN(opened_at) FROM open_events WHERE bundle_id = $1
		`, ev.BundleID).Scan(&agg.OpenCount, &first)
		if err != nil {
			return fmt.Errorf("aggregate opens: %w", err)
		}
		agg.FirstOpenedAt = timePtr(first)

		_, err = tx.ExecContext(ctx, `
			UPDATE outreach_bundles SET open_count = $2, first_opened_at = $3, updated_at = NOW()
			WHERE id = $1
		`, ev.BundleID, agg.OpenCount, first)
		if err != nil {
			return fmt.Errorf("update open aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OpenAggregate{}, err
	}
	agg.FirstOpen = agg.OpenCount == 1
	return agg, nil
}

func (r *TrackingRepo) Opens(ctx context.Context, bundleID int64) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracking_id, bundle_id, ip, user_agent, opened_at
		FROM open_events
		WHERE bundle_id = $1
		ORDER BY opened_at, id
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("list opens: %w", err)
	}
	defer rows.Close()

	var out []domain.OpenEvent
	for rows.Next() {
		var o domain.OpenEvent
		if err := rows.Scan(&o.ID, &o.TrackingID, &o.BundleID, &o.IP, &o.UserAgent, &o.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan open: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
