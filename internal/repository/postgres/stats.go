package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/stats"
)

// StatsRepo implements stats.Repository against PostgreSQL.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed stats repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

var _ stats.Repository = (*StatsRepo)(nil)

// computeQuery derives every counter for [$1, $2) from the source tables.
const computeQuery = `
	SELECT
		(SELECT COUNT(*) FROM contacts WHERE created_at >= $1 AND created_at < $2),
		(SELECT COUNT(*) FROM discovery_log WHERE created_at >= $1 AND created_at < $2
		                                      AND result IN ('found', 'verified')),
		(SELECT COUNT(*) FROM outreach_bundles WHERE created_at >= $1 AND created_at < $2),
		(SELECT COUNT(*) FROM outreach_bundles WHERE approved_at >= $1 AND approved_at < $2),
		(SELECT COUNT(*) FROM send_log WHERE created_at >= $1 AND created_at < $2 AND success),
		(SELECT COUNT(*) FROM send_log WHERE created_at >= $1 AND created_at < $2 AND NOT success),
		(SELECT COUNT(*) FROM bounce_events WHERE created_at >= $1 AND created_at < $2),
		(SELECT COUNT(*) FROM open_events WHERE opened_at >= $1 AND opened_at < $2),
		(SELECT COUNT(DISTINCT bundle_id) FROM open_events WHERE opened_at >= $1 AND opened_at < $2),
		(SELECT COUNT(*) FROM outreach_bundles WHERE replied_at >= $1 AND replied_at < $2),
		(SELECT COUNT(*) FROM follow_ups WHERE status = 'sent' AND sent_at >= $1 AND sent_at < $2),
		(SELECT COUNT(*) FROM news_signals WHERE created_at >= $1 AND created_at < $2),
		(SELECT COUNT(*) FROM news_signals WHERE status = 'promoted' AND updated_at >= $1 AND updated_at < $2)`

func (r *StatsRepo) Compute(ctx context.Context, day time.Time) (*domain.DailyStat, error) {
	start := domain.Date(day)
	end := start.AddDate(0, 0, 1)
	st := &domain.DailyStat{StatDate: start.Format(domain.BatchDateLayout)}
	err := r.db.QueryRowContext(ctx, computeQuery, start, end).Scan(
		&st.ContactsCreated, &st.EmailsFound, &st.BundlesDrafted, &st.BundlesApproved,
		&st.EmailsSent, &st.SendFailures, &st.Bounces, &st.Opens, &st.UniqueOpens,
		&st.Replies, &st.FollowUpsSent, &st.SignalsIngested, &st.SignalsPromoted,
	)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	return st, nil
}

func (r *StatsRepo) Upsert(ctx context.Context, s *domain.DailyStat) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_stats (stat_date, contacts_created, emails_found, bundles_drafted, bundles_approved,
		                         emails_sent, send_failures, bounces, opens, unique_opens, replies,
		                         followups_sent, signals_ingested, signals_promoted, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (stat_date) DO UPDATE SET
			contacts_created = EXCLUDED.contacts_created,
			emails_found     = EXCLUDED.emails_found,
			bundles_drafted  = EXCLUDED.bundles_drafted,
			bundles_approved = EXCLUDED.bundles_approved,
			emails_sent      = EXCLUDED.emails_sent,
			send_failures    = EXCLUDED.send_failures,
			bounces          = EXCLUDED.bounces,
			opens            = EXCLUDED.opens,
			unique_opens     = EXCLUDED.unique_opens,
			replies          = EXCLUDED.replies,
			followups_sent   = EXCLUDED.followups_sent,
			signals_ingested = EXCLUDED.signals_ingested,
			signals_promoted = EXCLUDED.signals_promoted,
			computed_at      = EXCLUDED.computed_at
	`, s.StatDate, s.ContactsCreated, s.EmailsFound, s.BundlesDrafted, s.BundlesApproved,
		s.EmailsSent, s.SendFailures, s.Bounces, s.Opens, s.UniqueOpens, s.Replies,
		s.FollowUpsSent, s.SignalsIngested, s.SignalsPromoted, s.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

const statColumns = `to_char(stat_date, 'YYYY-MM-DD'), contacts_created, emails_found, bundles_drafted,
		       bundles_approved, emails_sent, send_failures, bounces, opens, unique_opens, replies,
		       followups_sent, signals_ingested, signals_promoted, computed_at`

func scanStat(row rowScanner) (*domain.DailyStat, error) {
	s := &domain.DailyStat{}
	err := row.Scan(&s.StatDate, &s.ContactsCreated, &s.EmailsFound, &s.BundlesDrafted,
		&s.BundlesApproved, &s.EmailsSent, &s.SendFailures, &s.Bounces, &s.Opens, &s.UniqueOpens, &s.Replies,
		&s.FollowUpsSent, &s.SignalsIngested, &s.SignalsPromoted, &s.ComputedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StatsRepo) Get(ctx context.Context, statDate string) (*domain.DailyStat, error) {
	s, err := scanStat(r.db.QueryRowContext(ctx, `SELECT `+statColumns+` FROM daily_stats WHERE stat_date = $1`, statDate))
	if err == sql.ErrNoRows {
		return nil, stats.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return s, nil
}

func (r *StatsRepo) Range(ctx context.Context, from, to string) ([]domain.DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+statColumns+`
		FROM daily_stats
		WHERE stat_date BETWEEN $1 AND $2
		ORDER BY stat_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("range stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyStat
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
