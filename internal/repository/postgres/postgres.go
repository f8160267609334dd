// Package postgres implements the service repositories against
// PostgreSQL using database/sql and lib/pq. The schema lives in
// migrations/001_outreach_engine.sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Postgres error codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pqCode(err error) (string, string) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", ""
	}
	return string(pqErr.Code), pqErr.Constraint
}

// uniqueViolation reports whether err is a unique violation, on the named
// constraint when one is given.
func uniqueViolation(err error, constraint string) bool {
	code, name := pqCode(err)
	return code == codeUniqueViolation && (constraint == "" || name == constraint)
}

func foreignKeyViolation(err error) bool {
	code, _ := pqCode(err)
	return code == codeForeignKeyViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise. fn's error is returned unchanged.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// pageClause appends LIMIT/OFFSET placeholders starting at idx.
func pageClause(q string, args []any, limit, offset int) (string, []any) {
	idx := len(args) + 1
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, limit)
		idx++
	}
	if offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, offset)
	}
	return q, args
}
