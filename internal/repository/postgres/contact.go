package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/contact"
)

// ContactRepo implements contact.Repository against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

var _ contact.Repository = (*ContactRepo)(nil)

const contactColumns = `id, company_name, contact_name, title_role, address, city, province,
		       postal_code, phone, website, domain, notes, source, tier, industry_code,
		       priority_score, account_status, email_status, outreach_status,
		       discovered_email, bounce_count, bounced_emails, created_at, updated_at`

func scanContact(row rowScanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	var bounced []string
	err := row.Scan(
		&c.ID, &c.CompanyName, &c.ContactName, &c.TitleRole, &c.Address, &c.City, &c.Province,
		&c.PostalCode, &c.Phone, &c.Website, &c.Domain, &c.Notes, &c.Source, &c.Tier, &c.IndustryCode,
		&c.PriorityScore, &c.AccountStatus, &c.EmailStatus, &c.OutreachStatus,
		&c.DiscoveredEmail, &c.BounceCount, pq.Array(&bounced), &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.BouncedEmails = bounced
	return c, nil
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) (int64, error) {
	bounced := c.BouncedEmails
	if bounced == nil {
		bounced = []string{}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (company_name, contact_name, title_role, address, city, province,
		                      postal_code, phone, website, domain, notes, source, tier, industry_code,
		                      priority_score, account_status, email_status, outreach_status,
		                      discovered_email, bounce_count, bounced_emails)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at
	`, c.CompanyName, c.ContactName, c.TitleRole, c.Address, c.City, c.Province,
		c.PostalCode, c.Phone, c.Website, c.Domain, c.Notes, c.Source, string(c.Tier), c.IndustryCode,
		c.PriorityScore, string(c.AccountStatus), string(c.EmailStatus), string(c.OutreachStatus),
		c.DiscoveredEmail, c.BounceCount, pq.Array(bounced),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if uniqueViolation(err, "contacts_identity_key") {
		return 0, fmt.Errorf("%w: %s", contact.ErrDuplicate, c.CompanyName)
	}
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	return c.ID, nil
}

func (r *ContactRepo) Get(ctx context.Context, id int64) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) FindByIdentity(ctx context.Context, companyName, city, domainName string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE lower(company_name) = lower($1) AND lower(domain) = lower($3)
		  AND (domain <> '' OR lower(city) = lower($2))
	`, strings.TrimSpace(companyName), strings.TrimSpace(city), strings.TrimSpace(domainName)))
	if err == sql.ErrNoRows {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) List(ctx context.Context, f contact.ListFilter) ([]domain.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE 1=1`
	var args []any
	if f.CompanyContains != "" {
		args = append(args, f.CompanyContains)
		q += fmt.Sprintf(" AND company_name ILIKE '%%' || $%d || '%%'", len(args))
	}
	if f.City != "" {
		args = append(args, f.City)
		q += fmt.Sprintf(" AND lower(city) = lower($%d)", len(args))
	}
	if f.Tier != "" {
		args = append(args, string(f.Tier))
		q += fmt.Sprintf(" AND tier = $%d", len(args))
	}
	if f.OutreachStatus != "" {
		args = append(args, string(f.OutreachStatus))
		q += fmt.Sprintf(" AND outreach_status = $%d", len(args))
	}
	q += " ORDER BY id"
	q, args = pageClause(q, args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Mutate locks the row with SELECT ... FOR UPDATE, applies fn and writes
// the result back in the same transaction.
func (r *ContactRepo) Mutate(ctx context.Context, id int64, fn func(c *domain.Contact) error) (*domain.Contact, error) {
	var out *domain.Contact
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := scanContact(tx.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1 FOR UPDATE`, id))
		if err == sql.ErrNoRows {
			return contact.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock contact: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
		bounced := c.BouncedEmails
		if bounced == nil {
			bounced = []string{}
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE contacts SET
				contact_name = $2, title_role = $3, address = $4, province = $5, postal_code = $6,
				phone = $7, website = $8, notes = $9, tier = $10, industry_code = $11,
				priority_score = $12, account_status = $13, email_status = $14, outreach_status = $15,
				discovered_email = $16, bounce_count = $17, bounced_emails = $18, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, id, c.ContactName, c.TitleRole, c.Address, c.Province, c.PostalCode,
			c.Phone, c.Website, c.Notes, string(c.Tier), c.IndustryCode,
			c.PriorityScore, string(c.AccountStatus), string(c.EmailStatus), string(c.OutreachStatus),
			c.DiscoveredEmail, c.BounceCount, pq.Array(bounced),
		).Scan(&c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContactRepo) AppendDiscovery(ctx context.Context, e *domain.DiscoveryLogEntry) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO discovery_log (contact_id, step, result, detail, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.ContactID, e.Step, string(e.Result), e.Detail, e.Email).Scan(&e.ID, &e.CreatedAt)
	if foreignKeyViolation(err) {
		return 0, contact.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("insert discovery log: %w", err)
	}
	return e.ID, nil
}

func (r *ContactRepo) DiscoveryLog(ctx context.Context, contactID int64) ([]domain.DiscoveryLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_id, step, result, detail, email, created_at
		FROM discovery_log
		WHERE contact_id = $1
		ORDER BY id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("discovery log: %w", err)
	}
	defer rows.Close()

	var out []domain.DiscoveryLogEntry
	for rows.Next() {
		var e domain.DiscoveryLogEntry
		if err := rows.Scan(&e.ID, &e.ContactID, &e.Step, &e.Result, &e.Detail, &e.Email, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan discovery log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ContactRepo) AppendBounce(ctx context.Context, e *domain.BounceEvent) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bounce_events (contact_id, email)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, e.ContactID, e.Email).Scan(&e.ID, &e.CreatedAt)
	if foreignKeyViolation(err) {
		return 0, contact.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("insert bounce event: %w", err)
	}
	return e.ID, nil
}

func (r *ContactRepo) Bounces(ctx context.Context, contactID int64) ([]domain.BounceEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_id, email, created_at
		FROM bounce_events
		WHERE contact_id = $1
		ORDER BY id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("bounce events: %w", err)
	}
	defer rows.Close()

	var out []domain.BounceEvent
	for rows.Next() {
		var e domain.BounceEvent
		if err := rows.Scan(&e.ID, &e.ContactID, &e.Email, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bounce event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
