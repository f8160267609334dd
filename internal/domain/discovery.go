package domain

import "time"

// DiscoveryResult is the outcome recorded for one discovery attempt.
type DiscoveryResult string

const (
	DiscoveryFound    DiscoveryResult = "found"
	DiscoveryVerified DiscoveryResult = "verified"
	DiscoveryNotFound DiscoveryResult = "not_found"
	DiscoveryInvalid  DiscoveryResult = "invalid"
	DiscoveryError    DiscoveryResult = "error"
	DiscoverySkipped  DiscoveryResult = "skipped"
)

// Succeeded reports whether the attempt produced a usable address.
func (r DiscoveryResult) Succeeded() bool {
	return r == DiscoveryFound || r == DiscoveryVerified
}

// EmailStatus maps a successful result onto the contact email status.
func (r DiscoveryResult) EmailStatus() EmailStatus {
	if r == DiscoveryVerified {
		return EmailVerified
	}
	return EmailFound
}

// DiscoveryLogEntry is an immutable audit record of one email-discovery
// attempt. Entries are never updated or deleted.
type DiscoveryLogEntry struct {
	ID        int64           `json:"id" db:"id"`
	ContactID int64           `json:"contact_id" db:"contact_id"`
	Step      string          `json:"step" db:"step"`
	Result    DiscoveryResult `json:"result" db:"result"`
	Detail    string          `json:"detail" db:"detail"`
	Email     string          `json:"email,omitempty" db:"email"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// BounceEvent records one bounce counted against a contact. Daily bounce
// stats are derived from these rows.
type BounceEvent struct {
	ID        int64     `json:"id" db:"id"`
	ContactID int64     `json:"contact_id" db:"contact_id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
