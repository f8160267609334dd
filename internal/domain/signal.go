package domain

import "time"

// SignalStatus enumerates the review states of a news signal.
type SignalStatus string

const (
	SignalNew       SignalStatus = "new"
	SignalReviewed  SignalStatus = "reviewed"
	SignalPromoted  SignalStatus = "promoted"
	SignalDismissed SignalStatus = "dismissed"
)

// NewsSignal is an externally observed event that may become a lead.
type NewsSignal struct {
	ID          int64        `json:"id" db:"id"`
	SourceURL   string       `json:"source_url" db:"source_url"`
	Source      string       `json:"source" db:"source"`
	SignalType  string       `json:"signal_type" db:"signal_type"`
	Headline    string       `json:"headline" db:"headline"`
	Snippet     string       `json:"snippet" db:"snippet"`
	CompanyName string       `json:"company_name" db:"company_name"`
	City        string       `json:"city" db:"city"`
	PublishedAt *time.Time   `json:"published_at,omitempty" db:"published_at"`
	ContactID   *int64       `json:"contact_id,omitempty" db:"contact_id"`
	Status      SignalStatus `json:"status" db:"status"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}
