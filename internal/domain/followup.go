package domain

import "time"

// FollowUpStatus enumerates the states of a scheduled follow-up touch.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpSent      FollowUpStatus = "sent"
	FollowUpSkipped   FollowUpStatus = "skipped"
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// FollowUp is one scheduled future touch in a contact's cadence.
type FollowUp struct {
	ID             int64          `json:"id" db:"id"`
	ContactID      int64          `json:"contact_id" db:"contact_id"`
	BundleID       *int64         `json:"bundle_id,omitempty" db:"bundle_id"`
	SequenceNumber int            `json:"sequence_number" db:"sequence_number"`
	ScheduledDate  time.Time      `json:"scheduled_date" db:"scheduled_date"`
	Status         FollowUpStatus `json:"status" db:"status"`
	SentAt         *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Date truncates t to midnight UTC. Scheduled dates are calendar dates.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(BatchDateLayout, s, time.UTC)
}
