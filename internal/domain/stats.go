package domain

import "time"

// DailyStat is the derived daily roll-up. It is never edited by hand; it
// is regenerated from source tables for its date.
type DailyStat struct {
	StatDate        string    `json:"stat_date" db:"stat_date"`
	ContactsCreated int       `json:"contacts_created" db:"contacts_created"`
	EmailsFound     int       `json:"emails_found" db:"emails_found"`
	BundlesDrafted  int       `json:"bundles_drafted" db:"bundles_drafted"`
	BundlesApproved int       `json:"bundles_approved" db:"bundles_approved"`
	EmailsSent      int       `json:"emails_sent" db:"emails_sent"`
	SendFailures    int       `json:"send_failures" db:"send_failures"`
	Bounces         int       `json:"bounces" db:"bounces"`
	Opens           int       `json:"opens" db:"opens"`
	UniqueOpens     int       `json:"unique_opens" db:"unique_opens"`
	Replies         int       `json:"replies" db:"replies"`
	FollowUpsSent   int       `json:"followups_sent" db:"followups_sent"`
	SignalsIngested int       `json:"signals_ingested" db:"signals_ingested"`
	SignalsPromoted int       `json:"signals_promoted" db:"signals_promoted"`
	ComputedAt      time.Time `json:"computed_at" db:"computed_at"`
}
