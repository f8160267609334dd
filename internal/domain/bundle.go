package domain

import "time"

// BundleStatus enumerates the lifecycle states of an outreach bundle.
type BundleStatus string

const (
	BundleQueued    BundleStatus = "queued"
	BundleApproved  BundleStatus = "approved"
	BundleSent      BundleStatus = "sent"
	BundleBounced   BundleStatus = "bounced"
	BundleReplied   BundleStatus = "replied"
	BundleCancelled BundleStatus = "cancelled"
)

// BatchDateLayout is the wire format of OutreachBundle.BatchDate and of
// every calendar date in the engine.
const BatchDateLayout = "2006-01-02"

// OutreachBundle is one drafted/sent outreach message for a contact.
type OutreachBundle struct {
	ID           int64        `json:"id" db:"id"`
	ContactID    int64        `json:"contact_id" db:"contact_id"`
	BatchDate    string       `json:"batch_date" db:"batch_date"`
	Subject      string       `json:"subject" db:"subject"`
	Body         string       `json:"body" db:"body"`
	TemplateName string       `json:"template_name" db:"template_name"`
	Status       BundleStatus `json:"status" db:"status"`
	Recipient    string       `json:"recipient" db:"recipient"`

	ApprovedAt *time.Time `json:"approved_at" db:"approved_at"`
	SentAt     *time.Time `json:"sent_at" db:"sent_at"`
	EmailSent  bool       `json:"email_sent" db:"email_sent"`

	OpenCount     int        `json:"open_count" db:"open_count"`
	FirstOpenedAt *time.Time `json:"first_opened_at" db:"first_opened_at"`

	ReplyType    string     `json:"reply_type" db:"reply_type"`
	ReplySnippet string     `json:"reply_snippet" db:"reply_snippet"`
	RepliedAt    *time.Time `json:"replied_at" db:"replied_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsUnresolved returns true while the bundle blocks drafting a new one.
func (b *OutreachBundle) IsUnresolved() bool {
	return b.Status == BundleQueued || b.Status == BundleApproved
}

// CanBounce reports whether a bounce may be attributed to this bundle:
// either it was sent, or it is approved and the transport accepted it.
func (b *OutreachBundle) CanBounce() bool {
	return b.Status == BundleSent || (b.Status == BundleApproved && b.EmailSent)
}

// Reply types recognised by the engine. Unknown types are stored verbatim.
const (
	ReplyInterested    = "interested"
	ReplyNotInterested = "not_interested"
	ReplyOutOfOffice   = "out_of_office"
	ReplyUnsubscribe   = "unsubscribe"
	ReplyOther         = "other"
)
