package domain

import "time"

// SendResult is what a send adapter reports for one delivery attempt.
type SendResult struct {
	Success   bool   `json:"success"`
	Permanent bool   `json:"permanent"`
	SMTPCode  int    `json:"smtp_code"`
	SMTPText  string `json:"smtp_text"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PermanentSMTPCode reports whether an SMTP reply code means the recipient
// will never accept the message (5xx).
func PermanentSMTPCode(code int) bool {
	return code >= 500 && code < 600
}

// SendLogEntry is an immutable per-attempt record of transport outcome.
type SendLogEntry struct {
	ID         int64     `json:"id" db:"id"`
	BundleID   int64     `json:"bundle_id" db:"bundle_id"`
	FollowUpID *int64    `json:"follow_up_id,omitempty" db:"follow_up_id"`
	Recipient  string    `json:"recipient" db:"recipient"`
	Success    bool      `json:"success" db:"success"`
	Permanent  bool      `json:"permanent" db:"permanent"`
	SMTPCode   int       `json:"smtp_response_code" db:"smtp_response_code"`
	SMTPText   string    `json:"smtp_response_text" db:"smtp_response_text"`
	Error      string    `json:"error,omitempty" db:"error"`
	MessageID  string    `json:"message_id,omitempty" db:"message_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewSendLogEntry builds the log row for a result.
func NewSendLogEntry(bundleID int64, recipient string, r SendResult) SendLogEntry {
	return SendLogEntry{
		BundleID:  bundleID,
		Recipient: recipient,
		Success:   r.Success,
		Permanent: r.Permanent,
		SMTPCode:  r.SMTPCode,
		SMTPText:  r.SMTPText,
		Error:     r.Error,
		MessageID: r.MessageID,
	}
}

// OutboundMessage is the fully rendered message handed to a send adapter.
type OutboundMessage struct {
	Recipient string
	Subject   string
	TextBody  string
	HTMLBody  string
	Tags      map[string]string
}
