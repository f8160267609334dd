package domain

import (
	"slices"
	"strings"
	"time"
)

// Tier is the coarse market-segment classification of a contact.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
	TierE Tier = "E"
)

// Valid reports whether t is one of A-E.
func (t Tier) Valid() bool {
	switch t {
	case TierA, TierB, TierC, TierD, TierE:
		return true
	}
	return false
}

// AccountStatus is the CRM relationship state of a contact.
type AccountStatus string

const (
	AccountCold     AccountStatus = "cold"
	AccountWarm     AccountStatus = "warm"
	AccountActive   AccountStatus = "active"
	AccountCustomer AccountStatus = "customer"
	AccountLost     AccountStatus = "lost"
)

// accountTransitions lists the allowed account-status moves. lost is terminal.
var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountCold:     {AccountWarm, AccountActive, AccountLost},
	AccountWarm:     {AccountCold, AccountActive, AccountLost},
	AccountActive:   {AccountWarm, AccountCustomer, AccountLost},
	AccountCustomer: {AccountActive, AccountLost},
}

// CanTransition reports whether moving from s to next is allowed.
func (s AccountStatus) CanTransition(next AccountStatus) bool {
	return slices.Contains(accountTransitions[s], next)
}

// EmailStatus tracks confidence in the contact's discovered email.
type EmailStatus string

const (
	EmailPending       EmailStatus = "pending"
	EmailFound         EmailStatus = "found"
	EmailVerified      EmailStatus = "verified"
	EmailInvalid       EmailStatus = "invalid"
	EmailUndeliverable EmailStatus = "undeliverable"
)

// Rank orders email statuses by confidence. Discovery only ever moves a
// contact to a strictly higher rank.
func (s EmailStatus) Rank() int {
	switch s {
	case EmailVerified:
		return 2
	case EmailFound:
		return 1
	default:
		return 0
	}
}

// OutreachStatus tracks where a contact is in the outreach pipeline.
type OutreachStatus string

const (
	OutreachPending      OutreachStatus = "pending"
	OutreachQueued       OutreachStatus = "queued"
	OutreachSent         OutreachStatus = "sent"
	OutreachReplied      OutreachStatus = "replied"
	OutreachBounced      OutreachStatus = "bounced"
	OutreachUnsubscribed OutreachStatus = "unsubscribed"
)

// Contact is the canonical record of a prospect/account.
type Contact struct {
	ID          int64  `json:"id" db:"id"`
	CompanyName string `json:"company_name" db:"company_name"`
	ContactName string `json:"contact_name" db:"contact_name"`
	TitleRole   string `json:"title_role" db:"title_role"`
	Address     string `json:"address" db:"address"`
	City        string `json:"city" db:"city"`
	Province    string `json:"province" db:"province"`
	PostalCode  string `json:"postal_code" db:"postal_code"`
	Phone       string `json:"phone" db:"phone"`
	Website     string `json:"website" db:"website"`
	Domain      string `json:"domain" db:"domain"`
	Notes       string `json:"notes" db:"notes"`
	Source      string `json:"source" db:"source"`

	Tier          Tier   `json:"tier" db:"tier"`
	IndustryCode  string `json:"industry_code" db:"industry_code"`
	PriorityScore int    `json:"priority_score" db:"priority_score"`

	AccountStatus   AccountStatus  `json:"account_status" db:"account_status"`
	EmailStatus     EmailStatus    `json:"email_status" db:"email_status"`
	OutreachStatus  OutreachStatus `json:"outreach_status" db:"outreach_status"`
	DiscoveredEmail string         `json:"discovered_email" db:"discovered_email"`
	BounceCount     int            `json:"bounce_count" db:"bounce_count"`
	BouncedEmails   []string       `json:"bounced_emails" db:"bounced_emails"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true when no further bundles or follow-ups may be
// issued for the contact.
func (c *Contact) IsTerminal() bool {
	return c.OutreachStatus == OutreachBounced ||
		c.OutreachStatus == OutreachUnsubscribed ||
		c.AccountStatus == AccountLost
}

// HasBounced reports whether email previously bounced for this contact.
func (c *Contact) HasBounced(email string) bool {
	for _, e := range c.BouncedEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so callers can hand out contacts without
// sharing the bounced-address slice.
func (c *Contact) Clone() *Contact {
	cp := *c
	cp.BouncedEmails = slices.Clone(c.BouncedEmails)
	return &cp
}
