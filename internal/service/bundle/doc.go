// Package bundle implements the outreach bundle state machine:
//
//	queued -> approved -> sent -> {bounced | replied}
//	queued | approved -> cancelled
//	approved(email_sent) | sent -> bounced
//
// All operations on a contact's bundles are serialized by a per-contact
// lock (ContactLockKey). Storage backs the lock with a partial unique
// index allowing at most one queued-or-approved bundle per contact.
package bundle
