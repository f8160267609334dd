// Package signal implements news-signal intake: idempotent ingestion keyed
// by normalized source URL, review, dismissal and promotion of a signal
// into a contact (matched or newly created from the signal-type policy).
package signal
