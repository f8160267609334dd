// Package followup schedules and dispatches the time-based follow-up
// touches that come after an initial send.
//
// Scheduling is serialized per contact (FollowUpLockKey) and backed by a
// unique (contact_id, sequence_number) constraint, so sequences stay
// contiguous from 1. Due is a lazy keyset-paged iterator; dispatch
// re-checks status under the contact lock and MarkDispatched is a
// conditional update, so a cancelled follow-up is never sent.
package followup
