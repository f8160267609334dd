// Package contact implements the contact lifecycle: creation and
// de-duplication, email discovery logging, bounce accounting, scoring and
// the account/outreach status machine.
//
// Every mutation is a read-modify-write executed by the repository's
// Mutate, so concurrent callers never lose updates. Reaching a terminal
// state (bounce threshold, unsubscribe, lost) fires Hooks.OnTerminal after
// the change is committed; the outreach engine wires it to cancel pending
// follow-ups and unresolved bundles.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package contact
