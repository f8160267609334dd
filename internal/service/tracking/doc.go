// Package tracking issues per-bundle tracking tokens and aggregates
// pixel opens. Open aggregation is serialized per bundle and the
// repository inserts the event and recomputes open_count/first_opened_at
// in one transaction, so concurrent opens are never lost.
package tracking
