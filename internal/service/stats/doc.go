// Package stats maintains the daily roll-up. A DailyStat row is a pure
// projection of the source tables for its date: Recompute derives it from
// scratch and upserts it, so running it twice yields the same row.
package stats
