package domain

import "time"

// TrackingToken binds an opaque identifier 1:1 to a sent bundle.
type TrackingToken struct {
	TrackingID string    `json:"tracking_id" db:"tracking_id"`
	BundleID   int64     `json:"bundle_id" db:"bundle_id"`
	IssuedAt   time.Time `json:"issued_at" db:"issued_at"`
}

// OpenEvent is one tracking-pixel hit. Append-only.
type OpenEvent struct {
	ID         int64     `json:"id" db:"id"`
	TrackingID string    `json:"tracking_id" db:"tracking_id"`
	BundleID   int64     `json:"bundle_id" db:"bundle_id"`
	IP         string    `json:"ip" db:"ip"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
}

// OpenAggregate is the cached open summary recomputed on every open.
type OpenAggregate struct {
	BundleID      int64      `json:"bundle_id"`
	OpenCount     int        `json:"open_count"`
	FirstOpenedAt *time.Time `json:"first_opened_at"`
	FirstOpen     bool       `json:"first_open"`
}
