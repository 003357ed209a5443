package domain

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned when an operation targets a record id that
// does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Values for Record.Source distinguishing how a record was created.
const (
	SourceManual    = "manual"
	SourceCSVUpload = "csv_upload"
)

// RawRow is one unvalidated CSV data row, keyed by header column name.
type RawRow map[string]string

// Record is the normalized earthquake record persisted in the store.
// ID is assigned by the store at create time and never changes afterwards;
// every other field may be replaced by an update.
type Record struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
	Magnitude   float64   `json:"magnitude"`
	Location    string    `json:"location"`
	Depth       float64   `json:"depth"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Patch holds the mutable fields of a record for a partial update.
// Nil fields are left unchanged. Patching Date also rederives Timestamp.
type Patch struct {
	Date        *string  `json:"date,omitempty"`
	Magnitude   *float64 `json:"magnitude,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Depth       *float64 `json:"depth,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Date == nil && p.Magnitude == nil && p.Location == nil &&
		p.Depth == nil && p.Latitude == nil && p.Longitude == nil &&
		p.Description == nil
}

// ChangeType identifies a change-feed event kind.
type ChangeType string

// Change-feed event kinds emitted by the record table.
const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is one change-feed notification for the record table.
// For delete events only Record.ID is guaranteed to be populated.
type ChangeEvent struct {
	Type   ChangeType `json:"type"`
	Record Record     `json:"record"`
}
