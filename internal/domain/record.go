package domain

import "time"

// Kind names one of the two gridded archives.
type Kind string

const (
	KindSST Kind = "sst"
	KindDHW Kind = "dhw"
)

// Period distinguishes per-day records from per-month aggregates.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// RecordEvent announces a record that was just committed to the archive.
type RecordEvent struct {
	RunID       string    `json:"run_id"`
	Kind        Kind      `json:"kind"`
	Period      Period    `json:"period"`
	Key         string    `json:"key"` // YYYY-MM-DD or YYYY-MM
	Path        string    `json:"path"`
	Mean        *float64  `json:"mean,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// SeriesPoint is one row of a monthly scalar series.
type SeriesPoint struct {
	Month Month
	Value float64
}
