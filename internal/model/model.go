package model

import "time"

// RawTemporal is a date/time string as emitted by the vision model. It
// carries no guarantee of parseability until passed through
// temporal.Normalize.
type RawTemporal string

// EventRecord is the canonical event shape after decoding, regardless of
// which field-naming scheme the model used. Start/End are still raw model
// text; validation happens at materialization time.
type EventRecord struct {
	Title    string
	Location string
	Notes    string
	Start    RawTemporal
	End      RawTemporal
	AllDay   bool
}

// CanonicalInstant is a normalized decomposed calendar value. When HasTime
// is false the value is date-granular: Hour/Minute/Second are zero and the
// instant implies all-day semantics for its side of the event.
//
// Loc is non-nil only when the source text carried an explicit UTC/offset
// designator. Projection to an absolute instant needs a reference location
// from the caller for the naive case.
type CanonicalInstant struct {
	Year  int
	Month time.Month
	Day   int

	Hour    int
	Minute  int
	Second  int
	HasTime bool

	Loc *time.Location
}

// DateOnly returns a copy with the time-of-day and zone dropped.
func (c CanonicalInstant) DateOnly() CanonicalInstant {
	return CanonicalInstant{Year: c.Year, Month: c.Month, Day: c.Day}
}

// In projects the instant into absolute time. The instant's own explicit
// zone wins over ref; a nil ref falls back to time.Local.
func (c CanonicalInstant) In(ref *time.Location) time.Time {
	loc := c.Loc
	if loc == nil {
		loc = ref
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, loc)
}

// MaterializedEvent is a fully resolved event ready for ICS export or a
// store write. End is always strictly after Start; the materializer
// enforces this with its default-duration fallback. Immutable by
// convention once constructed.
type MaterializedEvent struct {
	Title    string
	Location string
	Notes    string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// WriteFailure records one failed store write within a batch.
type WriteFailure struct {
	Index int
	Err   error
}

// BatchOutcome aggregates the result of writing a batch of events.
// Failures preserves input order.
type BatchOutcome struct {
	SuccessCount int
	FailureCount int
	Failures     []WriteFailure
}

// BatchClass is the user-facing classification of a batch outcome.
type BatchClass int

const (
	BatchAllSucceeded BatchClass = iota
	BatchPartialSuccess
	BatchTotalFailure
)

func (c BatchClass) String() string {
	switch c {
	case BatchAllSucceeded:
		return "all_succeeded"
	case BatchPartialSuccess:
		return "partial_success"
	default:
		return "total_failure"
	}
}

// Classify reduces the counts to the three-way outcome that drives
// user-facing messaging. An empty batch counts as all-succeeded.
func (o BatchOutcome) Classify() BatchClass {
	switch {
	case o.FailureCount == 0:
		return BatchAllSucceeded
	case o.SuccessCount > 0:
		return BatchPartialSuccess
	default:
		return BatchTotalFailure
	}
}
