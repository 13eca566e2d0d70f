// Package event turns validated event records into concrete calendar
// events and serializes them to RFC5545 text.
package event

import (
	"errors"
	"fmt"
	"time"

	"snapcal/internal/model"
	"snapcal/internal/temporal"
)

// ErrUnparsableStart fails materialization of a record whose start text
// matched no known date/time format. An event with no usable start instant
// cannot exist; the caller drops the record from the batch.
var ErrUnparsableStart = errors.New("start date/time is not parseable")

// Policy holds the materialization business-policy constants. They are
// configuration, not parsing behavior: alternate calendar conventions swap
// these without touching normalization.
type Policy struct {
	// DefaultDuration is the end fallback for timed events whose end is
	// absent or unparsable, and the repair span for degenerate timed
	// intervals.
	DefaultDuration time.Duration
	// AllDaySpanDays is the exclusive-end offset for all-day events:
	// calendar convention stores the end as the day after the last
	// inclusive day.
	AllDaySpanDays int
}

// DefaultPolicy is one hour for timed events and one day for all-day.
func DefaultPolicy() Policy {
	return Policy{DefaultDuration: time.Hour, AllDaySpanDays: 1}
}

func (p Policy) normalized() Policy {
	if p.DefaultDuration <= 0 {
		p.DefaultDuration = time.Hour
	}
	if p.AllDaySpanDays <= 0 {
		p.AllDaySpanDays = 1
	}
	return p
}

// Materialize resolves a record into an immutable MaterializedEvent with
// absolute start/end instants. Naive date/times resolve in loc; when
// exactly one of start/end carries an explicit offset, that offset is
// authoritative for both sides. Pure transform, no side effects.
//
// The returned event always satisfies End.After(Start).
func Materialize(rec model.EventRecord, loc *time.Location, pol Policy) (model.MaterializedEvent, error) {
	pol = pol.normalized()
	if loc == nil {
		loc = time.Local
	}

	start, ok := temporal.Normalize(string(rec.Start))
	if !ok {
		return model.MaterializedEvent{}, fmt.Errorf("%w: %q", ErrUnparsableStart, rec.Start)
	}
	end, endOK := temporal.Normalize(string(rec.End))

	out := model.MaterializedEvent{
		Title:    rec.Title,
		Location: rec.Location,
		Notes:    rec.Notes,
		AllDay:   rec.AllDay,
	}

	if rec.AllDay {
		// All-day events are date-granular: drop time-of-day on both
		// sides and store an exclusive end date.
		out.Start = start.DateOnly().In(loc)
		if endOK {
			out.End = end.DateOnly().In(loc).AddDate(0, 0, pol.AllDaySpanDays)
		} else {
			out.End = out.Start.AddDate(0, 0, pol.AllDaySpanDays)
		}
		if !out.End.After(out.Start) {
			out.End = out.Start.AddDate(0, 0, pol.AllDaySpanDays)
		}
		return out, nil
	}

	startRef, endRef := loc, loc
	if start.Loc == nil && end.Loc != nil {
		startRef = end.Loc
	}
	if end.Loc == nil && start.Loc != nil {
		endRef = start.Loc
	}

	out.Start = start.In(startRef)
	if endOK {
		out.End = end.In(endRef)
	} else {
		out.End = out.Start.Add(pol.DefaultDuration)
	}
	if !out.End.After(out.Start) {
		out.End = out.Start.Add(pol.DefaultDuration)
	}
	return out, nil
}

// MaterializeAll resolves each record independently, collecting per-record
// failures instead of aborting: a bad record drops out of the batch while
// the rest materialize.
func MaterializeAll(recs []model.EventRecord, loc *time.Location, pol Policy) ([]model.MaterializedEvent, []error) {
	events := make([]model.MaterializedEvent, 0, len(recs))
	var errs []error
	for _, rec := range recs {
		ev, err := Materialize(rec, loc, pol)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Title, err))
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}
