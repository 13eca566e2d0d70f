// Package temporal normalizes the free-form date/time strings the model
// emits into canonical decomposed instants.
package temporal

import (
	"strings"
	"time"

	"snapcal/internal/model"
)

// candidate binds a time layout to the component set it populates.
type candidate struct {
	layout  string
	hasTime bool
	hasZone bool
}

// Candidates are tried in order; the first match wins. Order matters
// because some layouts are syntactic prefixes of others: the
// seconds-precision local forms come before the date-only form, which in
// turn comes before the minutes-precision forms, with offset-bearing
// RFC3339 forms last.
var candidates = []candidate{
	{layout: "2006-01-02T15:04:05", hasTime: true},
	{layout: "2006-01-02 15:04:05", hasTime: true},
	{layout: "2006-01-02", hasTime: false},
	{layout: "2006-01-02T15:04", hasTime: true},
	{layout: "2006-01-02 15:04", hasTime: true},
	{layout: time.RFC3339, hasTime: true, hasZone: true},
	{layout: "2006-01-02T15:04:05Z0700", hasTime: true, hasZone: true},
}

// Normalize parses text against the ordered candidate layouts. No match is
// not an error at this layer; the caller decides whether the field was
// mandatory. Time-bearing matches zero-fill missing seconds, so a returned
// instant with HasTime always carries a full {hour, minute, second} set.
func Normalize(text string) (model.CanonicalInstant, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return model.CanonicalInstant{}, false
	}

	for _, c := range candidates {
		t, err := time.Parse(c.layout, s)
		if err != nil {
			continue
		}

		ci := model.CanonicalInstant{
			Year:  t.Year(),
			Month: t.Month(),
			Day:   t.Day(),
		}
		if c.hasTime {
			ci.Hour, ci.Minute, ci.Second = t.Hour(), t.Minute(), t.Second()
			ci.HasTime = true
		}
		if c.hasZone {
			ci.Loc = t.Location()
		}
		return ci, true
	}
	return model.CanonicalInstant{}, false
}
