package event

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"snapcal/internal/model"
)

// RFC5545 value layouts.
const (
	icsDateLayout    = "20060102"
	icsDateTimeUTC   = "20060102T150405Z"
	icsLineEnding    = "\r\n"
	icsProdID        = "-//snapcal//snapcal//EN"
	icsUIDDomainPart = "@snapcal"
)

// Serializer emits RFC5545 text for materialized events. Now and NewUID
// are injection points so tests can pin DTSTAMP and UID; the zero-value
// fields fall back to the real clock and random UUIDs.
type Serializer struct {
	Now    func() time.Time
	NewUID func() string
}

// NewSerializer returns a Serializer with real clock and UUID sources.
func NewSerializer() *Serializer {
	return &Serializer{
		Now: time.Now,
		NewUID: func() string {
			return uuid.NewString() + icsUIDDomainPart
		},
	}
}

// Calendar serializes events into one VCALENDAR block with one VEVENT per
// event. Each call generates fresh UIDs and a fresh UTC DTSTAMP. The
// output is the compatibility surface consumed unmodified by calendar
// importers.
func (s *Serializer) Calendar(events []model.MaterializedEvent) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR" + icsLineEnding)
	b.WriteString("VERSION:2.0" + icsLineEnding)
	b.WriteString("PRODID:" + icsProdID + icsLineEnding)
	for _, ev := range events {
		s.writeVEvent(&b, ev)
	}
	b.WriteString("END:VCALENDAR" + icsLineEnding)
	return b.String()
}

// Single serializes one event as a standalone VCALENDAR.
func (s *Serializer) Single(ev model.MaterializedEvent) string {
	return s.Calendar([]model.MaterializedEvent{ev})
}

func (s *Serializer) writeVEvent(b *strings.Builder, ev model.MaterializedEvent) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	newUID := func() string { return uuid.NewString() + icsUIDDomainPart }
	if s.NewUID != nil {
		newUID = s.NewUID
	}

	b.WriteString("BEGIN:VEVENT" + icsLineEnding)
	b.WriteString("UID:" + newUID() + icsLineEnding)
	b.WriteString("DTSTAMP:" + now().UTC().Format(icsDateTimeUTC) + icsLineEnding)

	if ev.AllDay {
		b.WriteString("DTSTART;VALUE=DATE:" + ev.Start.Format(icsDateLayout) + icsLineEnding)
		b.WriteString("DTEND;VALUE=DATE:" + ev.End.Format(icsDateLayout) + icsLineEnding)
	} else {
		b.WriteString("DTSTART:" + ev.Start.UTC().Format(icsDateTimeUTC) + icsLineEnding)
		b.WriteString("DTEND:" + ev.End.UTC().Format(icsDateTimeUTC) + icsLineEnding)
	}

	if ev.Title != "" {
		b.WriteString("SUMMARY:" + escapeText(ev.Title) + icsLineEnding)
	}
	if ev.Location != "" {
		b.WriteString("LOCATION:" + escapeText(ev.Location) + icsLineEnding)
	}
	if ev.Notes != "" {
		b.WriteString("DESCRIPTION:" + escapeText(ev.Notes) + icsLineEnding)
	}
	b.WriteString("END:VEVENT" + icsLineEnding)
}

// escapeText applies RFC5545 TEXT escaping: backslash, semicolon and comma
// are backslash-escaped, and newlines become the literal two-character
// sequence \n.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}
