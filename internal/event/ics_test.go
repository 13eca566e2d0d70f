package event

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcal/internal/model"
)

func fixedSerializer() *Serializer {
	n := 0
	return &Serializer{
		Now: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
		NewUID: func() string {
			n++
			return "uid-" + string(rune('0'+n)) + "@snapcal"
		},
	}
}

func TestCalendar_TimedEvent(t *testing.T) {
	s := fixedSerializer()
	ev := model.MaterializedEvent{
		Title:    "Gig",
		Location: "Club",
		Notes:    "Doors 18:30",
		Start:    time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC),
	}

	out := s.Single(ev)

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Contains(t, out, "UID:uid-1@snapcal\r\n")
	assert.Contains(t, out, "DTSTAMP:20250601T120000Z\r\n")
	assert.Contains(t, out, "DTSTART:20250601T190000Z\r\n")
	assert.Contains(t, out, "DTEND:20250601T220000Z\r\n")
	assert.Contains(t, out, "SUMMARY:Gig\r\n")
	assert.Contains(t, out, "LOCATION:Club\r\n")
	assert.Contains(t, out, "DESCRIPTION:Doors 18:30\r\n")
}

func TestCalendar_AllDayUsesValueDate(t *testing.T) {
	s := fixedSerializer()
	ev := model.MaterializedEvent{
		Title:  "Fair",
		Start:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	}

	out := s.Single(ev)
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250601\r\n")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250602\r\n")
	assert.NotContains(t, out, "DTSTART:2025", "all-day must not emit a timed DTSTART")
}

func TestCalendar_OmitsEmptyFields(t *testing.T) {
	s := fixedSerializer()
	ev := model.MaterializedEvent{
		Title: "Bare",
		Start: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	out := s.Single(ev)
	assert.NotContains(t, out, "LOCATION")
	assert.NotContains(t, out, "DESCRIPTION")
}

func TestCalendar_EscapesDescriptionNewlines(t *testing.T) {
	s := fixedSerializer()
	ev := model.MaterializedEvent{
		Title: "Notes",
		Notes: "line one\nline two; with, punctuation",
		Start: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	out := s.Single(ev)
	assert.Contains(t, out, `DESCRIPTION:line one\nline two\; with\, punctuation`)
}

func TestCalendar_FreshUIDPerEvent(t *testing.T) {
	s := NewSerializer()
	ev := model.MaterializedEvent{
		Title: "Same",
		Start: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	out := s.Calendar([]model.MaterializedEvent{ev, ev})

	var uids []string
	for _, line := range strings.Split(out, "\r\n") {
		if strings.HasPrefix(line, "UID:") {
			uids = append(uids, line)
		}
	}
	require.Len(t, uids, 2)
	assert.NotEqual(t, uids[0], uids[1])
}

// Round-trip: re-parsing the emitted DTEND;VALUE=DATE and subtracting one
// day recovers the original inclusive end date.
func TestCalendar_AllDayRoundTrip(t *testing.T) {
	s := fixedSerializer()
	ev := model.MaterializedEvent{
		Title:  "Fair",
		Start:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), // exclusive; June 1 is the last inclusive day
		AllDay: true,
	}

	out := s.Single(ev)

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 1)

	dtEnd := cal.Events()[0].GetProperty(ical.ComponentPropertyDtEnd)
	require.NotNil(t, dtEnd)

	parsed, err := time.Parse("20060102", dtEnd.Value)
	require.NoError(t, err)

	inclusive := parsed.AddDate(0, 0, -1)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), inclusive)
}
