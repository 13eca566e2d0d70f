package event

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "snapcal/internal/log"
	"snapcal/internal/model"
)

// MergeFile appends events to the ICS file at path, creating it when
// absent. Events whose (summary, DTSTART) pair already appears in the file
// are skipped, so re-running an extraction against the same export target
// does not duplicate entries. Returns how many events were actually added.
//
// Dedup is best-effort: it compares the raw property values this
// serializer would emit, which is exact for files snapcal wrote itself and
// approximate for hand-edited ones.
func (s *Serializer) MergeFile(path string, events []model.MaterializedEvent) (int, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if len(events) == 0 {
				return 0, nil
			}
			return len(events), os.WriteFile(path, []byte(s.Calendar(events)), 0o644)
		}
		return 0, err
	}

	existing, err := existingEventKeys(body)
	if err != nil {
		return 0, err
	}

	fresh := make([]model.MaterializedEvent, 0, len(events))
	for _, ev := range events {
		if existing[s.dedupKey(ev)] {
			appLog.Debug("merge export: skipping duplicate event", "title", ev.Title)
			continue
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	text := string(body)
	idx := strings.LastIndex(text, "END:VCALENDAR")
	if idx < 0 {
		return 0, errors.New("merge export: target file has no END:VCALENDAR")
	}

	var b strings.Builder
	b.WriteString(text[:idx])
	for _, ev := range fresh {
		s.writeVEvent(&b, ev)
	}
	b.WriteString(text[idx:])

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// existingEventKeys parses an ICS body and collects summary|dtstart keys
// for every VEVENT.
func existingEventKeys(body []byte) (map[string]bool, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool)
	for _, ve := range cal.Events() {
		var summary, start string
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			summary = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
			start = p.Value
		}
		keys[summary+"|"+start] = true
	}
	return keys, nil
}

// dedupKey mirrors the raw SUMMARY and DTSTART values writeVEvent emits.
func (s *Serializer) dedupKey(ev model.MaterializedEvent) string {
	start := ev.Start.UTC().Format(icsDateTimeUTC)
	if ev.AllDay {
		start = ev.Start.Format(icsDateLayout)
	}
	return escapeText(ev.Title) + "|" + start
}
