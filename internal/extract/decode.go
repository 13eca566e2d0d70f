package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"snapcal/internal/model"
)

// ErrMissingTitle fails a single array element whose title is absent or
// blank after trimming. Other elements keep decoding.
var ErrMissingTitle = errors.New("event has no title")

// wireEvent accepts both field-naming schemes observed from the model:
// start_date/end_date (date-only semantics) and start_datetime/end_datetime
// (full timestamp semantics). Notes may arrive as either "description" or
// "notes".
type wireEvent struct {
	Title       string `json:"title"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Notes       string `json:"notes"`

	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime"`

	AllDay *bool `json:"all_day"`
}

// Result is the per-element outcome of decoding one array entry. Exactly
// one of Record/Err is meaningful.
type Result struct {
	Record model.EventRecord
	Err    error
}

// Decode decodes array-shaped JSON text into per-element results. A decode
// failure on one element does not abort the others; JSON syntax failure of
// the array itself does, and is returned wrapped so callers can tell it
// apart from ErrNoEventsFound.
//
// The caller owns the "zero valid records" policy: an all-failed (or
// empty) result slice must be reported as ErrNoEventsFound.
func Decode(jsonArrayText string) ([]Result, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(jsonArrayText), &elems); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}

	results := make([]Result, 0, len(elems))
	for i, el := range elems {
		rec, err := decodeElement(el)
		if err != nil {
			results = append(results, Result{Err: fmt.Errorf("event %d: %w", i, err)})
			continue
		}
		results = append(results, Result{Record: rec})
	}
	return results, nil
}

func decodeElement(raw json.RawMessage) (model.EventRecord, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.EventRecord{}, err
	}

	title := strings.TrimSpace(w.Title)
	if title == "" {
		return model.EventRecord{}, ErrMissingTitle
	}

	rec := model.EventRecord{
		Title:    title,
		Location: strings.TrimSpace(w.Location),
	}

	rec.Notes = strings.TrimSpace(w.Description)
	if rec.Notes == "" {
		rec.Notes = strings.TrimSpace(w.Notes)
	}

	// Timestamp-scheme fields win over date-scheme fields when both are
	// present; the scheme only matters for all-day inference below.
	dateOnlyScheme := false
	switch {
	case w.StartDateTime != "":
		rec.Start = model.RawTemporal(strings.TrimSpace(w.StartDateTime))
	case w.StartDate != "":
		rec.Start = model.RawTemporal(strings.TrimSpace(w.StartDate))
		dateOnlyScheme = true
	}
	switch {
	case w.EndDateTime != "":
		rec.End = model.RawTemporal(strings.TrimSpace(w.EndDateTime))
		dateOnlyScheme = false
	case w.EndDate != "":
		rec.End = model.RawTemporal(strings.TrimSpace(w.EndDate))
	}

	// Explicit all_day wins; otherwise a pure date-only scheme implies an
	// all-day event.
	if w.AllDay != nil {
		rec.AllDay = *w.AllDay
	} else {
		rec.AllDay = dateOnlyScheme
	}

	return rec, nil
}
