package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcal/internal/event"
	"snapcal/internal/extract"
)

// stubDescriber returns canned model output.
type stubDescriber struct {
	text string
	err  error

	gotInstruction string
	gotMime        string
}

func (s *stubDescriber) Describe(_ context.Context, instruction string, _ []byte, mimeType string) (string, error) {
	s.gotInstruction = instruction
	s.gotMime = mimeType
	return s.text, s.err
}

func newTestPipeline(d *stubDescriber) *Pipeline {
	return New(d, "", time.UTC, event.DefaultPolicy())
}

func TestRun_FencedModelOutput(t *testing.T) {
	d := &stubDescriber{text: "Here you go:\n```json\n" +
		`[{"title":"Gig","location":"Club","start_datetime":"2025-06-01T19:00:00"}]` +
		"\n```"}

	res, err := newTestPipeline(d).Run(context.Background(), []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, "Gig", ev.Title)
	assert.Equal(t, time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC), ev.End)
	assert.Equal(t, "image/jpeg", d.gotMime)
}

func TestRun_InferenceErrorPropagates(t *testing.T) {
	boom := errors.New("model down")
	d := &stubDescriber{err: boom}

	_, err := newTestPipeline(d).Run(context.Background(), []byte{0xFF}, "image/jpeg")
	require.ErrorIs(t, err, boom)
}

func TestFromText_ProseYieldsNoJSONFound(t *testing.T) {
	_, err := newTestPipeline(nil).FromText("I see a cat. No events here.")
	require.ErrorIs(t, err, extract.ErrNoJSONFound)
}

func TestFromText_SyntaxErrorIsDistinct(t *testing.T) {
	_, err := newTestPipeline(nil).FromText(`[{"title": "broken"`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, extract.ErrNoJSONFound)
	assert.NotErrorIs(t, err, extract.ErrNoEventsFound)
}

func TestFromText_AllRecordsDroppedYieldsNoEventsFound(t *testing.T) {
	res, err := newTestPipeline(nil).FromText(`[{"title":"Bad","start_datetime":"???"}]`)
	require.ErrorIs(t, err, extract.ErrNoEventsFound)
	assert.Len(t, res.Dropped, 1)
}

func TestFromText_EmptyArrayYieldsNoEventsFound(t *testing.T) {
	_, err := newTestPipeline(nil).FromText(`[]`)
	require.ErrorIs(t, err, extract.ErrNoEventsFound)
}

func TestFromText_PartialDropKeepsRest(t *testing.T) {
	res, err := newTestPipeline(nil).FromText(`[
		{"title":"Good","start_date":"2025-06-01"},
		{"location":"no title"},
		{"title":"Bad start","start_datetime":"???"}
	]`)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Good", res.Events[0].Title)
	assert.True(t, res.Events[0].AllDay)
	assert.Len(t, res.Dropped, 2)
}

func TestFromText_BareObjectRuns(t *testing.T) {
	res, err := newTestPipeline(nil).FromText(`{"title":"Solo","start_date":"2025-06-01"}`)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), res.Events[0].End,
		"date-scheme record is all-day with exclusive end")
}

func TestMimeTypeForPath(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeTypeForPath("flyer.JPG"))
	assert.Equal(t, "image/png", MimeTypeForPath("shot.png"))
	assert.Equal(t, "image/webp", MimeTypeForPath("a.webp"))
	assert.Equal(t, "", MimeTypeForPath("notes.txt"))
}
