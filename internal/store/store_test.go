package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcal/internal/model"
)

// fakeStore records write attempts and fails at configured indexes.
type fakeStore struct {
	granted bool
	failAt  map[int]error
	writes  []string
}

func (f *fakeStore) RequestAccess(context.Context) (bool, error) {
	return f.granted, nil
}

func (f *fakeStore) Write(_ context.Context, ev model.MaterializedEvent, _ string) error {
	idx := len(f.writes)
	f.writes = append(f.writes, ev.Title)
	if err, ok := f.failAt[idx]; ok {
		return err
	}
	return nil
}

func testEvents(titles ...string) []model.MaterializedEvent {
	events := make([]model.MaterializedEvent, 0, len(titles))
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, title := range titles {
		events = append(events, model.MaterializedEvent{
			Title: title,
			Start: start.Add(time.Duration(i) * time.Hour),
			End:   start.Add(time.Duration(i+1) * time.Hour),
		})
	}
	return events
}

func TestWriteAll_AllSucceed(t *testing.T) {
	fs := &fakeStore{granted: true}
	out := WriteAll(context.Background(), fs, "cal", testEvents("a", "b", "c"))

	assert.Equal(t, 3, out.SuccessCount)
	assert.Equal(t, 0, out.FailureCount)
	assert.Empty(t, out.Failures)
	assert.Equal(t, model.BatchAllSucceeded, out.Classify())
}

func TestWriteAll_MiddleFailureDoesNotAbort(t *testing.T) {
	boom := errors.New("boom")
	fs := &fakeStore{granted: true, failAt: map[int]error{1: boom}}

	out := WriteAll(context.Background(), fs, "cal", testEvents("a", "b", "c"))

	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 1, out.Failures[0].Index)
	assert.ErrorIs(t, out.Failures[0].Err, boom)

	// All three writes were attempted, in order.
	assert.Equal(t, []string{"a", "b", "c"}, fs.writes)
	assert.Equal(t, model.BatchPartialSuccess, out.Classify())
}

func TestWriteAll_TotalFailure(t *testing.T) {
	boom := errors.New("down")
	fs := &fakeStore{granted: true, failAt: map[int]error{0: boom, 1: boom}}

	out := WriteAll(context.Background(), fs, "cal", testEvents("a", "b"))

	assert.Equal(t, 0, out.SuccessCount)
	assert.Equal(t, 2, out.FailureCount)
	assert.Equal(t, model.BatchTotalFailure, out.Classify())
}

func TestWriteAll_EmptyBatch(t *testing.T) {
	fs := &fakeStore{granted: true}
	out := WriteAll(context.Background(), fs, "cal", nil)

	assert.Zero(t, out.SuccessCount)
	assert.Zero(t, out.FailureCount)
	assert.Equal(t, model.BatchAllSucceeded, out.Classify())
}

func TestWriteAll_FailuresPreserveOrder(t *testing.T) {
	boom := errors.New("x")
	fs := &fakeStore{granted: true, failAt: map[int]error{0: boom, 2: boom}}

	out := WriteAll(context.Background(), fs, "cal", testEvents("a", "b", "c"))

	require.Len(t, out.Failures, 2)
	assert.Equal(t, 0, out.Failures[0].Index)
	assert.Equal(t, 2, out.Failures[1].Index)
}
