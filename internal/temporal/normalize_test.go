package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_LocalDateTimeSeconds(t *testing.T) {
	ci, ok := Normalize("2025-06-01T09:30:00")
	require.True(t, ok)
	assert.Equal(t, 2025, ci.Year)
	assert.Equal(t, time.June, ci.Month)
	assert.Equal(t, 1, ci.Day)
	assert.Equal(t, 9, ci.Hour)
	assert.Equal(t, 30, ci.Minute)
	assert.Equal(t, 0, ci.Second)
	assert.True(t, ci.HasTime)
	assert.Nil(t, ci.Loc, "no explicit offset means no zone")
}

func TestNormalize_SpaceSeparator(t *testing.T) {
	ci, ok := Normalize("2025-06-01 09:30:00")
	require.True(t, ok)
	assert.True(t, ci.HasTime)
	assert.Equal(t, 9, ci.Hour)
}

func TestNormalize_DateOnly(t *testing.T) {
	ci, ok := Normalize("2025-06-01")
	require.True(t, ok)
	assert.Equal(t, 2025, ci.Year)
	assert.Equal(t, time.June, ci.Month)
	assert.Equal(t, 1, ci.Day)
	assert.False(t, ci.HasTime, "date-only populates no time components")
	assert.Nil(t, ci.Loc)
}

func TestNormalize_MinutesPrecision(t *testing.T) {
	ci, ok := Normalize("2025-06-01T09:30")
	require.True(t, ok)
	assert.True(t, ci.HasTime)
	assert.Equal(t, 30, ci.Minute)
	assert.Equal(t, 0, ci.Second, "seconds are zero-filled")
}

func TestNormalize_ExplicitUTC(t *testing.T) {
	ci, ok := Normalize("2025-06-01T09:30:00Z")
	require.True(t, ok)
	require.NotNil(t, ci.Loc)
	assert.Equal(t, time.UTC, ci.Loc)
}

func TestNormalize_ExplicitOffset(t *testing.T) {
	ci, ok := Normalize("2025-06-01T09:30:00+09:00")
	require.True(t, ok)
	require.NotNil(t, ci.Loc)

	_, offset := ci.In(nil).Zone()
	assert.Equal(t, 9*3600, offset)
}

func TestNormalize_NoMatch(t *testing.T) {
	for _, s := range []string{"not a date", "", "   ", "06/01/2025", "tomorrow"} {
		_, ok := Normalize(s)
		assert.False(t, ok, "input %q should not match", s)
	}
}

func TestNormalize_TrimsWhitespace(t *testing.T) {
	ci, ok := Normalize("  2025-06-01  ")
	require.True(t, ok)
	assert.Equal(t, 1, ci.Day)
}

func TestCanonicalInstant_InUsesReferenceForNaive(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	ci, ok := Normalize("2025-06-01T09:30:00")
	require.True(t, ok)

	got := ci.In(seoul)
	assert.Equal(t, seoul, got.Location())
	assert.Equal(t, 9, got.Hour())
}
