package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*60*60)

func TestTodayIsLocalCalendarDay(t *testing.T) {
	now := time.Date(2024, 3, 5, 1, 30, 0, 0, wib)

	w := Today(now)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, wib), w.From)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, wib), w.To)
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.To))
}

func TestLastSpansWholeDays(t *testing.T) {
	now := time.Date(2024, 3, 5, 13, 0, 0, 0, wib)

	w := Last(now, 7)
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, wib), w.From)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, wib), w.To)
}

func TestParseWindowDateBoundsAreInclusive(t *testing.T) {
	now := time.Date(2024, 3, 5, 13, 0, 0, 0, wib)

	w, err := ParseWindow("2024-03-01", "2024-03-03", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, wib), w.From)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, wib), w.To)
}

func TestParseWindowRejectsInvertedRange(t *testing.T) {
	now := time.Date(2024, 3, 5, 13, 0, 0, 0, wib)

	_, err := ParseWindow("2024-03-05", "2024-03-01", now)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseWindow("yesterday", "", now)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseWindowLoneToCoversThatDay(t *testing.T) {
	now := time.Date(2024, 3, 5, 13, 0, 0, 0, wib)

	w, err := ParseWindow("", "2024-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, wib), w.From)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, wib), w.To)

	w, err = ParseWindow("", "2024-03-02T00:00:00+07:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, wib).UnixMilli(), w.From.UnixMilli())
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, wib).UnixMilli(), w.To.UnixMilli())
}
