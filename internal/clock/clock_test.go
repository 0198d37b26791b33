package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClockAdvances(t *testing.T) {
	start := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	clk := NewFixed(start)

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	clk.Set(start)
	assert.Equal(t, start, clk.Now())
	assert.Equal(t, time.UTC, clk.Location())
}

func TestLoadLocationFallsBackToWIB(t *testing.T) {
	loc := LoadLocation("Nowhere/Atlantis")
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 7*60*60, offset)
}

func TestSystemClockUsesLocation(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	clk := NewSystem(wib)
	assert.Equal(t, wib, clk.Location())
	assert.Equal(t, wib, clk.Now().Location())
}
