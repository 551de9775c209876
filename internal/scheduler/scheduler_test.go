package scheduler

import (
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBoundaryAlignsToStagger(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 47, 0, 0, time.UTC)
	next := NextBoundary(now, 20*time.Minute)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 13*time.Minute, NextDelay(now, 20*time.Minute))
}

func TestNextBoundaryMidInterval(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 5, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 20, 0, 0, time.UTC), NextBoundary(now, 20*time.Minute))
}

func TestNextBoundaryOnBoundaryWaitsFullInterval(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 40, 0, 0, time.UTC)
	assert.Equal(t, 20*time.Minute, NextDelay(now, 20*time.Minute))
}

func TestNextBoundaryDayRollover(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 47, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), NextBoundary(now, 20*time.Minute))
}

func TestNextBoundaryStaggerNotDividingDay(t *testing.T) {
	// 7 minutes does not divide 24h; the grid restarts at midnight
	now := time.Date(2024, 6, 3, 23, 58, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), NextBoundary(now, 7*time.Minute))
}

func TestNextDelayAlwaysInRange(t *testing.T) {
	stagger := 20 * time.Minute
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for s := 0; s < 24*60*60; s += 37 {
		now := start.Add(time.Duration(s) * time.Second)
		d := NextDelay(now, stagger)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, stagger)
		next := now.Add(d)
		assert.Zero(t, next.Minute()%20, "next start %s off grid", next)
		assert.Zero(t, next.Second())
	}
}

func TestNextBoundaryNonPositiveStagger(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 47, 0, 0, time.UTC)
	assert.Equal(t, now, NextBoundary(now, 0))
}

func TestNextBoundaryAfterHalfHourDSTShift(t *testing.T) {
	// Lord Howe moves its clocks by 30 minutes, which is not a multiple of 20
	loc, err := time.LoadLocation("Australia/Lord_Howe")
	require.NoError(t, err)
	now := time.Date(2024, 10, 6, 9, 47, 0, 0, loc)
	next := NextBoundary(now, 20*time.Minute)
	assert.Equal(t, 10, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 13*time.Minute, next.Sub(now))
}

func TestNextBoundaryFollowsWallClockAfterSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, 3, 10, 9, 10, 0, 0, loc)
	next := NextBoundary(now, 45*time.Minute)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 45, 0, 0, loc), next)
}

func TestNextBoundaryMovesForwardWhenClocksFallBack(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// second pass through 01:05, after clocks went back from 02:00 EDT to 01:00 EST
	now := time.Date(2024, 11, 3, 6, 5, 0, 0, time.UTC).In(loc)
	require.Equal(t, 1, now.Hour())
	next := NextBoundary(now, 20*time.Minute)
	assert.True(t, next.After(now))
	assert.Equal(t, 15*time.Minute, next.Sub(now))
	assert.Equal(t, 20, next.Minute())
}
