package ricod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIntervalTicks(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := NewIntervalTicks(anchor, 100, 12*time.Second)
	now := anchor.Add(-time.Minute)
	ticks.now = func() time.Time { return now }

	require.Equal(t, uint64(100), ticks.CurrentTick())

	now = anchor.Add(25 * time.Second)
	require.Equal(t, uint64(102), ticks.CurrentTick())

	// The clock stepping back never rewinds the tick.
	now = anchor.Add(5 * time.Second)
	require.Equal(t, uint64(102), ticks.CurrentTick())

	now = anchor.Add(time.Hour)
	require.Equal(t, uint64(400), ticks.CurrentTick())

	require.Equal(t, anchor, ticks.TimeOf(50))
	require.Equal(t, anchor.Add(36*time.Second), ticks.TimeOf(103))
}

func TestIntervalTicksDefaultsInterval(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := NewIntervalTicks(anchor, 0, 0)
	ticks.now = func() time.Time { return anchor.Add(90 * time.Second) }
	require.Equal(t, uint64(90), ticks.CurrentTick())
}
