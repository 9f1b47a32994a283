package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemNowUTC(t *testing.T) {
	t.Parallel()
	before := time.Now().Add(-time.Second)
	got := System{}.Now()
	require.Equal(t, time.UTC, got.Location())
	require.WithinDuration(t, before, got, 2*time.Second)
}

func TestManualSteps(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start, time.Second)

	require.Equal(t, start, m.Now())
	require.Equal(t, start.Add(time.Second), m.Now())

	m.Advance(time.Hour)
	require.Equal(t, start.Add(time.Hour+2*time.Second), m.Now())
}
