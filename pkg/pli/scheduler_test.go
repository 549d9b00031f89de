package pli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateCapNeverExceedsOnePerInterval(t *testing.T) {
	var requests int
	s := NewScheduler(500*time.Millisecond, func() { requests++ })

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 20; i++ {
		s.Tick(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	require.LessOrEqual(t, requests, 1, "expected at most 1 pli within the interval")

	s.Tick(base.Add(600 * time.Millisecond))
	require.Equal(t, 2, requests, "expected a second pli once the interval elapsed")
}

func TestRecordFrameSuppressesPLI(t *testing.T) {
	var requests int
	s := NewScheduler(500*time.Millisecond, func() { requests++ })

	now := time.Unix(1_700_000_000, 0)
	s.RecordFrame(now)
	s.Tick(now.Add(100 * time.Millisecond))

	require.Zero(t, requests, "expected no pli while frames are flowing")
}
