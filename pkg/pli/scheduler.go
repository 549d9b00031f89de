// Package pli implements the keyframe-request scheduler: it watches
// for stalled video delivery and asks the remote for a fresh keyframe
// at most once per configured interval.
package pli

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const defaultInterval = 2 * time.Second

// Scheduler decides, once per call to Tick, whether to request a
// keyframe. It is driven externally (by the host's per-video-tick
// callback, per §4.5/§6.5) rather than by its own ticker, so it never
// issues a request faster than the configured interval even if Tick is
// called in a tight loop.
type Scheduler struct {
	interval time.Duration
	limiter  *rate.Limiter

	lastFrameNanos atomic.Int64
	lastPLINanos   atomic.Int64

	RequestKeyframe func()
}

func NewScheduler(interval time.Duration, requestKeyframe func()) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		interval:        interval,
		limiter:         rate.NewLimiter(rate.Every(interval), 1),
		RequestKeyframe: requestKeyframe,
	}
}

// RecordFrame marks that a video frame was just delivered, resetting
// the stall clock.
func (s *Scheduler) RecordFrame(now time.Time) {
	s.lastFrameNanos.Store(now.UnixNano())
}

// Tick is called once per host video tick. It requests a keyframe only
// when no frame has arrived within the interval AND the rate limiter
// still has budget — the two checks together bound PLI issuance to at
// most one per interval even under back-to-back ticks.
func (s *Scheduler) Tick(now time.Time) {
	last := s.lastFrameNanos.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.interval {
		return
	}
	if !s.limiter.AllowN(now, 1) {
		return
	}
	s.lastPLINanos.Store(now.UnixNano())
	if s.RequestKeyframe != nil {
		s.RequestKeyframe()
	}
}

// LastRequestInstant returns the wall-clock time of the last issued
// PLI, or the zero time if none has been issued yet.
func (s *Scheduler) LastRequestInstant() time.Time {
	n := s.lastPLINanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
