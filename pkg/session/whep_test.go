package session

import (
	"testing"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
)

type fakePLIScheduler struct {
	ticks   int
	records int
}

func (f *fakePLIScheduler) Tick(time.Time)       { f.ticks++ }
func (f *fakePLIScheduler) RecordFrame(time.Time) { f.records++ }

func TestWHEPUpdateWithEmptyEndpointSignalsBadPath(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)

	s.Update(host.Settings{})

	if got := h.last(); got != netsig.StopBadPath {
		t.Fatalf("expected BAD_PATH signal, got %v", got)
	}
}

func TestWHEPDestroyWithoutStartIsNoop(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)

	s.Destroy()
	s.Destroy()

	if got := h.count(); got != 0 {
		t.Fatalf("expected no stop signal when never started, got %d signals", got)
	}
}

func TestWHEPDestroyDuringRunSignalsSuccessOnlyOnce(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)

	s.running.Store(true)

	s.Destroy()
	s.Destroy()

	if got := h.count(); got != 1 {
		t.Fatalf("expected exactly one stop signal across repeated Destroy calls, got %d", got)
	}
	if got := h.last(); got != netsig.StopSuccess {
		t.Fatalf("expected SUCCESS signal, got %v", got)
	}
}

func TestWHEPSingleWorkerInvariant(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)

	// Update against an endpoint that fails fast (connection refused)
	// exercises join-prior-worker the same way whip_test.go does for
	// WHIPSession.Start.
	s.Update(host.Settings{EndpointURL: "http://127.0.0.1:1/whep"})
	time.Sleep(50 * time.Millisecond)
	s.Update(host.Settings{EndpointURL: "http://127.0.0.1:1/whep"})

	s.workerWG.Wait()
}

func TestWHEPVideoTickDrivesInjectedScheduler(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)
	sched := &fakePLIScheduler{}
	s.SetPLIScheduler(sched)

	s.VideoTick()
	s.VideoTick()

	if sched.ticks != 2 {
		t.Fatalf("expected 2 ticks forwarded to scheduler, got %d", sched.ticks)
	}
}

func TestWHEPVideoTickNoopWithoutScheduler(t *testing.T) {
	h := &fakeHost{}
	s := NewWHEPSession(testLogger(t), h)

	// Must not panic with no scheduler injected.
	s.VideoTick()
}
