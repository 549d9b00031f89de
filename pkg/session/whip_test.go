package session

import (
	"sync"
	"testing"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
)

type fakeHost struct {
	mu      sync.Mutex
	reasons []netsig.StopReason
}

func (f *fakeHost) SignalStop(reason netsig.StopReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func (f *fakeHost) last() netsig.StopReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reasons) == 0 {
		return netsig.StopReason(-1)
	}
	return f.reasons[len(f.reasons)-1]
}

func (f *fakeHost) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New("test", logging.NewConfig())
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return l
}

func TestWHIPStartWithEmptyEndpointSignalsBadPath(t *testing.T) {
	h := &fakeHost{}
	s := NewWHIPSession(testLogger(t), h)

	s.Start(host.Settings{})

	if got := h.last(); got != netsig.StopBadPath {
		t.Fatalf("expected BAD_PATH signal, got %v", got)
	}
}

func TestWHIPDoubleStopIdempotent(t *testing.T) {
	h := &fakeHost{}
	s := NewWHIPSession(testLogger(t), h)

	// Never started, so the session was never running: Stop should
	// not report success at all (wasRunning is false both times).
	s.Stop(true)
	s.Stop(true)

	if got := h.count(); got != 0 {
		t.Fatalf("expected no stop signal when never started, got %d signals", got)
	}
}

func TestWHIPStopDuringRunSignalsSuccessOnlyOnce(t *testing.T) {
	h := &fakeHost{}
	s := NewWHIPSession(testLogger(t), h)

	// Simulate a running session without a real negotiated connection.
	s.running.Store(true)

	s.Stop(true)
	s.Stop(true)

	if got := h.count(); got != 1 {
		t.Fatalf("expected exactly one stop signal across repeated Stop calls, got %d", got)
	}
	if got := h.last(); got != netsig.StopSuccess {
		t.Fatalf("expected SUCCESS signal, got %v", got)
	}
}

func TestWHIPSingleWorkerInvariant(t *testing.T) {
	h := &fakeHost{}
	s := NewWHIPSession(testLogger(t), h)

	// Start against an endpoint that will fail fast (connection
	// refused) to exercise join-prior-worker without real negotiation.
	s.Start(host.Settings{EndpointURL: "http://127.0.0.1:1/whip", BearerToken: ""})
	time.Sleep(50 * time.Millisecond)
	s.Start(host.Settings{EndpointURL: "http://127.0.0.1:1/whip", BearerToken: ""})

	s.workerWG.Wait()

	// The second Start must have joined the first worker before
	// spawning its own; if it hadn't, workerWG's internal counter
	// would be corrupted and Wait would panic or race.
}
