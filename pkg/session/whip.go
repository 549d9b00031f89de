// Package session implements the WHIP egress and WHEP ingest session
// state machines: single-worker-per-session lifecycle, error-to-signal
// mapping, and wiring the signalling/peer-connection/RTP packages
// together, grounded on whip-output.cpp's Start/Stop/StartThread and
// relay.CameraRelay's goroutine/context lifecycle.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/egress"
	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
	"github.com/ethan/webrtc-whip-whep-core/pkg/peerconn"
	"github.com/ethan/webrtc-whip-whep-core/pkg/signaling"
	"github.com/pion/webrtc/v4"
)

// WHIPSession pushes encoded audio/video samples to a WHIP endpoint.
// Only one worker goroutine runs at a time; Start and Stop each join
// whatever worker the other left running before spawning their own,
// mirroring whip-output.cpp's start_stop_mutex.
type WHIPSession struct {
	logger   *logging.Logger
	signaler *signaling.Client
	host     host.Host

	startStopMu sync.Mutex
	workerWG    sync.WaitGroup

	settingsMu sync.RWMutex
	settings   host.Settings

	running     atomic.Bool
	resourceURL string
	connectTime atomic.Int64
	totalBytes  atomic.Uint64

	cancel context.CancelFunc

	video *egress.VideoSender
	audio *egress.AudioSender
	pc    *peerconn.PeerConnection
}

func NewWHIPSession(logger *logging.Logger, h host.Host) *WHIPSession {
	return &WHIPSession{
		logger:   logger,
		signaler: signaling.New(logger),
		host:     h,
	}
}

// Start validates settings and, if valid, joins any prior worker then
// spawns a new one. Mirrors whip-output.cpp's Start()/Init() gating.
func (s *WHIPSession) Start(settings host.Settings) {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()

	if settings.EndpointURL == "" {
		s.host.SignalStop(netsig.StopBadPath)
		return
	}

	s.workerWG.Wait()

	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.workerWG.Add(1)
	go s.run(ctx)
}

// Stop joins any running worker, tears down the remote resource, and
// — if signal is requested and the session was running — reports
// success exactly once. Mirrors whip-output.cpp's Stop()/StopThread().
func (s *WHIPSession) Stop(signal bool) {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.workerWG.Wait()

	wasRunning := s.running.Swap(false)
	s.teardown()

	if signal && wasRunning {
		s.host.SignalStop(netsig.StopSuccess)
	}
	// Dropping the senders resets their byte counts and RTP timestamp
	// state; the next successful setup creates fresh ones.
	s.video, s.audio = nil, nil
	s.totalBytes.Store(0)
	s.connectTime.Store(0)
}

func (s *WHIPSession) teardown() {
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	s.settingsMu.RLock()
	token := s.settings.BearerToken
	s.settingsMu.RUnlock()
	if err := s.signaler.SendDelete(ctx, token, s.resourceURL); err != nil {
		s.logger.Warn("delete failed", map[string]any{"error": err.Error()})
	}
	s.resourceURL = ""
}

func (s *WHIPSession) run(ctx context.Context) {
	defer s.workerWG.Done()

	if err := s.setup(ctx); err != nil {
		var netErr *netsig.Error
		if asNetsigError(err, &netErr) {
			s.host.SignalStop(netErr.Kind.ToStopReason())
		} else {
			s.host.SignalStop(netsig.StopError)
		}
		s.teardownLocked()
		return
	}

	s.running.Store(true)
	<-ctx.Done()
}

func (s *WHIPSession) teardownLocked() {
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
}

func (s *WHIPSession) setup(ctx context.Context) error {
	s.settingsMu.RLock()
	settings := s.settings
	s.settingsMu.RUnlock()

	pc, err := peerconn.New(peerconn.RoleWHIP, peerconn.Options{}, s.logger)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc

	pc.OnConnectionStateChange(func(connectTime time.Duration) {
		s.connectTime.Store(connectTime.Milliseconds())
	}, func(failed bool) {
		// Spawned: closing the peer connection from within its own
		// OnConnectionStateChange callback can deadlock inside pion,
		// which waits for that callback's goroutine during Close.
		go func() {
			s.Stop(false)
			if failed {
				s.host.SignalStop(netsig.StopError)
			} else {
				s.host.SignalStop(netsig.StopDisconnected)
			}
		}()
	})

	videoTrack, err := pc.NewSendTrack(webrtc.RTPCodecTypeVideo, webrtc.MimeTypeH264, "video")
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}
	audioTrack, err := pc.NewSendTrack(webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus, "audio")
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}

	s.video = egress.NewVideoSender(videoTrack, pc.BaseSSRC+1, 90000)
	s.audio = egress.NewAudioSender(audioTrack, pc.BaseSSRC, 48000)

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	resourceURL, answer, err := s.signaler.SendOffer(ctx, settings.BearerToken, settings.EndpointURL, offer)
	if err != nil {
		return err
	}
	s.resourceURL = resourceURL

	if err := pc.SetAnswer(answer); err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	return nil
}

// WriteVideoSample submits one encoded Annex-B video sample for
// packetization and send, a no-op if the session has no active track.
func (s *WHIPSession) WriteVideoSample(data []byte, ptsUsec int64) error {
	if s.video == nil {
		return nil
	}
	return s.video.WriteSample(data, ptsUsec)
}

// WriteAudioSample submits one encoded Opus sample.
func (s *WHIPSession) WriteAudioSample(data []byte, ptsUsec int64) error {
	if s.audio == nil {
		return nil
	}
	return s.audio.WriteSample(data, ptsUsec)
}

// Properties returns the session's current host-facing configuration.
func (s *WHIPSession) Properties() host.Properties {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return host.Properties{EndpointURL: s.settings.EndpointURL, BearerToken: s.settings.BearerToken}
}

// Stats returns the cumulative bytes sent and connect time, mirroring
// get_total_bytes/get_connect_time_ms.
func (s *WHIPSession) Stats() host.Stats {
	var total uint64
	if s.video != nil {
		total += s.video.TotalBytes()
	}
	if s.audio != nil {
		total += s.audio.TotalBytes()
	}
	return host.Stats{TotalBytes: total, ConnectTimeMs: s.connectTime.Load()}
}

func asNetsigError(err error, target **netsig.Error) bool {
	for err != nil {
		if ne, ok := err.(*netsig.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
