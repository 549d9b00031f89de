package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/ethan/webrtc-whip-whep-core/pkg/decode"
	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
	"github.com/ethan/webrtc-whip-whep-core/pkg/peerconn"
	selfrtp "github.com/ethan/webrtc-whip-whep-core/pkg/rtp"
	"github.com/ethan/webrtc-whip-whep-core/pkg/signaling"
)

const pliInterval = 2 * time.Second

// WHEPSession receives audio/video from a WHEP endpoint, depacketizes
// it, and drives a decode pipeline. Like WHIPSession, exactly one
// worker goroutine runs at a time.
//
// whep-source.cpp's older revision gated its start on an Activate()
// call distinct from Update(); this module instead restarts on every
// Update() that changes the settings, which makes Activate's separate
// existence unnecessary here.
type WHEPSession struct {
	logger   *logging.Logger
	signaler *signaling.Client
	host     host.Host

	startStopMu sync.Mutex
	workerWG    sync.WaitGroup
	cancel      context.CancelFunc

	settingsMu sync.RWMutex
	settings   host.Settings

	running     atomic.Bool
	resourceURL string
	connectTime atomic.Int64

	pc *peerconn.PeerConnection

	videoReorder *selfrtp.ReorderBuffer
	videoDepkt   *selfrtp.H264Depacketizer
	opusDepkt    *selfrtp.OpusDepacketizer
	pipeline     *decode.Pipeline

	VideoDecoder decode.VideoDecoder
	AudioDecoder decode.AudioDecoder

	OnVideoFrame func(*decode.Frame)
	OnAudioFrame func(*decode.Frame)

	pliScheduler pliScheduler
}

// pliScheduler is the subset of *pli.Scheduler this session drives; the
// caller injects one via SetPLIScheduler to keep this package
// decode/RTP focused.
type pliScheduler interface {
	Tick(now time.Time)
	RecordFrame(now time.Time)
}

func NewWHEPSession(logger *logging.Logger, h host.Host) *WHEPSession {
	return &WHEPSession{
		logger:       logger,
		signaler:     signaling.New(logger),
		host:         h,
		videoReorder: selfrtp.NewReorderBuffer(),
		videoDepkt:   selfrtp.NewH264Depacketizer(),
		opusDepkt:    selfrtp.NewOpusDepacketizer(),
	}
}

// SetPLIScheduler injects the keyframe-request scheduler driven by
// VideoTick.
func (s *WHEPSession) SetPLIScheduler(sched pliScheduler) {
	s.pliScheduler = sched
}

// Update restarts the session with new settings, joining any prior
// worker first — the Update-triggered restart spec.md prefers over
// whep-source.cpp's separate Activate gate. An Update carrying the same
// settings as a session that is already running is a no-op.
func (s *WHEPSession) Update(settings host.Settings) {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()

	s.settingsMu.RLock()
	unchanged := settings == s.settings
	s.settingsMu.RUnlock()
	if unchanged && s.running.Load() {
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.workerWG.Wait()
		s.teardown()
	}

	if settings.EndpointURL == "" {
		s.host.SignalStop(netsig.StopBadPath)
		return
	}

	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.workerWG.Add(1)
	go s.run(ctx)
}

// Destroy permanently tears the session down.
func (s *WHEPSession) Destroy() {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.workerWG.Wait()
	}
	wasRunning := s.running.Swap(false)
	s.teardown()
	if wasRunning {
		s.host.SignalStop(netsig.StopSuccess)
	}
}

// stopWithoutSignal cancels the worker and tears the connection down
// without itself reporting a stop reason, leaving that to the caller
// (the connection-state-change handler knows whether it was a clean
// disconnect or a failure).
func (s *WHEPSession) stopWithoutSignal() {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.workerWG.Wait()
	}
	s.running.Store(false)
	s.teardown()
}

func (s *WHEPSession) teardown() {
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

func (s *WHEPSession) run(ctx context.Context) {
	defer s.workerWG.Done()

	if err := s.setup(ctx); err != nil {
		var netErr *netsig.Error
		if asNetsigError(err, &netErr) {
			s.host.SignalStop(netErr.Kind.ToStopReason())
		} else {
			s.host.SignalStop(netsig.StopError)
		}
		if s.pc != nil {
			s.pc.Close()
			s.pc = nil
		}
		return
	}

	s.running.Store(true)
	<-ctx.Done()
}

func (s *WHEPSession) setup(ctx context.Context) error {
	s.settingsMu.RLock()
	settings := s.settings
	s.settingsMu.RUnlock()

	pc, err := peerconn.New(peerconn.RoleWHEP, peerconn.Options{}, s.logger)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc

	if err := pc.AddRecvOnlyTransceivers(); err != nil {
		return fmt.Errorf("add transceivers: %w", err)
	}

	s.pipeline = decode.NewPipeline(s.VideoDecoder, s.AudioDecoder, 90000, 48000)
	s.pipeline.OnVideoFrame = func(f *decode.Frame) {
		if s.pliScheduler != nil {
			s.pliScheduler.RecordFrame(time.Now())
		}
		if s.OnVideoFrame != nil {
			s.OnVideoFrame(f)
		}
	}
	s.pipeline.OnAudioFrame = s.OnAudioFrame

	pc.OnConnectionStateChange(func(connectTime time.Duration) {
		s.connectTime.Store(connectTime.Milliseconds())
	}, func(failed bool) {
		go func() {
			s.stopWithoutSignal()
			if failed {
				s.host.SignalStop(netsig.StopError)
			} else {
				s.host.SignalStop(netsig.StopDisconnected)
			}
		}()
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			s.readVideoTrack(track)
		case webrtc.RTPCodecTypeAudio:
			s.readAudioTrack(track)
		}
	})

	resourceURL, err := s.negotiate(ctx, pc, settings)
	if err != nil {
		return err
	}
	s.resourceURL = resourceURL
	return nil
}

// negotiate sends our offer and applies the remote answer, grounded on
// whep-source.cpp's SetupPeerConnection -> send_offer flow.
func (s *WHEPSession) negotiate(ctx context.Context, pc *peerconn.PeerConnection, settings host.Settings) (resourceURL string, err error) {
	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	resourceURL, answer, err := s.signaler.SendOffer(ctx, settings.BearerToken, settings.EndpointURL, offer)
	if err != nil {
		return "", err
	}

	if err := pc.SetAnswer(answer); err != nil {
		return "", fmt.Errorf("set answer: %w", err)
	}
	return resourceURL, nil
}

func (s *WHEPSession) readVideoTrack(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.videoReorder.Push(pkt)
		for {
			run, ok := s.videoReorder.DrainReady()
			if !ok {
				break
			}
			frame, _, derr := s.videoDepkt.Depacketize(run)
			if derr != nil {
				s.logger.Warn("malformed video rtp, dropping", map[string]any{"error": derr.Error()})
				continue
			}
			if frame == nil {
				continue
			}
			if err := s.pipeline.SubmitVideo(frame, run[len(run)-1].Timestamp); err != nil {
				s.logger.Warn("video decode error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (s *WHEPSession) readAudioTrack(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.submitAudioPacket(pkt)
	}
}

func (s *WHEPSession) submitAudioPacket(pkt *pionrtp.Packet) {
	payload, err := s.opusDepkt.Depacketize(pkt)
	if err != nil {
		s.logger.Warn("malformed audio rtp, dropping", map[string]any{"error": err.Error()})
		return
	}
	if err := s.pipeline.SubmitAudio(payload, pkt.Timestamp); err != nil {
		s.logger.Warn("audio decode error", map[string]any{"error": err.Error()})
	}
}

// VideoTick drives the PLI scheduler; the host calls it once per video
// tick.
func (s *WHEPSession) VideoTick() {
	if s.pliScheduler != nil {
		s.pliScheduler.Tick(time.Now())
	}
}

func (s *WHEPSession) Properties() host.Properties {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return host.Properties{EndpointURL: s.settings.EndpointURL, BearerToken: s.settings.BearerToken}
}

func (s *WHEPSession) Stats() host.Stats {
	return host.Stats{ConnectTimeMs: s.connectTime.Load()}
}
