// Package peerconn builds and manages the pion PeerConnection shared by
// the WHIP egress and WHEP ingest sessions: codec registration, the
// interceptor chain, track attachment, and connection-state callbacks.
package peerconn

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"

	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
)

// Role selects which direction of media this peer connection carries.
type Role int

const (
	RoleWHIP Role = iota // we send, the remote receives
	RoleWHEP             // we receive, the remote sends
)

const (
	videoPayloadType = 96
	audioPayloadType = 111
	videoClockRate   = 90000
	audioClockRate   = 48000
	audioChannels    = 2

	h264FmtpLine = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"

	mediaStreamIDLength = 16
	mediaStreamIDChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Options configures a new PeerConnection.
type Options struct {
	ICEServers []string
}

func (o Options) iceServers() []webrtc.ICEServer {
	if len(o.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	servers := make([]webrtc.ICEServer, len(o.ICEServers))
	for i, u := range o.ICEServers {
		servers[i] = webrtc.ICEServer{URLs: []string{u}}
	}
	return servers
}

// PeerConnection wraps *webrtc.PeerConnection with the logging and
// random-identifier plumbing this module's sessions need.
type PeerConnection struct {
	pc     *webrtc.PeerConnection
	role   Role
	logger *logging.Logger

	MediaStreamID string
	CNAME         string
	BaseSSRC      uint32

	connectedAt time.Time
}

func newAPI() (*webrtc.API, error) {
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeH264, ClockRate: videoClockRate, SDPFmtpLine: h264FmtpLine,
		},
		PayloadType: videoPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register h264 codec: %w", err)
	}
	if err := engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: audioChannels,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: audioPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithInterceptorRegistry(registry)), nil
}

// New builds a peer connection for the given role.
func New(role Role, opts Options, logger *logging.Logger) (*PeerConnection, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.iceServers()})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	gen := randutil.NewMathRandomGenerator()
	mediaStreamID := gen.GenerateString(mediaStreamIDLength, mediaStreamIDChars)
	cname := gen.GenerateString(mediaStreamIDLength, mediaStreamIDChars)

	// Audio uses baseSSRC and video baseSSRC+1, so keep baseSSRC in
	// [1, 2^32-2] to leave both non-zero.
	baseSSRC := gen.Uint32()%0xFFFFFFFE + 1

	p := &PeerConnection{
		pc:            pc,
		role:          role,
		logger:        logger,
		MediaStreamID: mediaStreamID,
		CNAME:         cname,
		BaseSSRC:      baseSSRC,
	}
	return p, nil
}

// OnConnectionStateChange registers a callback that also records the
// connecting instant (for connect-time measurement) and is the single
// place Disconnected/Failed get noticed.
func (p *PeerConnection) OnConnectionStateChange(onConnected func(connectTime time.Duration), onStopped func(failed bool)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Info("connection state change", map[string]any{"state": state.String()})
		switch state {
		case webrtc.PeerConnectionStateConnecting:
			p.connectedAt = time.Now()
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil && !p.connectedAt.IsZero() {
				onConnected(time.Since(p.connectedAt))
			}
		case webrtc.PeerConnectionStateDisconnected:
			if onStopped != nil {
				onStopped(false)
			}
		case webrtc.PeerConnectionStateFailed:
			if onStopped != nil {
				onStopped(true)
			}
		}
	})
}

func (p *PeerConnection) Raw() *webrtc.PeerConnection { return p.pc }

func (p *PeerConnection) Close() error {
	return p.pc.Close()
}
