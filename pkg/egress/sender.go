// Package egress packetizes encoded samples into RTP and pushes them
// onto a peerconn.SendTrack, tracking total bytes sent and advancing
// the RTP timestamp from the host-supplied sample clock the way
// whip-output.cpp's Send() does.
package egress

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/ethan/webrtc-whip-whep-core/pkg/peerconn"
)

const maxVideoFragmentSize = 1200

// TrackSender packetizes one media track's samples and writes them to
// its local track, maintaining RTP timestamp and sequence-number state.
type TrackSender struct {
	track       *peerconn.SendTrack
	ssrc        uint32
	payloadType uint8
	clockRate   uint32

	mu            sync.Mutex
	seqNum        uint16
	rtpTimestamp  uint32
	havePTS       bool
	lastPTSUsec   int64

	totalBytes atomic.Uint64
}

func newTrackSender(track *peerconn.SendTrack, ssrc uint32, payloadType uint8, clockRate uint32) *TrackSender {
	return &TrackSender{
		track:       track,
		ssrc:        ssrc,
		payloadType: payloadType,
		clockRate:   clockRate,
		seqNum:      uint16(rand.Uint32()),
	}
}

// TotalBytes returns the cumulative payload bytes written, for the
// host's get_total_bytes accessor.
func (s *TrackSender) TotalBytes() uint64 { return s.totalBytes.Load() }

// advanceTimestamp converts the elapsed host-clock duration since the
// previous sample into RTP clock ticks and returns the new timestamp.
// The first sample anchors at timestamp 0 with no advance.
func (s *TrackSender) advanceTimestamp(ptsUsec int64) uint32 {
	if !s.havePTS {
		s.havePTS = true
		s.lastPTSUsec = ptsUsec
		return s.rtpTimestamp
	}
	deltaUsec := ptsUsec - s.lastPTSUsec
	s.lastPTSUsec = ptsUsec
	if deltaUsec < 0 {
		deltaUsec = 0
	}
	elapsedTicks := uint32((deltaUsec * int64(s.clockRate)) / 1_000_000)
	s.rtpTimestamp += elapsedTicks
	return s.rtpTimestamp
}

// VideoSender packetizes Annex-B H.264 access units.
type VideoSender struct {
	*TrackSender
	payloader *codecs.H264Payloader
}

func NewVideoSender(track *peerconn.SendTrack, ssrc uint32, clockRate uint32) *VideoSender {
	return &VideoSender{
		TrackSender: newTrackSender(track, ssrc, 96, clockRate),
		payloader:   &codecs.H264Payloader{},
	}
}

// WriteSample packetizes one Annex-B access unit and writes it as one
// or more RTP packets, fragmenting any NAL unit larger than the 1200
// byte MTU via FU-A.
func (s *VideoSender) WriteSample(annexB []byte, ptsUsec int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.advanceTimestamp(ptsUsec)
	payloads := s.payloader.Payload(maxVideoFragmentSize, annexB)
	if len(payloads) == 0 {
		return nil
	}

	for i, payload := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    s.payloadType,
				SequenceNumber: s.seqNum,
				Timestamp:      ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		s.seqNum++
		if err := s.track.WriteRTP(pkt); err != nil {
			return fmt.Errorf("write video rtp: %w", err)
		}
	}
	s.totalBytes.Add(uint64(len(annexB)))
	return nil
}

// AudioSender packetizes Opus frames, one sample per packet.
type AudioSender struct {
	*TrackSender
	payloader *codecs.OpusPayloader
}

func NewAudioSender(track *peerconn.SendTrack, ssrc uint32, clockRate uint32) *AudioSender {
	return &AudioSender{
		TrackSender: newTrackSender(track, ssrc, 111, clockRate),
		payloader:   &codecs.OpusPayloader{},
	}
}

func (s *AudioSender) WriteSample(opus []byte, ptsUsec int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.advanceTimestamp(ptsUsec)
	payloads := s.payloader.Payload(1500, opus)
	for _, payload := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    s.payloadType,
				SequenceNumber: s.seqNum,
				Timestamp:      ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		s.seqNum++
		if err := s.track.WriteRTP(pkt); err != nil {
			return fmt.Errorf("write audio rtp: %w", err)
		}
	}
	s.totalBytes.Add(uint64(len(opus)))
	return nil
}
