// Package decode defines the host-supplied decoder interfaces and the
// pipeline that feeds them depacketized access units, deriving
// presentation timestamps from RTP timestamps along the way.
package decode

import "fmt"

// Frame is a decoded video or audio frame handed back to the host.
type Frame struct {
	Data        []byte
	Width       int
	Height      int
	PTSUsec     int64
	SpeakerLayout string // audio only; empty for video
}

// VideoDecoder and AudioDecoder are supplied by the embedding host
// (spec.md §1 places decoder implementations themselves out of
// scope: this module only owns submitting access units and draining
// decoded frames in FIFO order).
type VideoDecoder interface {
	SendPacket(annexB []byte) error
	ReceiveFrame() (*Frame, error)
}

type AudioDecoder interface {
	SendPacket(opus []byte) error
	ReceiveFrame() (*Frame, error)
}

// ErrNoFrameReady is returned by ReceiveFrame implementations when the
// decoder has buffered the packet but has no output yet.
var ErrNoFrameReady = fmt.Errorf("decode: no frame ready")

// ptsState derives a monotonic presentation timestamp from RTP
// timestamps, per §4.4: the first frame is anchored to PTS 0, and
// every later frame advances by the RTP timestamp delta converted to
// microseconds at the track's clock rate.
type ptsState struct {
	clockRate      uint32
	haveFirst      bool
	lastRTPTime    uint32
	lastPTSUsec    int64
}

func newPTSState(clockRate uint32) *ptsState {
	return &ptsState{clockRate: clockRate}
}

func (p *ptsState) next(rtpTimestamp uint32) int64 {
	if !p.haveFirst {
		p.haveFirst = true
		p.lastRTPTime = rtpTimestamp
		p.lastPTSUsec = 0
		return 0
	}
	delta := int64(int32(rtpTimestamp - p.lastRTPTime))
	deltaUsec := delta * 1_000_000 / int64(p.clockRate)
	p.lastPTSUsec += deltaUsec
	p.lastRTPTime = rtpTimestamp
	return p.lastPTSUsec
}

// Pipeline drives a VideoDecoder/AudioDecoder pair: submit a
// depacketized access unit, drain every frame the decoder now has
// ready (a decoder may buffer several packets before producing
// output), and deliver each with a derived PTS.
type Pipeline struct {
	video          VideoDecoder
	audio          AudioDecoder
	videoPTS       *ptsState
	audioClockRate uint32
	OnVideoFrame func(*Frame)
	OnAudioFrame func(*Frame)
}

func NewPipeline(video VideoDecoder, audio AudioDecoder, videoClockRate, audioClockRate uint32) *Pipeline {
	return &Pipeline{
		video:          video,
		audio:          audio,
		videoPTS:       newPTSState(videoClockRate),
		audioClockRate: audioClockRate,
	}
}

// SubmitVideo sends one Annex-B access unit and drains all frames the
// decoder now has ready.
func (p *Pipeline) SubmitVideo(annexB []byte, rtpTimestamp uint32) error {
	if p.video == nil {
		return nil
	}
	if err := p.video.SendPacket(annexB); err != nil {
		return fmt.Errorf("video decoder: send packet: %w", err)
	}
	for {
		frame, err := p.video.ReceiveFrame()
		if err == ErrNoFrameReady {
			return nil
		}
		if err != nil {
			return fmt.Errorf("video decoder: receive frame: %w", err)
		}
		frame.PTSUsec = p.videoPTS.next(rtpTimestamp)
		if p.OnVideoFrame != nil {
			p.OnVideoFrame(frame)
		}
	}
}

// SubmitAudio sends one Opus packet and drains all frames the decoder
// now has ready. Unlike video, audio PTS is not zero-anchored or
// delta-accumulated: per §4.4 it passes through as the packet's own
// RTP timestamp, converted to microseconds at the track's clock rate.
func (p *Pipeline) SubmitAudio(opus []byte, rtpTimestamp uint32) error {
	if p.audio == nil {
		return nil
	}
	if err := p.audio.SendPacket(opus); err != nil {
		return fmt.Errorf("audio decoder: send packet: %w", err)
	}
	for {
		frame, err := p.audio.ReceiveFrame()
		if err == ErrNoFrameReady {
			return nil
		}
		if err != nil {
			return fmt.Errorf("audio decoder: receive frame: %w", err)
		}
		frame.PTSUsec = int64(rtpTimestamp) * 1_000_000 / int64(p.audioClockRate)
		if p.OnAudioFrame != nil {
			p.OnAudioFrame(frame)
		}
	}
}
