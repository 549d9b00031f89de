package peerconn

import "github.com/pion/webrtc/v4"

// OnTrack registers the handler invoked when the remote starts a new
// inbound track (WHEP ingest). Mirrors whep-source.cpp's per-kind
// RecvOnly track setup, generalized: the handler receives both audio
// and video tracks and is expected to branch on track.Kind().
func (p *PeerConnection) OnTrack(handler func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	p.pc.OnTrack(handler)
}

// AddRecvOnlyTransceivers declares that this peer connection expects to
// receive one audio and one video track, without sending any media of
// our own (WHEP ingest is receive-only per the spec).
func (p *PeerConnection) AddRecvOnlyTransceivers() error {
	if _, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	if _, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	return nil
}
