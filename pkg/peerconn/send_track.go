package peerconn

import (
	"fmt"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// SendTrack is a local track this peer connection pushes media into,
// plus the RTCP reader goroutine draining feedback from the remote.
type SendTrack struct {
	Track  *webrtc.TrackLocalStaticRTP
	Sender *webrtc.RTPSender
	SSRC   webrtc.SSRC

	pc *PeerConnection
	// OnPictureLossIndication, if set, fires on every PLI/FIR the
	// remote sends for this track.
	OnPictureLossIndication func()
}

// NewSendTrack creates and attaches a SendOnly local track for the
// given codec, grounded on bridge.go's CreateSession track setup.
func (p *PeerConnection) NewSendTrack(kind webrtc.RTPCodecType, mimeType string, trackID string) (*SendTrack, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		trackID, p.MediaStreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	transceiver, err := p.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}
	sender := transceiver.Sender()

	var ssrc webrtc.SSRC
	if params := sender.GetParameters(); len(params.Encodings) > 0 {
		ssrc = params.Encodings[0].SSRC
	}

	st := &SendTrack{Track: track, Sender: sender, SSRC: ssrc, pc: p}
	go st.readRTCP()
	return st, nil
}

func (st *SendTrack) readRTCP() {
	buf := make([]byte, 1500)
	for {
		n, _, err := st.Sender.Read(buf)
		if err != nil {
			if err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if st.OnPictureLossIndication != nil {
					st.OnPictureLossIndication()
				}
			case *rtcp.ReceiverEstimatedMaximumBitrate:
			case *rtcp.ReceiverReport:
			}
		}
	}
}

// WriteRTP writes a packet to the track, treating a closed pipe as a
// silent no-op (the remote already tore the session down).
func (st *SendTrack) WriteRTP(pkt *rtp.Packet) error {
	if err := st.Track.WriteRTP(pkt); err != nil {
		if err == io.ErrClosedPipe {
			return nil
		}
		return fmt.Errorf("write rtp: %w", err)
	}
	return nil
}
