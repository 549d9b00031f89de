package peerconn

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

const gatherTimeout = 10 * time.Second

// CreateOffer builds a local offer and blocks (trickle ICE is not used,
// per the spec's single signalling exchange) until gathering completes
// or ctx/gatherTimeout expires, then returns the complete SDP.
func (p *PeerConnection) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	if err := waitGathering(ctx, gatherComplete); err != nil {
		return "", err
	}
	return p.pc.LocalDescription().SDP, nil
}

// SetAnswer applies the remote SDP answer once the signalling exchange
// completes (used by both the WHIP and WHEP sessions).
func (p *PeerConnection) SetAnswer(answerSDP string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	})
}

func waitGathering(ctx context.Context, gatherComplete <-chan struct{}) error {
	timeout := time.NewTimer(gatherTimeout)
	defer timeout.Stop()
	select {
	case <-gatherComplete:
		return nil
	case <-timeout.C:
		return fmt.Errorf("ice gathering timed out after %s", gatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
