package rtp

import pionrtp "github.com/pion/rtp"

// OpusDepacketizer maps one RTP packet directly to one Opus frame.
// Unlike H.264, this profile carries exactly one encoded sample per
// packet with no fragmentation or aggregation, so there is nothing to
// reassemble (generalizing the AAC processor's single-AU case to
// Opus's simpler, header-less framing).
type OpusDepacketizer struct{}

func NewOpusDepacketizer() *OpusDepacketizer { return &OpusDepacketizer{} }

// Depacketize returns the payload of a single packet unchanged. Opus
// packets never need reordering batches the way H.264 fragments do, so
// callers may feed packets one at a time rather than via
// ReorderBuffer.DrainReady.
func (d *OpusDepacketizer) Depacketize(pkt *pionrtp.Packet) ([]byte, error) {
	if len(pkt.Payload) == 0 {
		return nil, ErrMalformedRTP
	}
	return cloneBytes(pkt.Payload), nil
}
