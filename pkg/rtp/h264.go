package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

// H.264 NAL unit type constants, carried in the low 5 bits of the
// first payload byte (RFC 6184 §5.3).
const (
	naluTypeUnspecified = 0
	naluTypePFrame      = 1
	naluTypeIDR         = 5
	naluTypeSEI         = 6
	naluTypeSPS         = 7
	naluTypePPS         = 8
	naluTypeAUD         = 9
	naluTypeSTAPA       = 24
	naluTypeFUA         = 28
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// ErrMalformedRTP marks a depacketization failure that must be logged
// and dropped, never treated as a reason to tear the session down.
var ErrMalformedRTP = errors.New("malformed rtp payload")

// H264Depacketizer reassembles FU-A fragments into whole NAL units and
// flushes STAP-A-aggregated parameter sets ahead of the next emitted
// NAL, into Annex-B (start-code prefixed) access units.
type H264Depacketizer struct {
	fragment     []byte
	pendingCache []byte
}

func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize consumes one timestamp-grouped run of packets — as
// produced by ReorderBuffer.DrainReady — and returns the reconstructed
// Annex-B access unit plus whether it is a keyframe. A malformed
// packet anywhere in the run yields ErrMalformedRTP and no output; the
// caller drops the run and continues.
//
// STAP-A packets emit nothing themselves: their aggregated NAL units
// are concatenated, each with its own start code, into a pending
// parameter-set cache. That cache is prepended ahead of the next NAL
// this method actually emits (FU-A reassembly or a single NALU
// packet), then reset to empty — decoders require parameter sets to
// precede the first IDR, and the source pins SPS/PPS to arrive via a
// STAP-A just ahead of it.
func (d *H264Depacketizer) Depacketize(run []*pionrtp.Packet) (frame []byte, keyframe bool, err error) {
	var nalus [][]byte
	for _, pkt := range run {
		if len(pkt.Payload) == 0 {
			continue
		}
		naluType := pkt.Payload[0] & 0x1F
		switch naluType {
		case naluTypeFUA:
			nalu, done, ferr := d.processFUA(pkt.Payload)
			if ferr != nil {
				d.fragment = d.fragment[:0]
				return nil, false, fmt.Errorf("fu-a: %w", ferr)
			}
			if done {
				nalus = append(nalus, nalu)
			}
		case naluTypeSTAPA:
			if aerr := d.processSTAPA(pkt.Payload); aerr != nil {
				return nil, false, fmt.Errorf("stap-a: %w", aerr)
			}
		default:
			nalus = append(nalus, cloneBytes(pkt.Payload))
		}
	}

	if len(nalus) == 0 {
		return nil, false, nil
	}

	keyframe = containsIDR(nalus)
	if len(d.pendingCache) > 0 {
		frame = append(frame, d.pendingCache...)
		d.pendingCache = nil
	}
	for _, n := range nalus {
		frame = appendAnnexB(frame, n)
	}
	return frame, keyframe, nil
}

// processFUA accumulates one FU-A fragment. The reconstructed NAL
// header masks the FU indicator's reference-idc bits with 0x60 and
// ORs in the fragmented NAL type, per RFC 6184 §5.8: the forbidden-zero
// bit of the FU indicator is not part of the reconstructed header.
func (d *H264Depacketizer) processFUA(payload []byte) (nalu []byte, done bool, err error) {
	if len(payload) < 2 {
		return nil, false, fmt.Errorf("%w: fu-a shorter than 2 bytes", ErrMalformedRTP)
	}
	fuIndicator := payload[0]
	fuHeader := payload[1]
	fragment := payload[2:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	fragmentedType := fuHeader & 0x1F

	if start {
		d.fragment = d.fragment[:0]
		header := (fuIndicator & 0x60) | fragmentedType
		d.fragment = append(d.fragment, header)
	} else if len(d.fragment) == 0 {
		return nil, false, fmt.Errorf("%w: fu-a continuation with no start", ErrMalformedRTP)
	}

	d.fragment = append(d.fragment, fragment...)

	if !end {
		return nil, false, nil
	}
	complete := make([]byte, len(d.fragment))
	copy(complete, d.fragment)
	d.fragment = d.fragment[:0]
	return complete, true, nil
}

// processSTAPA splits a single-time aggregation packet into its
// constituent NAL units, in the order they appear in the packet (the
// sender is responsible for putting parameter sets first), and
// concatenates each — with its own start code — into the pending
// parameter-set cache. It emits nothing itself.
func (d *H264Depacketizer) processSTAPA(payload []byte) error {
	buf := payload[1:]
	for len(buf) > 2 {
		size := binary.BigEndian.Uint16(buf[:2])
		buf = buf[2:]
		if int(size) > len(buf) {
			return fmt.Errorf("%w: stap-a nalu size %d exceeds remaining %d bytes", ErrMalformedRTP, size, len(buf))
		}
		d.pendingCache = appendAnnexB(d.pendingCache, buf[:size])
		buf = buf[size:]
	}
	return nil
}

func containsIDR(nalus [][]byte) bool {
	for _, n := range nalus {
		if len(n) > 0 && n[0]&0x1F == naluTypeIDR {
			return true
		}
	}
	return false
}

func appendAnnexB(dst, nalu []byte) []byte {
	dst = append(dst, startCode...)
	return append(dst, nalu...)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
