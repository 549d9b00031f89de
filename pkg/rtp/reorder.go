// Package rtp implements the reorder queue and H.264/Opus
// depacketizers that turn a stream of received RTP packets into
// Annex-B framed access units ready for decode.
package rtp

import (
	"sort"

	pionrtp "github.com/pion/rtp"
)

// ReorderBuffer holds out-of-order RTP packets, sorted by sequence
// number, and releases a run of packets sharing the oldest timestamp
// only once a packet with a different timestamp has arrived — proof
// that no more fragments for that frame are still in flight.
type ReorderBuffer struct {
	packets []*pionrtp.Packet
}

func NewReorderBuffer() *ReorderBuffer {
	return &ReorderBuffer{}
}

// Push inserts pkt in sequence-number order. Sequence-number wraparound
// is handled by comparing each packet's signed 16-bit distance from the
// oldest buffered packet rather than raw numeric order: a packet up to
// half the 16-bit space ahead of it (e.g. 0 after 65535) sorts after
// it, and a packet up to half the space behind it sorts before it.
func (b *ReorderBuffer) Push(pkt *pionrtp.Packet) {
	b.packets = append(b.packets, pkt)
	sort.SliceStable(b.packets, func(i, j int) bool {
		return seqLess(b.packets[i].SequenceNumber, b.packets[j].SequenceNumber, b.packets[0].SequenceNumber)
	})
}

func seqLess(a, b, pivot uint16) bool {
	return int16(a-pivot) < int16(b-pivot)
}

// DrainReady removes and returns the oldest run of packets that all
// share the same RTP timestamp, but only if a packet with a later
// timestamp has already arrived behind it. ok is false when the
// buffer holds only (a prefix of) the current frame and more
// fragments may still be in flight.
func (b *ReorderBuffer) DrainReady() (run []*pionrtp.Packet, ok bool) {
	if len(b.packets) == 0 {
		return nil, false
	}
	ts := b.packets[0].Timestamp
	end := 1
	for end < len(b.packets) && b.packets[end].Timestamp == ts {
		end++
	}
	if end == len(b.packets) {
		// every buffered packet shares this timestamp; no proof yet
		// that the frame is complete.
		return nil, false
	}
	run = b.packets[:end]
	b.packets = b.packets[end:]
	return run, true
}

// Flush forces out whatever remains, for session teardown.
func (b *ReorderBuffer) Flush() []*pionrtp.Packet {
	run := b.packets
	b.packets = nil
	return run
}

func (b *ReorderBuffer) Len() int { return len(b.packets) }
