package rtp

import (
	"testing"

	pionrtp "github.com/pion/rtp"
)

func pkt(seq uint16, ts uint32, marker bool) *pionrtp.Packet {
	return &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: []byte{0x01},
	}
}

func TestDrainReadyWithholdsUntilLaterTimestampArrives(t *testing.T) {
	b := NewReorderBuffer()
	b.Push(pkt(1, 1000, false))
	b.Push(pkt(2, 1000, true))

	if _, ok := b.DrainReady(); ok {
		t.Fatalf("expected no run ready before a later timestamp arrives")
	}

	b.Push(pkt(3, 1003, false))

	run, ok := b.DrainReady()
	if !ok {
		t.Fatalf("expected a run to be ready")
	}
	if len(run) != 2 {
		t.Fatalf("expected 2 packets in run, got %d", len(run))
	}
	if run[0].SequenceNumber != 1 || run[1].SequenceNumber != 2 {
		t.Fatalf("expected packets in sequence order, got %d, %d", run[0].SequenceNumber, run[1].SequenceNumber)
	}
}

func TestPushSortsOutOfOrderPackets(t *testing.T) {
	b := NewReorderBuffer()
	b.Push(pkt(2, 1000, false))
	b.Push(pkt(1, 1000, false))
	b.Push(pkt(3, 1003, false))

	run, ok := b.DrainReady()
	if !ok {
		t.Fatalf("expected run ready")
	}
	if run[0].SequenceNumber != 1 || run[1].SequenceNumber != 2 {
		t.Fatalf("expected reordered run [1,2], got [%d,%d]", run[0].SequenceNumber, run[1].SequenceNumber)
	}
}

func TestPushHandlesSequenceWraparound(t *testing.T) {
	b := NewReorderBuffer()
	b.Push(pkt(65534, 1000, false))
	b.Push(pkt(65535, 1000, false))
	b.Push(pkt(1, 1000, false))
	b.Push(pkt(0, 1000, false))
	b.Push(pkt(2, 1003, false))

	run, ok := b.DrainReady()
	if !ok {
		t.Fatalf("expected run ready")
	}
	want := []uint16{65534, 65535, 0, 1}
	if len(run) != len(want) {
		t.Fatalf("expected %d packets, got %d", len(want), len(run))
	}
	for i, seq := range want {
		if run[i].SequenceNumber != seq {
			t.Fatalf("at %d: expected seq %d, got %d", i, seq, run[i].SequenceNumber)
		}
	}
}

func TestFlushReturnsRemainder(t *testing.T) {
	b := NewReorderBuffer()
	b.Push(pkt(1, 1000, false))
	b.Push(pkt(2, 1000, true))

	remainder := b.Flush()
	if len(remainder) != 2 {
		t.Fatalf("expected 2 packets flushed, got %d", len(remainder))
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer empty after flush")
	}
}
