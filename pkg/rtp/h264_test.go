package rtp

import (
	"bytes"
	"testing"

	pionrtp "github.com/pion/rtp"
)

func fuaPacket(seq uint16, ts uint32, refIdc byte, naluType byte, fragment []byte, start, end, marker bool) *pionrtp.Packet {
	var header byte
	if start {
		header |= 0x80
	}
	if end {
		header |= 0x40
	}
	header |= naluType & 0x1F

	fuIndicator := (refIdc & 0x60) | naluTypeFUA
	payload := append([]byte{fuIndicator, header}, fragment...)
	return &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: payload,
	}
}

func TestFUARoundTrip(t *testing.T) {
	// A single slice NAL unit (type 1, ref_idc bits set to 0x60),
	// fragmented across 3 FU-A packets.
	originalNALHeader := byte(0x60 | naluTypePFrame)
	payloadBytes := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

	d := NewH264Depacketizer()
	run := []*pionrtp.Packet{
		fuaPacket(1, 1000, 0x60, naluTypePFrame, payloadBytes[0:2], true, false, false),
		fuaPacket(2, 1000, 0x60, naluTypePFrame, payloadBytes[2:4], false, false, false),
		fuaPacket(3, 1000, 0x60, naluTypePFrame, payloadBytes[4:6], false, true, true),
	}

	frame, keyframe, err := d.Depacketize(run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keyframe {
		t.Fatalf("p-frame should not be reported as keyframe")
	}

	want := append(append([]byte{0x00, 0x00, 0x00, 0x01, originalNALHeader}), payloadBytes...)
	if !bytes.Equal(frame, want) {
		t.Fatalf("fu-a reassembly mismatch:\n got  % x\n want % x", frame, want)
	}
}

func TestFUAContinuationWithoutStartIsMalformed(t *testing.T) {
	d := NewH264Depacketizer()
	run := []*pionrtp.Packet{
		fuaPacket(1, 1000, 0x60, naluTypePFrame, []byte{0x01}, false, true, true),
	}
	if _, _, err := d.Depacketize(run); err == nil {
		t.Fatalf("expected malformed rtp error for orphaned fu-a continuation")
	}
}

func stapAPacket(seq uint16, ts uint32, marker bool, nalus ...[]byte) *pionrtp.Packet {
	payload := []byte{naluTypeSTAPA}
	for _, n := range nalus {
		size := uint16(len(n))
		payload = append(payload, byte(size>>8), byte(size))
		payload = append(payload, n...)
	}
	return &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: payload,
	}
}

// TestSTAPAAggregation reproduces scenario S3: a STAP-A carrying
// SPS+PPS followed, in the same timestamp-grouped run, by an IDR FU-A
// reassembly. The STAP-A must contribute its NALUs to the cache only
// once — not also inline them — so the emitted frame carries SPS/PPS
// a single time ahead of the IDR.
func TestSTAPAAggregation(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xE0}
	pps := []byte{0x68, 0xCE}
	idrPayload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	idrHeader := byte(0x60 | naluTypeIDR)
	idr := append([]byte{idrHeader}, idrPayload...)

	d := NewH264Depacketizer()
	run := []*pionrtp.Packet{
		stapAPacket(1, 900000, false, sps, pps),
		fuaPacket(2, 900000, 0x60, naluTypeIDR, idrPayload[0:2], true, false, false),
		fuaPacket(3, 900000, 0x60, naluTypeIDR, idrPayload[2:4], false, true, true),
	}

	frame, keyframe, err := d.Depacketize(run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keyframe {
		t.Fatalf("expected keyframe for IDR slice")
	}

	var want []byte
	want = appendAnnexB(want, sps)
	want = appendAnnexB(want, pps)
	want = appendAnnexB(want, idr)
	if !bytes.Equal(frame, want) {
		t.Fatalf("stap-a aggregation mismatch:\n got  % x\n want % x", frame, want)
	}
}

func TestSTAPAOverrunIsMalformed(t *testing.T) {
	d := NewH264Depacketizer()
	payload := []byte{naluTypeSTAPA, 0x00, 0xFF, 0x01, 0x02} // claims 255 bytes, only has 2
	run := []*pionrtp.Packet{
		{Header: pionrtp.Header{SequenceNumber: 1, Timestamp: 1000, Marker: true}, Payload: payload},
	}
	if _, _, err := d.Depacketize(run); err == nil {
		t.Fatalf("expected malformed rtp error for stap-a size overrun")
	}
}

func TestSingleNALUKeyframePrependsCachedParameterSets(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xE0}
	pps := []byte{0x68, 0xCE}
	idr := []byte{0x65, 0x01, 0x02}

	d := NewH264Depacketizer()
	d.Depacketize([]*pionrtp.Packet{stapAPacket(1, 1000, true, sps, pps)})

	frame, keyframe, err := d.Depacketize([]*pionrtp.Packet{
		{Header: pionrtp.Header{SequenceNumber: 2, Timestamp: 1003, Marker: true}, Payload: idr},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keyframe {
		t.Fatalf("expected keyframe")
	}

	var want []byte
	want = appendAnnexB(want, sps)
	want = appendAnnexB(want, pps)
	want = appendAnnexB(want, idr)
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected cached sps/pps prepended:\n got  % x\n want % x", frame, want)
	}
}
