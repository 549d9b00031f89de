package decode

import "testing"

func TestSpeakerLayout(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		want     string
	}{
		{"mono", 1, "MONO"},
		{"stereo", 2, "STEREO"},
		{"two point one", 3, "2.1"},
		{"quad", 4, "4.0"},
		{"four point one", 5, "4.1"},
		{"surround", 6, "5.1"},
		{"seven point one", 8, "7.1"},
		{"unlisted count", 7, "UNKNOWN"},
		{"zero channels", 0, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeakerLayout(tt.channels); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSampleFormatName(t *testing.T) {
	tests := []struct {
		name   string
		format SampleFormat
		want   string
	}{
		{"u8", SampleFormatU8, "U8"},
		{"s16", SampleFormatS16, "S16"},
		{"s32", SampleFormatS32, "S32"},
		{"flt", SampleFormatFLT, "FLT"},
		{"u8 planar", SampleFormatU8P, "U8P"},
		{"s16 planar", SampleFormatS16P, "S16P"},
		{"s32 planar", SampleFormatS32P, "S32P"},
		{"flt planar", SampleFormatFLTP, "FLTP"},
		{"unrecognized", SampleFormat(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleFormatName(tt.format); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPTSStateAnchorsFirstFrameToZero(t *testing.T) {
	p := newPTSState(90000)
	if got := p.next(123456); got != 0 {
		t.Fatalf("expected first pts 0, got %d", got)
	}
	if got := p.next(123456 + 90000); got != 1_000_000 {
		t.Fatalf("expected 1s advance, got %d usec", got)
	}
}

func TestPTSStateHandlesTimestampWraparound(t *testing.T) {
	p := newPTSState(90000)
	p.next(4294967295 - 45000) // half a second before wraparound
	got := p.next(44999)       // wraps past 0
	if got <= 0 {
		t.Fatalf("expected positive pts advance across wraparound, got %d", got)
	}
}
