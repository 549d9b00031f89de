package decode

// SpeakerLayout names the channel layout the host should configure its
// audio output for, per §6.4's channel-count mapping. Unlisted channel
// counts map to "UNKNOWN" rather than an error — the host is expected
// to fall back to its own default layout in that case.
func SpeakerLayout(channels int) string {
	switch channels {
	case 1:
		return "MONO"
	case 2:
		return "STEREO"
	case 3:
		return "2.1"
	case 4:
		return "4.0"
	case 5:
		return "4.1"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return "UNKNOWN"
	}
}

// SampleFormat enumerates the decoder-native PCM sample formats this
// module knows how to name, per §6.4.
type SampleFormat int

const (
	SampleFormatU8 SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
)

// SampleFormatName maps a decoder's reported sample format 1:1 onto
// its wire name, per §6.4's {U8,S16,S32,FLT,U8P,S16P,S32P,FLTP} table.
// An unrecognized format maps to "UNKNOWN".
func SampleFormatName(f SampleFormat) string {
	switch f {
	case SampleFormatU8:
		return "U8"
	case SampleFormatS16:
		return "S16"
	case SampleFormatS32:
		return "S32"
	case SampleFormatFLT:
		return "FLT"
	case SampleFormatU8P:
		return "U8P"
	case SampleFormatS16P:
		return "S16P"
	case SampleFormatS32P:
		return "S32P"
	case SampleFormatFLTP:
		return "FLTP"
	default:
		return "UNKNOWN"
	}
}
