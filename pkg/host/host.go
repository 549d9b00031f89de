// Package host defines the narrow contract a real embedding
// application implements, standing in for the OBS plugin ABI described
// in spec.md §6.5 (create/update/destroy/get_properties,
// video_tick/encoded_packet, get_total_bytes/get_connect_time_ms).
package host

import "github.com/ethan/webrtc-whip-whep-core/pkg/netsig"

// Settings is the host-provided configuration for a session: the
// signalling endpoint and bearer token, read the way
// obs_service_get_connect_info feeds whip-output.cpp's Init(), and the
// way obs_data_get_string feeds whep-source.cpp's Update().
type Settings struct {
	EndpointURL string
	BearerToken string
}

// Host is the callback surface a WHIP/WHEP session reports through.
type Host interface {
	// SignalStop reports that the session has ended, successfully or
	// otherwise, mirroring obs_output_signal_stop.
	SignalStop(reason netsig.StopReason)
}

// VideoFrame and AudioFrame describe a decoded sample in host terms.
// WHEPSession itself does not build them: it hands *decode.Frame values
// to its OnVideoFrame/OnAudioFrame callbacks.
type VideoFrame struct {
	Data    []byte
	Width   int
	Height  int
	PTSUsec int64
}

type AudioFrame struct {
	Data          []byte
	SpeakerLayout string
	PTSUsec       int64
}

// EncodedPacket describes one encoded sample from the host's encoder,
// mirroring obs_output's encoder_packet. WHIPSession does not take this
// type: its WriteVideoSample/WriteAudioSample receive the data and PTS
// as separate arguments.
type EncodedPacket struct {
	Data      []byte
	PTSUsec   int64
	IsVideo   bool
	IsKeyframe bool
}

// Properties is returned by a session's Properties() accessor, mirroring
// GetProperties()'s endpoint_url/bearer_token text fields.
type Properties struct {
	EndpointURL string
	BearerToken string
}

// Stats is returned by a session's Stats() accessor, mirroring
// get_total_bytes/get_connect_time_ms.
type Stats struct {
	TotalBytes    uint64
	ConnectTimeMs int64
}
