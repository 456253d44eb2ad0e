package channel

import "fmt"

// State is a channel's lifecycle position.
type State string

const (
	StateEmpty       State = "empty"        // no media loaded
	StateHasOriginal State = "has_original" // original uploaded, not transcoded
	StateTranscoding State = "transcoding"  // transcode job in flight
	StateReady       State = "ready"        // transcoded artifact available
	StateStreaming   State = "streaming"    // stream process running
	StateError       State = "error"        // last operation failed
)

// Encap selects the multicast encapsulation.
type Encap string

const (
	EncapUDP Encap = "udp"
	EncapRTP Encap = "rtp"
)

// Settings is a channel's validated parameter set. Construct only
// through Validate; raw client input must never reach argv assembly.
type Settings struct {
	Codec        string `json:"codec"`      // copy | h264 | h265
	Preset       string `json:"preset"`     // ultrafast … slow
	Resolution   string `json:"resolution"` // original | 720p | 1080p | 1440p | 4k
	FPS          string `json:"fps"`        // original | 23.976 | … | 60
	VideoBitrate string `json:"vbitrate"`   // "" (passthrough) | 1M … 20M
	AudioBitrate string `json:"abitrate"`   // e.g. "192k"
	Encap        Encap  `json:"encap"`      // udp | rtp
	Loop         bool   `json:"loop"`
	NIC          string `json:"nic"` // bind interface name, "" = default
}

// Snapshot is the externally visible view of one channel slot. The
// engine owns the live state; snapshots are what gets persisted and
// served over the API.
type Snapshot struct {
	ID             int      `json:"id"`
	State          State    `json:"state"`
	Filename       string   `json:"filename,omitempty"`
	OriginalPath   string   `json:"original_path,omitempty"`
	TranscodedPath string   `json:"transcoded_path,omitempty"`
	Settings       Settings `json:"settings"`
	GroupIP        string   `json:"group_ip"`
	Port           int      `json:"port"`
	Progress       int      `json:"progress,omitempty"`
	ETASeconds     int      `json:"eta_seconds,omitempty"`
	RestartCount   int      `json:"restart_count,omitempty"`
	LastError      string   `json:"last_error,omitempty"`
}

// GlobalSettings are the server-wide streaming knobs applied to new
// stream launches. A running stream keeps its launch-time parameters.
type GlobalSettings struct {
	Bitrate   string `json:"bitrate"` // cap for copy-mode streams, "" = passthrough
	NIC       string `json:"nic"`
	MediaPath string `json:"media_path"`
	AutoStart bool   `json:"auto_start"`
}

// InvalidParameterError reports a validation failure, naming the
// offending field so clients can correct it.
type InvalidParameterError struct {
	Field string
	Value string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}
