package channel

// Enumerated parameter sets. Nothing outside these values may ever
// reach subprocess argument construction; this is the sole injection
// defense, enforced before any argv is assembled.
var (
	validCodecs      = set("copy", "h264", "h265")
	validPresets     = set("ultrafast", "superfast", "fast", "medium", "slow")
	validResolutions = set("original", "720p", "1080p", "1440p", "4k")
	validFPS         = set("original", "23.976", "24", "25", "29.97", "30", "50", "59.94", "60")
	validBitrates    = set("", "1M", "2M", "4M", "6M", "8M", "10M", "15M", "20M")
)

// BitratePresets lists the selectable stream bitrate caps, in UI order.
// The empty value means passthrough (stream copy, no cap).
var BitratePresets = []string{"", "1M", "2M", "4M", "6M", "8M", "10M", "15M", "20M"}

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// Validate checks every field of s against its enumerated set and
// returns a normalized copy. The first out-of-set field fails with an
// InvalidParameterError naming it.
func Validate(s Settings) (Settings, error) {
	if s.Codec == "" {
		s.Codec = "copy"
	}
	if _, ok := validCodecs[s.Codec]; !ok {
		return Settings{}, &InvalidParameterError{Field: "codec", Value: s.Codec}
	}

	if s.Preset == "" {
		s.Preset = "fast"
	}
	if _, ok := validPresets[s.Preset]; !ok {
		return Settings{}, &InvalidParameterError{Field: "preset", Value: s.Preset}
	}

	if s.Resolution == "" {
		s.Resolution = "original"
	}
	if _, ok := validResolutions[s.Resolution]; !ok {
		return Settings{}, &InvalidParameterError{Field: "resolution", Value: s.Resolution}
	}

	if s.FPS == "" {
		s.FPS = "original"
	}
	if _, ok := validFPS[s.FPS]; !ok {
		return Settings{}, &InvalidParameterError{Field: "fps", Value: s.FPS}
	}

	// "passthrough" is accepted as an alias for the empty cap.
	if s.VideoBitrate == "passthrough" {
		s.VideoBitrate = ""
	}
	if _, ok := validBitrates[s.VideoBitrate]; !ok {
		return Settings{}, &InvalidParameterError{Field: "vbitrate", Value: s.VideoBitrate}
	}

	if s.AudioBitrate == "" {
		s.AudioBitrate = "192k"
	}
	if !validAudioBitrate(s.AudioBitrate) {
		return Settings{}, &InvalidParameterError{Field: "abitrate", Value: s.AudioBitrate}
	}

	switch s.Encap {
	case "":
		s.Encap = EncapUDP
	case EncapUDP, EncapRTP:
	default:
		return Settings{}, &InvalidParameterError{Field: "encap", Value: string(s.Encap)}
	}

	if !validNIC(s.NIC) {
		return Settings{}, &InvalidParameterError{Field: "nic", Value: s.NIC}
	}

	return s, nil
}

// validAudioBitrate accepts conventional ffmpeg audio bitrate strings
// like "128k", "192k", "320k": digits followed by a single k/K suffix.
func validAudioBitrate(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 'k' && suffix != 'K' {
		return false
	}
	for _, c := range s[:len(s)-1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// validNIC bounds interface names to the Linux IFNAMSIZ character set.
// Empty means the default route.
func validNIC(s string) bool {
	if s == "" {
		return true
	}
	if len(s) > 15 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
