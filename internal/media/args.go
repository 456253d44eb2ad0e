package media

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

// ArgBuilder accumulates a fully-enumerated argv for the media
// toolchain. Values are appended as discrete arguments, never
// interpolated into a shell string.
type ArgBuilder struct {
	args []string
}

// NewArgBuilder seeds the builder with the binary name.
func NewArgBuilder(bin string) *ArgBuilder {
	return &ArgBuilder{args: []string{bin}}
}

// With appends raw arguments.
func (b *ArgBuilder) With(args ...string) *ArgBuilder {
	b.args = append(b.args, args...)
	return b
}

// WithFlag appends "flag value" when value is non-empty.
func (b *ArgBuilder) WithFlag(flag, value string) *ArgBuilder {
	if strings.TrimSpace(value) != "" {
		b.args = append(b.args, flag, value)
	}
	return b
}

// Build returns a private copy of the argv.
func (b *ArgBuilder) Build() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

var scaleMap = map[string]string{
	"720p":  "1280:720",
	"1080p": "1920:1080",
	"1440p": "2560:1440",
	"4k":    "3840:2160",
}

var fpsMap = map[string]string{
	"23.976": "24000/1001",
	"29.97":  "30000/1001",
	"59.94":  "60000/1001",
}

// TranscodeArgs builds the argv converting src to an MPEG-TS
// intermediate at dst, with progress reporting on stdout. Settings must
// already be validated; this function assumes every field is in its
// enumerated set.
func TranscodeArgs(ffmpeg, src, dst string, s channel.Settings) []string {
	b := NewArgBuilder(ffmpeg).With("-y", "-i", src)

	if s.Codec == "copy" {
		// Stream-copy remux into MPEG-TS, no re-encode.
		b.With("-c", "copy")
	} else {
		vcodec := "libx264"
		if s.Codec == "h265" {
			vcodec = "libx265"
		}
		b.With(
			"-c:v", vcodec,
			"-preset", s.Preset,
			"-b:v", s.VideoBitrate,
			"-maxrate", s.VideoBitrate,
			"-bufsize", encodeBufsize(s.VideoBitrate),
		)
		if scale, ok := scaleMap[s.Resolution]; ok {
			b.With("-vf", fmt.Sprintf(
				"scale=%s:force_original_aspect_ratio=decrease,pad=%s:(ow-iw)/2:(oh-ih)/2",
				scale, scale))
		}
		if s.FPS != "original" {
			r := s.FPS
			if frac, ok := fpsMap[r]; ok {
				r = frac
			}
			b.With("-r", r)
		}
		b.With("-c:a", "aac", "-b:a", s.AudioBitrate)
	}

	return b.With("-f", "mpegts", "-progress", "pipe:1", "-nostats", dst).Build()
}

// StreamArgs builds the argv pushing file continuously to the multicast
// group. preTranscoded selects pure stream copy regardless of bitrate.
func StreamArgs(ffmpeg, file string, s channel.Settings, groupIP string, port int, preTranscoded bool) []string {
	b := NewArgBuilder(ffmpeg).With("-re")
	if s.Loop {
		b.With("-stream_loop", "-1")
	}
	b.With("-i", file)

	if preTranscoded || s.VideoBitrate == "" {
		b.With("-c", "copy")
	} else {
		b.With(
			"-b:v", s.VideoBitrate,
			"-maxrate", s.VideoBitrate,
			"-bufsize", strconv.Itoa(BitrateKbps(s.VideoBitrate)*2)+"k",
		)
	}

	params := "pkt_size=1316&ttl=10"
	if ip := nicIPv4(s.NIC); ip != "" {
		params += "&localaddr=" + ip
	}

	scheme, format := "udp", "mpegts"
	if s.Encap == channel.EncapRTP {
		scheme, format = "rtp", "rtp_mpegts"
	}
	url := fmt.Sprintf("%s://%s:%d?%s", scheme, groupIP, port, params)

	return b.With("-f", format, url).Build()
}

// ProbeDurationArgs builds the argv asking the toolchain's inspection
// utility for the container duration in seconds.
func ProbeDurationArgs(ffprobe, file string) []string {
	return []string{
		ffprobe, "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	}
}

// ProbeStreamsArgs builds the argv for full stream inspection (JSON).
func ProbeStreamsArgs(ffprobe, file string) []string {
	return []string{
		ffprobe, "-v", "error",
		"-print_format", "json",
		"-show_streams", "-show_format",
		file,
	}
}

// BitrateKbps converts "4M" / "192k" style bitrate strings to kbit/s.
// Unparseable input falls back to 4000 (the 4M default cap).
func BitrateKbps(s string) int {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(v, "M"):
		if f, err := strconv.ParseFloat(v[:len(v)-1], 64); err == nil {
			return int(f * 1000)
		}
	case strings.HasSuffix(v, "K"):
		if f, err := strconv.ParseFloat(v[:len(v)-1], 64); err == nil {
			return int(f)
		}
	}
	return 4000
}

// BitrateBps converts "6M" / "192k" / "4000000" to bits per second,
// 0 on error.
func BitrateBps(s string) int {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(v, "M"):
		if f, err := strconv.ParseFloat(v[:len(v)-1], 64); err == nil {
			return int(f * 1_000_000)
		}
	case strings.HasSuffix(v, "K"):
		if f, err := strconv.ParseFloat(v[:len(v)-1], 64); err == nil {
			return int(f * 1_000)
		}
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// encodeBufsize returns a VBV buffer of 2x the video bitrate.
func encodeBufsize(vbitrate string) string {
	return strconv.Itoa(BitrateKbps(vbitrate)*2) + "k"
}

// nicIPv4 resolves a bound interface name to its first IPv4 address.
// Returns "" when the interface is unset, missing, or has no IPv4;
// interface selection is advisory, so failure falls back to the default
// route rather than erroring.
func nicIPv4(name string) string {
	if name == "" {
		return ""
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
