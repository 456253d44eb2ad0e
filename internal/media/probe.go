package media

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

const (
	durationProbeTimeout = 15 * time.Second
	streamProbeTimeout   = 20 * time.Second
)

// ProbeDuration returns the media duration of file in seconds, or 0 on
// any error. A zero duration disables percent-based progress but never
// blocks a transcode.
func ProbeDuration(ctx context.Context, ffprobe, file string) float64 {
	ctx, cancel := context.WithTimeout(ctx, durationProbeTimeout)
	defer cancel()

	argv := ProbeDurationArgs(ffprobe, file)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// StreamInfo describes the first video and audio stream of a file.
type StreamInfo struct {
	VideoCodec   string
	Width        int
	Height       int
	FPS          float64
	VideoBitrate int // bps
	AudioCodec   string
	AudioBitrate int // bps
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		BitRate string `json:"bit_rate"`
	} `json:"format"`
}

// ProbeStreams inspects file and returns its first video/audio stream
// parameters. Returns nil on any error; callers treat that as "specs do
// not match".
func ProbeStreams(ctx context.Context, ffprobe, file string) *StreamInfo {
	ctx, cancel := context.WithTimeout(ctx, streamProbeTimeout)
	defer cancel()

	argv := ProbeStreamsArgs(ffprobe, file)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		return nil
	}
	return parseStreamInfo(out)
}

func parseStreamInfo(raw []byte) *StreamInfo {
	var data ffprobeOutput
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}

	info := &StreamInfo{}
	for _, s := range data.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
			info.VideoBitrate, _ = strconv.Atoi(s.BitRate)
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = s.CodecName
			info.AudioBitrate, _ = strconv.Atoi(s.BitRate)
		}
	}

	// Container-level bitrate as fallback when the stream omits it.
	if info.VideoBitrate == 0 {
		info.VideoBitrate, _ = strconv.Atoi(data.Format.BitRate)
	}
	return info
}

func parseFrameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

var fpsFloat = map[string]float64{
	"23.976": 24000.0 / 1001,
	"29.97":  30000.0 / 1001,
	"59.94":  60000.0 / 1001,
}

var resolutionWH = map[string][2]int{
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"4k":    {3840, 2160},
}

// SpecsMatch reports whether info already satisfies the target
// settings, meaning a stream-copy remux is sufficient and the full
// re-encode can be skipped. Bitrates are allowed 20% headroom over the
// target; audio must already be AAC (the encode target).
func SpecsMatch(info *StreamInfo, s channel.Settings) bool {
	if info == nil || info.VideoCodec == "" {
		return false
	}

	expected := "h264"
	if s.Codec == "h265" {
		expected = "hevc"
	}
	if !strings.EqualFold(info.VideoCodec, expected) {
		return false
	}
	if !strings.EqualFold(info.AudioCodec, "aac") {
		return false
	}

	if s.Resolution != "original" {
		if wh, ok := resolutionWH[s.Resolution]; ok {
			if info.Width != wh[0] || info.Height != wh[1] {
				return false
			}
		}
	}

	if s.FPS != "original" {
		target, ok := fpsFloat[s.FPS]
		if !ok {
			target, _ = strconv.ParseFloat(s.FPS, 64)
		}
		if target > 0 && info.FPS > 0 && math.Abs(info.FPS-target) > 0.1 {
			return false
		}
	}

	if t := BitrateBps(s.VideoBitrate); t > 0 && info.VideoBitrate > 0 {
		if float64(info.VideoBitrate) > float64(t)*1.2 {
			return false
		}
	}
	if t := BitrateBps(s.AudioBitrate); t > 0 && info.AudioBitrate > 0 {
		if float64(info.AudioBitrate) > float64(t)*1.2 {
			return false
		}
	}

	return true
}
