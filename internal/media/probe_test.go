package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

const sampleProbeJSON = `{
	"streams": [
		{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
		 "r_frame_rate": "30000/1001", "bit_rate": "5500000"},
		{"codec_type": "audio", "codec_name": "aac", "bit_rate": "160000"}
	],
	"format": {"bit_rate": "5800000"}
}`

func TestParseStreamInfo(t *testing.T) {
	info := parseStreamInfo([]byte(sampleProbeJSON))
	require.NotNil(t, info)

	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 5500000, info.VideoBitrate)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 160000, info.AudioBitrate)
}

func TestParseStreamInfoContainerBitrateFallback(t *testing.T) {
	info := parseStreamInfo([]byte(`{
		"streams": [{"codec_type": "video", "codec_name": "h264"}],
		"format": {"bit_rate": "3000000"}
	}`))
	require.NotNil(t, info)
	assert.Equal(t, 3000000, info.VideoBitrate)
}

func TestParseStreamInfoMalformed(t *testing.T) {
	assert.Nil(t, parseStreamInfo([]byte("not json")))
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Zero(t, parseFrameRate("25"))
	assert.Zero(t, parseFrameRate("30/0"))
	assert.Zero(t, parseFrameRate(""))
}

func TestSpecsMatch(t *testing.T) {
	base := &StreamInfo{
		VideoCodec:   "h264",
		Width:        1920,
		Height:       1080,
		FPS:          29.97,
		VideoBitrate: 5_500_000,
		AudioCodec:   "aac",
		AudioBitrate: 160_000,
	}
	target := channel.Settings{
		Codec:        "h264",
		Resolution:   "1080p",
		FPS:          "29.97",
		VideoBitrate: "6M",
		AudioBitrate: "192k",
	}

	assert.True(t, SpecsMatch(base, target), "matching source skips the re-encode")

	t.Run("nil info never matches", func(t *testing.T) {
		assert.False(t, SpecsMatch(nil, target))
	})

	t.Run("codec mismatch", func(t *testing.T) {
		info := *base
		info.VideoCodec = "mpeg2video"
		assert.False(t, SpecsMatch(&info, target))
	})

	t.Run("h265 target wants hevc source", func(t *testing.T) {
		tgt := target
		tgt.Codec = "h265"
		assert.False(t, SpecsMatch(base, tgt))

		info := *base
		info.VideoCodec = "hevc"
		assert.True(t, SpecsMatch(&info, tgt))
	})

	t.Run("non-aac audio forces encode", func(t *testing.T) {
		info := *base
		info.AudioCodec = "mp3"
		assert.False(t, SpecsMatch(&info, target))
	})

	t.Run("resolution mismatch", func(t *testing.T) {
		info := *base
		info.Width, info.Height = 1280, 720
		assert.False(t, SpecsMatch(&info, target))
	})

	t.Run("original resolution accepts anything", func(t *testing.T) {
		tgt := target
		tgt.Resolution = "original"
		info := *base
		info.Width, info.Height = 640, 480
		assert.True(t, SpecsMatch(&info, tgt))
	})

	t.Run("fps mismatch", func(t *testing.T) {
		info := *base
		info.FPS = 24
		assert.False(t, SpecsMatch(&info, target))
	})

	t.Run("bitrate within 20 percent headroom", func(t *testing.T) {
		info := *base
		info.VideoBitrate = 7_100_000 // just under 6M * 1.2
		assert.True(t, SpecsMatch(&info, target))

		info.VideoBitrate = 7_300_000 // just over
		assert.False(t, SpecsMatch(&info, target))
	})

	t.Run("unknown source bitrate is trusted", func(t *testing.T) {
		info := *base
		info.VideoBitrate = 0
		assert.True(t, SpecsMatch(&info, target))
	})
}
