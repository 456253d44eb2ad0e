package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAppliesDefaults(t *testing.T) {
	s, err := Validate(Settings{})
	require.NoError(t, err)

	assert.Equal(t, "copy", s.Codec)
	assert.Equal(t, "fast", s.Preset)
	assert.Equal(t, "original", s.Resolution)
	assert.Equal(t, "original", s.FPS)
	assert.Empty(t, s.VideoBitrate)
	assert.Equal(t, "192k", s.AudioBitrate)
	assert.Equal(t, EncapUDP, s.Encap)
}

func TestValidatePassthroughAlias(t *testing.T) {
	s, err := Validate(Settings{VideoBitrate: "passthrough"})
	require.NoError(t, err)
	assert.Empty(t, s.VideoBitrate)
}

func TestValidateRejectsOutOfSetValues(t *testing.T) {
	cases := []struct {
		name  string
		in    Settings
		field string
	}{
		{"unknown codec", Settings{Codec: "mpeg2"}, "codec"},
		{"shell injection in codec", Settings{Codec: "copy; rm -rf /"}, "codec"},
		{"unknown preset", Settings{Preset: "veryslow"}, "preset"},
		{"unknown resolution", Settings{Resolution: "480p"}, "resolution"},
		{"unknown fps", Settings{FPS: "48"}, "fps"},
		{"arbitrary vbitrate", Settings{VideoBitrate: "7M"}, "vbitrate"},
		{"vbitrate with flag smuggling", Settings{VideoBitrate: "1M -f evil"}, "vbitrate"},
		{"abitrate without suffix", Settings{AudioBitrate: "192"}, "abitrate"},
		{"abitrate with spaces", Settings{AudioBitrate: "192 k"}, "abitrate"},
		{"unknown encap", Settings{Encap: "http"}, "encap"},
		{"nic too long", Settings{NIC: "interface-name-way-too-long"}, "nic"},
		{"nic with slash", Settings{NIC: "eth0/../"}, "nic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.in)
			var invalid *InvalidParameterError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}

func TestValidateAcceptsFullEnumeratedSets(t *testing.T) {
	for _, codec := range []string{"copy", "h264", "h265"} {
		for _, preset := range []string{"ultrafast", "superfast", "fast", "medium", "slow"} {
			_, err := Validate(Settings{Codec: codec, Preset: preset})
			assert.NoError(t, err, "%s/%s", codec, preset)
		}
	}
	for _, res := range []string{"original", "720p", "1080p", "1440p", "4k"} {
		_, err := Validate(Settings{Resolution: res})
		assert.NoError(t, err, res)
	}
	for _, fps := range []string{"original", "23.976", "24", "25", "29.97", "30", "50", "59.94", "60"} {
		_, err := Validate(Settings{FPS: fps})
		assert.NoError(t, err, fps)
	}
	for _, br := range BitratePresets {
		_, err := Validate(Settings{VideoBitrate: br})
		assert.NoError(t, err, br)
	}
}

func TestValidateNICNames(t *testing.T) {
	for _, nic := range []string{"", "eth0", "enp3s0", "br-lan", "bond0.100", "wg_mcast"} {
		_, err := Validate(Settings{NIC: nic})
		assert.NoError(t, err, nic)
	}
}

func TestInvalidParameterErrorMessage(t *testing.T) {
	err := &InvalidParameterError{Field: "codec", Value: "mpeg2"}
	assert.Equal(t, `invalid codec: "mpeg2"`, err.Error())
}
