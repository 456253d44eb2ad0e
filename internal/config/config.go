package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loaded once at startup.
// Every key has a built-in default so the server starts even when the
// config file is absent or partially edited.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Streaming StreamingConfig `yaml:"streaming"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Redis     RedisConfig     `yaml:"redis"`
}

type ServerConfig struct {
	Addr        string `yaml:"address"`
	Port        string `yaml:"port"`
	MaxUploadGB int64  `yaml:"max_upload_gb"`
}

type StreamingConfig struct {
	MaxChannels    int    `yaml:"max_channels"`
	MulticastBase  string `yaml:"multicast_base"` // first three octets, e.g. "239.252.100"
	MulticastPort  int    `yaml:"multicast_port"` // shared by all channels
	DefaultEncap   string `yaml:"default_encap"`  // "udp" or "rtp"
	DefaultLoop    bool   `yaml:"default_loop"`
	DefaultBitrate string `yaml:"default_bitrate"` // "" = passthrough
	SelectedNIC    string `yaml:"selected_nic"`
	MediaPath      string `yaml:"media_path"`
	AutoStart      bool   `yaml:"auto_start"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	FFprobePath    string `yaml:"ffprobe_path"`
}

type TranscodeConfig struct {
	Codec        string `yaml:"codec"`
	Preset       string `yaml:"preset"`
	VideoBitrate string `yaml:"vbitrate"`
	AudioBitrate string `yaml:"abitrate"`
	Resolution   string `yaml:"resolution"`
	FPS          string `yaml:"fps"`
}

type RedisConfig struct {
	Addr string `yaml:"address"`
	DB   int    `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "0.0.0.0",
			Port:        "5000",
			MaxUploadGB: 20,
		},
		Streaming: StreamingConfig{
			MaxChannels:    40,
			MulticastBase:  "239.252.100",
			MulticastPort:  1234,
			DefaultEncap:   "udp",
			DefaultLoop:    true,
			DefaultBitrate: "",
			SelectedNIC:    "",
			MediaPath:      defaultMediaPath(),
			AutoStart:      false,
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
		},
		Transcode: TranscodeConfig{
			Codec:        "h264",
			Preset:       "fast",
			VideoBitrate: "8M",
			AudioBitrate: "192k",
			Resolution:   "1080p",
			FPS:          "original",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
	}
}

// Load reads the YAML config at path and overlays it on the defaults.
// A missing file is not an error; a malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// OriginalsDir is where uploaded source files live.
func (c *Config) OriginalsDir() string {
	return filepath.Join(c.Streaming.MediaPath, "originals")
}

// TranscodedDir is where transcode output (.ts) files live.
func (c *Config) TranscodedDir() string {
	return filepath.Join(c.Streaming.MediaPath, "transcoded")
}

// ThumbnailsDir is where channel thumbnails live.
func (c *Config) ThumbnailsDir() string {
	return filepath.Join(c.Streaming.MediaPath, "thumbnails")
}

// EnsureDirs creates the media directory tree.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.OriginalsDir(), c.TranscodedDir(), c.ThumbnailsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	return nil
}

func defaultMediaPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "media"
	}
	return filepath.Join(home, "playout", "media")
}
