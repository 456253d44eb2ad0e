// Package upload receives source media, validates it and produces the
// channel thumbnail.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/media"
)

var allowedExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".ts": {}, ".m2ts": {},
	".mp3": {}, ".wav": {}, ".flac": {}, ".aac": {}, ".m4a": {}, ".ogg": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".aac": {}, ".m4a": {}, ".ogg": {},
}

// Service saves uploaded originals and renders thumbnails. Uploads for
// different channels may run concurrently; per-channel exclusivity is
// the engine's concern.
type Service struct {
	log           *zap.Logger
	originalsDir  string
	thumbnailsDir string
	ffmpeg        string
	ffprobe       string
}

// NewService creates an upload service around the media directories.
func NewService(log *zap.Logger, originalsDir, thumbnailsDir, ffmpeg, ffprobe string) *Service {
	return &Service{
		log:           log.Named("upload"),
		originalsDir:  originalsDir,
		thumbnailsDir: thumbnailsDir,
		ffmpeg:        ffmpeg,
		ffprobe:       ffprobe,
	}
}

// ValidateExtension rejects filenames outside the allow-list.
func ValidateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return &channel.InvalidParameterError{Field: "file extension", Value: ext}
	}
	return nil
}

// IsAudio reports whether the filename carries an audio-only extension.
func IsAudio(filename string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// sanitizeFilename reduces a client-supplied name to a safe basename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

// SaveOriginal stores the uploaded content under the channel-prefixed
// name. An existing file with the same name is reused untouched so
// re-uploads of large media are cheap.
func (s *Service) SaveOriginal(id int, filename string, r io.Reader) (path string, reused bool, err error) {
	if err := ValidateExtension(filename); err != nil {
		return "", false, err
	}
	clean := sanitizeFilename(filename)
	if clean == "" || clean == filepath.Ext(clean) {
		return "", false, &channel.InvalidParameterError{Field: "filename", Value: filename}
	}

	path = filepath.Join(s.originalsDir, fmt.Sprintf("CH%02d_%s", id+1, clean))
	if _, err := os.Stat(path); err == nil {
		s.log.Info("reusing existing file", zap.Int("channel", id), zap.String("file", clean))
		return path, true, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return "", false, fmt.Errorf("create original: %w", err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", false, fmt.Errorf("write original: %w", err)
	}

	s.log.Info("uploaded", zap.Int("channel", id), zap.String("file", clean),
		zap.Float64("size_mb", float64(written)/1048576))
	return path, false, nil
}

// GenerateThumbnail renders a 320x180 JPEG for the channel: a frame at
// 10% of duration for video, a waveform for audio. Failures are logged
// and swallowed; a missing thumbnail never blocks the pipeline.
func (s *Service) GenerateThumbnail(ctx context.Context, sourcePath string, id int) {
	thumb := filepath.Join(s.thumbnailsDir, fmt.Sprintf("ch%d.jpg", id))

	var argv []string
	if IsAudio(sourcePath) {
		argv = []string{
			s.ffmpeg, "-y", "-i", sourcePath,
			"-filter_complex", "showwavespic=s=320x180:colors=#ff6a00",
			"-frames:v", "1", thumb,
		}
	} else {
		dur := media.ProbeDuration(ctx, s.ffprobe, sourcePath)
		if dur <= 0 {
			dur = 10
		}
		argv = []string{
			s.ffmpeg, "-y", "-ss", fmt.Sprintf("%g", dur*0.1), "-i", sourcePath,
			"-vframes", "1",
			"-vf", "scale=320:180:force_original_aspect_ratio=decrease," +
				"pad=320:180:(ow-iw)/2:(oh-ih)/2:black",
			thumb,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Run(); err != nil {
		s.log.Error("thumbnail generation failed", zap.Int("channel", id), zap.Error(err))
		return
	}
	s.log.Info("thumbnail ready", zap.Int("channel", id))
}

// ThumbnailPath returns where the channel's thumbnail lives, whether or
// not it exists yet.
func (s *Service) ThumbnailPath(id int) string {
	return filepath.Join(s.thumbnailsDir, fmt.Sprintf("ch%d.jpg", id))
}
