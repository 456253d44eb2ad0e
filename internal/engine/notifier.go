package engine

import "github.com/mediacastd/playout-server/internal/domain/channel"

// Notifier is the engine's event sink. The control plane injects an
// implementation (a websocket hub in this server); the engine has no
// knowledge of how notifications are transported. Implementations must
// not block: they are called from the engine's monitoring goroutines.
type Notifier interface {
	TranscodeStarted(id int, settings channel.Settings)
	TranscodeProgress(id, percent, etaSeconds int)
	TranscodeCompleted(id int, outputPath string)
	TranscodeFailed(id int, message string)
	StateChanged(id int, state channel.State)
	StreamStopped(id int)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TranscodeStarted(int, channel.Settings) {}
func (NopNotifier) TranscodeProgress(int, int, int)        {}
func (NopNotifier) TranscodeCompleted(int, string)         {}
func (NopNotifier) TranscodeFailed(int, string)            {}
func (NopNotifier) StateChanged(int, channel.State)        {}
func (NopNotifier) StreamStopped(int)                      {}
