package engine

import "errors"

// Precondition errors are returned synchronously and never change
// channel state. Runtime failures (spawn/crash) move the channel to
// Error and are surfaced through the notifier as well.
var (
	// ErrAlreadyActive: the slot has a transcode or stream in flight.
	ErrAlreadyActive = errors.New("channel already active")

	// ErrAlreadyTranscoding: a transcode job is already running.
	ErrAlreadyTranscoding = errors.New("transcode already in progress")

	// ErrNotReady: the channel is not in a state that permits the
	// requested operation.
	ErrNotReady = errors.New("channel not ready")

	// ErrNoSource: no original media exists on the channel.
	ErrNoSource = errors.New("channel has no source media")

	// ErrProcessSpawnFailed: the media toolchain could not be launched.
	ErrProcessSpawnFailed = errors.New("process spawn failed")
)
