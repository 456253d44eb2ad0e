package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/infrastructure/procsup"
)

// Store persists channel snapshots and global settings so a restarted
// server can rehydrate its slots. Persistence is best effort: a write
// failure is logged, never propagated into an operation result.
type Store interface {
	SaveChannel(ctx context.Context, snap *channel.Snapshot) error
	DeleteChannel(ctx context.Context, id int) error
	LoadChannels(ctx context.Context) ([]*channel.Snapshot, error)
	SaveGlobal(ctx context.Context, gs channel.GlobalSettings, tc channel.Settings) error
	LoadGlobal(ctx context.Context) (*channel.GlobalSettings, *channel.Settings, error)
}

// slot is the live state of one channel. All fields are guarded by the
// Manager's mutex; the job and stream values run their own monitoring
// goroutines and report back through identity-checked callbacks.
type slot struct {
	id             int
	state          channel.State
	filename       string
	originalPath   string
	transcodedPath string
	preTranscoded  bool
	settings       channel.Settings
	job            *TranscodeJob
	stream         *StreamProcess
	progress       int
	etaSeconds     int
	lastError      string

	// Diagnostic ring shared by every subprocess this slot spawns.
	logs *procsup.LineBuffer
}

// Manager owns the fixed pool of channel slots and is the sole entry
// point the control plane calls. State-transition bookkeeping happens
// under one mutex; slow subprocess spawns and teardowns happen outside
// it, serialized per channel by a gate so concurrent operations on the
// same id always observe a consistent before/after state.
type Manager struct {
	log      *zap.Logger
	notifier Notifier
	alloc    Allocator
	spawn    SpawnFunc
	tools    Toolchain
	store    Store

	transcodedDir string
	thumbnailsDir string
	defaults      channel.Settings

	mu       sync.Mutex
	slots    []*slot
	global   channel.GlobalSettings
	globalTC channel.Settings

	// Per-channel gates serializing mutating operations on the same id.
	gates sync.Map // map[int]chan struct{}
}

// Params configures a Manager.
type Params struct {
	Log             *zap.Logger
	Notifier        Notifier
	Allocator       Allocator
	Spawn           SpawnFunc // nil selects the real subprocess spawner
	Tools           Toolchain
	Store           Store // nil disables persistence
	TranscodedDir   string
	ThumbnailsDir   string
	Defaults        channel.Settings
	Global          channel.GlobalSettings
	GlobalTranscode channel.Settings
}

// NewManager creates the fixed pool: every slot exists from the start
// and is never destroyed, only logically reset on removal.
func NewManager(p Params) *Manager {
	log := p.Log.Named("engine")

	if p.Notifier == nil {
		p.Notifier = NopNotifier{}
	}
	if p.Spawn == nil {
		p.Spawn = func(opts procsup.Options) (procsup.Process, error) {
			return procsup.Spawn(log, opts)
		}
	}

	m := &Manager{
		log:           log,
		notifier:      p.Notifier,
		alloc:         p.Allocator,
		spawn:         p.Spawn,
		tools:         p.Tools,
		store:         p.Store,
		transcodedDir: p.TranscodedDir,
		thumbnailsDir: p.ThumbnailsDir,
		defaults:      p.Defaults,
		global:        p.Global,
		globalTC:      p.GlobalTranscode,
	}

	m.slots = make([]*slot, p.Allocator.MaxChannels())
	for i := range m.slots {
		m.slots[i] = &slot{
			id:       i,
			state:    channel.StateEmpty,
			settings: p.Defaults,
			logs:     &procsup.LineBuffer{},
		}
	}
	return m
}

// MaxChannels returns the fixed pool size.
func (m *Manager) MaxChannels() int { return len(m.slots) }

// ---------------------------------------------------------------------------
// Per-channel serialization
// ---------------------------------------------------------------------------

// lock acquires the channel's gate. Operations on different ids run
// concurrently; same-id mutations queue here.
func (m *Manager) lock(id int) func() {
	v, _ := m.gates.LoadOrStore(id, make(chan struct{}, 1))
	g := v.(chan struct{})
	g <- struct{}{}
	return func() { <-g }
}

func (m *Manager) slot(id int) (*slot, error) {
	if id < 0 || id >= len(m.slots) {
		return nil, &channel.InvalidParameterError{Field: "id", Value: fmt.Sprint(id)}
	}
	return m.slots[id], nil
}

// ---------------------------------------------------------------------------
// Channel operations
// ---------------------------------------------------------------------------

// AddChannel registers source media on a slot. Fails ErrAlreadyActive
// while a transcode or stream is in flight. A new original invalidates
// any previous transcoded artifact.
func (m *Manager) AddChannel(id int, originalPath, filename string) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	switch st.state {
	case channel.StateTranscoding, channel.StateStreaming:
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	st.filename = filename
	st.originalPath = originalPath
	st.transcodedPath = ""
	st.preTranscoded = false
	st.progress = 0
	st.etaSeconds = 0
	st.lastError = ""
	st.state = channel.StateHasOriginal
	m.mu.Unlock()

	m.log.Info("channel loaded", zap.Int("channel", id), zap.String("file", filename))
	m.notifier.StateChanged(id, channel.StateHasOriginal)
	m.persistSlot(st)
	return nil
}

// StartTranscode validates the settings and launches a transcode job.
// The duration probe and spawn run asynchronously so the caller never
// blocks on subprocess I/O; spawn failures surface through the event
// sink as a channel error.
func (m *Manager) StartTranscode(ctx context.Context, id int, settings channel.Settings) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	settings, err = channel.Validate(settings)
	if err != nil {
		return err
	}

	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	switch st.state {
	case channel.StateTranscoding:
		m.mu.Unlock()
		return ErrAlreadyTranscoding
	case channel.StateStreaming:
		m.mu.Unlock()
		return ErrAlreadyActive
	case channel.StateHasOriginal, channel.StateReady, channel.StateError:
	default:
		m.mu.Unlock()
		return ErrNotReady
	}
	if st.originalPath == "" {
		m.mu.Unlock()
		return ErrNoSource
	}

	dst := filepath.Join(m.transcodedDir, fmt.Sprintf("ch%d.ts", id))
	job := newTranscodeJob(m.log, id, st.originalPath, dst, settings,
		m.tools, m.spawn, st.logs, m.jobCallbacks(st))

	st.job = job
	st.settings = settings
	st.progress = 0
	st.etaSeconds = 0
	st.lastError = ""
	st.state = channel.StateTranscoding
	m.mu.Unlock()

	m.log.Info("transcode started", zap.Int("channel", id),
		zap.String("codec", settings.Codec), zap.String("preset", settings.Preset))
	m.notifier.TranscodeStarted(id, settings)
	m.notifier.StateChanged(id, channel.StateTranscoding)
	m.persistSlot(st)

	// The job outlives the request that started it; keep the caller's
	// context values but not its cancellation.
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		if err := job.start(jobCtx); err != nil {
			m.jobFailed(st, job, err.Error())
		}
	}()
	return nil
}

// jobCallbacks wires a job's terminal transitions back into channel
// state. Every callback checks job identity: a stale job that lost its
// slot (removal, replacement) must not clobber newer state.
func (m *Manager) jobCallbacks(st *slot) jobCallbacks {
	return jobCallbacks{
		onProgress: func(percent, eta int) {
			m.mu.Lock()
			st.progress = percent
			st.etaSeconds = eta
			m.mu.Unlock()
			m.notifier.TranscodeProgress(st.id, percent, eta)
		},
		onComplete: func(outputPath string) {
			m.mu.Lock()
			if st.job == nil {
				m.mu.Unlock()
				return
			}
			st.job = nil
			st.transcodedPath = outputPath
			st.preTranscoded = true
			st.state = channel.StateReady
			m.mu.Unlock()

			m.log.Info("transcode complete", zap.Int("channel", st.id), zap.String("output", outputPath))
			m.notifier.TranscodeCompleted(st.id, outputPath)
			m.notifier.StateChanged(st.id, channel.StateReady)
			m.persistSlot(st)
		},
		onCancelled: func() {
			m.mu.Lock()
			if st.job == nil {
				m.mu.Unlock()
				return
			}
			st.job = nil
			if st.transcodedPath != "" {
				st.state = channel.StateReady
			} else {
				st.state = channel.StateHasOriginal
			}
			next := st.state
			m.mu.Unlock()

			m.log.Info("transcode cancelled", zap.Int("channel", st.id))
			m.notifier.StateChanged(st.id, next)
			m.persistSlot(st)
		},
		onFailed: func(message string) {
			m.jobFailed(st, nil, message)
		},
	}
}

func (m *Manager) jobFailed(st *slot, job *TranscodeJob, message string) {
	m.mu.Lock()
	if st.job == nil || (job != nil && st.job != job) {
		m.mu.Unlock()
		return
	}
	st.job = nil
	st.state = channel.StateError
	st.lastError = message
	m.mu.Unlock()

	m.log.Error("transcode failed", zap.Int("channel", st.id), zap.String("error", message))
	m.notifier.TranscodeFailed(st.id, message)
	m.notifier.StateChanged(st.id, channel.StateError)
	m.persistSlot(st)
}

// CancelTranscode cancels the in-flight job. The result transition
// (Ready or HasOriginal) lands through the job's cancelled callback;
// this call blocks until the job settles, bounded by the grace period.
func (m *Manager) CancelTranscode(id int) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	if st.state != channel.StateTranscoding || st.job == nil {
		m.mu.Unlock()
		return ErrNotReady
	}
	job := st.job
	m.mu.Unlock()

	job.cancel()
	return nil
}

// StartStream launches the continuous multicast output for a channel.
// The channel transitions to Streaming immediately; a spawn failure
// moves it to Error and is also returned to the caller.
func (m *Manager) StartStream(id int, useTranscoded bool) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	unlock := m.lock(id)
	defer unlock()

	groupIP, port, err := m.alloc.Allocate(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	switch st.state {
	case channel.StateStreaming:
		m.mu.Unlock()
		return ErrAlreadyActive
	case channel.StateHasOriginal, channel.StateReady:
	default:
		m.mu.Unlock()
		return ErrNotReady
	}

	file := st.originalPath
	preTranscoded := false
	if useTranscoded && st.transcodedPath != "" {
		file = st.transcodedPath
		preTranscoded = true
	}
	if file == "" {
		m.mu.Unlock()
		return ErrNoSource
	}

	// Launch-time parameters: per-channel settings with global
	// fallbacks. The stream keeps these until explicitly restarted.
	settings := st.settings
	if settings.VideoBitrate == "" {
		settings.VideoBitrate = m.global.Bitrate
	}
	if settings.NIC == "" {
		settings.NIC = m.global.NIC
	}

	stream := newStreamProcess(m.log, id, file, settings, groupIP, port,
		preTranscoded, m.tools.FFmpeg, m.spawn, st.logs, m.streamExit(st))
	st.stream = stream
	st.lastError = ""
	st.state = channel.StateStreaming
	m.mu.Unlock()

	m.log.Info("stream started", zap.Int("channel", id),
		zap.String("dest", fmt.Sprintf("%s://%s:%d", settings.Encap, groupIP, port)),
		zap.String("file", filepath.Base(file)))
	m.notifier.StateChanged(id, channel.StateStreaming)

	if err := stream.start(); err != nil {
		m.mu.Lock()
		if st.stream == stream {
			st.stream = nil
			st.state = channel.StateError
			st.lastError = err.Error()
		}
		m.mu.Unlock()
		m.notifier.StateChanged(id, channel.StateError)
		return err
	}
	return nil
}

// streamExit handles a stream ending on its own. An expected end
// (stop-initiated) is fully handled by the stopping caller; an
// unexpected death moves the channel to Error with the diagnostic
// attached. No automatic restart: operator-level supervision is the
// recovery boundary.
func (m *Manager) streamExit(st *slot) func(expected bool, diag string) {
	return func(expected bool, diag string) {
		if expected {
			return
		}

		m.mu.Lock()
		if st.state != channel.StateStreaming {
			m.mu.Unlock()
			return
		}
		st.stream = nil
		st.state = channel.StateError
		st.lastError = diag
		m.mu.Unlock()

		m.log.Error("stream died unexpectedly", zap.Int("channel", st.id), zap.String("diag", diag))
		m.notifier.StreamStopped(st.id)
		m.notifier.StateChanged(st.id, channel.StateError)
		m.persistSlot(st)
	}
}

// StopStream performs the shared teardown and reverts the channel to
// its prior non-streaming state. Blocks until the process is gone or
// the grace period escalation is exhausted.
func (m *Manager) StopStream(id int) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	if st.state != channel.StateStreaming || st.stream == nil {
		m.mu.Unlock()
		return ErrNotReady
	}
	stream := st.stream
	m.mu.Unlock()

	stream.stop()

	m.mu.Lock()
	if st.stream == stream {
		st.stream = nil
		if st.transcodedPath != "" {
			st.state = channel.StateReady
		} else {
			st.state = channel.StateHasOriginal
		}
	}
	next := st.state
	m.mu.Unlock()

	m.log.Info("stream stopped", zap.Int("channel", id))
	m.notifier.StreamStopped(id)
	m.notifier.StateChanged(id, next)
	m.persistSlot(st)
	return nil
}

// ChannelResult is one channel's outcome in a bulk operation.
type ChannelResult struct {
	ID  int
	Err error
}

// StartAll starts a stream on every slot. Each channel's result is
// collected independently; one failure never aborts the rest.
func (m *Manager) StartAll(useTranscoded bool) []ChannelResult {
	results := make([]ChannelResult, len(m.slots))
	var g errgroup.Group
	g.SetLimit(8)

	for i := range m.slots {
		id := i
		g.Go(func() error {
			results[id] = ChannelResult{ID: id, Err: m.StartStream(id, useTranscoded)}
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	m.log.Info("start all", zap.Int("started", ok), zap.Int("failed", len(results)-ok))
	return results
}

// StopAll stops every streaming channel in parallel (each teardown is
// bounded by the grace period, so serial stops would take minutes).
func (m *Manager) StopAll() []ChannelResult {
	results := make([]ChannelResult, len(m.slots))
	var g errgroup.Group
	g.SetLimit(16)

	for i := range m.slots {
		id := i
		g.Go(func() error {
			results[id] = ChannelResult{ID: id, Err: m.StopStream(id)}
			return nil
		})
	}
	_ = g.Wait()

	m.log.Info("stop all")
	return results
}

// RemoveChannel stops any active job or stream (best effort, bounded by
// the grace period), deletes every artifact, and resets the slot to
// Empty.
func (m *Manager) RemoveChannel(id int) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	job := st.job
	stream := st.stream
	m.mu.Unlock()

	if job != nil {
		job.cancel()
	}
	if stream != nil {
		stream.stop()
	}

	m.mu.Lock()
	paths := []string{st.originalPath, st.transcodedPath, m.thumbnailPath(id)}
	name := st.filename
	st.state = channel.StateEmpty
	st.filename = ""
	st.originalPath = ""
	st.transcodedPath = ""
	st.preTranscoded = false
	st.settings = m.defaults
	st.job = nil
	st.stream = nil
	st.progress = 0
	st.etaSeconds = 0
	st.lastError = ""
	m.mu.Unlock()

	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.log.Warn("could not delete artifact", zap.Int("channel", id),
				zap.String("path", p), zap.Error(err))
		}
	}

	m.log.Info("channel removed", zap.Int("channel", id), zap.String("file", name))
	m.notifier.StateChanged(id, channel.StateEmpty)
	m.deletePersisted(id)
	return nil
}

// UpdateSettings validates and stores new per-channel settings. A
// running stream keeps its launch-time parameters until explicitly
// restarted; this call alone never restarts anything.
func (m *Manager) UpdateSettings(id int, settings channel.Settings) error {
	st, err := m.slot(id)
	if err != nil {
		return err
	}
	settings, err = channel.Validate(settings)
	if err != nil {
		return err
	}

	unlock := m.lock(id)
	defer unlock()

	m.mu.Lock()
	st.settings = settings
	m.mu.Unlock()

	m.persistSlot(st)
	return nil
}

// UpdateGlobalSettings validates and stores the server-wide streaming
// profile applied to future stream launches.
func (m *Manager) UpdateGlobalSettings(gs channel.GlobalSettings) error {
	if gs.Bitrate == "passthrough" {
		gs.Bitrate = ""
	}
	if _, err := channel.Validate(channel.Settings{VideoBitrate: gs.Bitrate, NIC: gs.NIC}); err != nil {
		return err
	}

	m.mu.Lock()
	m.global = gs
	tc := m.globalTC
	m.mu.Unlock()

	m.log.Info("global settings updated",
		zap.String("bitrate", orPassthrough(gs.Bitrate)), zap.String("nic", orDefault(gs.NIC)))
	m.persistGlobal(gs, tc)
	return nil
}

// UpdateGlobalTranscode validates and stores the default transcode
// profile used when a request carries no overrides.
func (m *Manager) UpdateGlobalTranscode(s channel.Settings) error {
	s, err := channel.Validate(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.globalTC = s
	gs := m.global
	m.mu.Unlock()

	m.log.Info("global transcode profile updated", zap.String("codec", s.Codec))
	m.persistGlobal(gs, s)
	return nil
}

// GlobalSettings returns the current server-wide streaming profile.
func (m *Manager) GlobalSettings() channel.GlobalSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global
}

// GlobalTranscode returns the current default transcode profile.
func (m *Manager) GlobalTranscode() channel.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalTC
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// Snapshot returns one channel's externally visible state.
func (m *Manager) Snapshot(id int) (*channel.Snapshot, error) {
	st, err := m.slot(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(st), nil
}

// Snapshots returns every slot's state, indexed by id.
func (m *Manager) Snapshots() []*channel.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*channel.Snapshot, len(m.slots))
	for i, st := range m.slots {
		out[i] = m.snapshotLocked(st)
	}
	return out
}

func (m *Manager) snapshotLocked(st *slot) *channel.Snapshot {
	groupIP, port, _ := m.alloc.Allocate(st.id)
	snap := &channel.Snapshot{
		ID:             st.id,
		State:          st.state,
		Filename:       st.filename,
		OriginalPath:   st.originalPath,
		TranscodedPath: st.transcodedPath,
		Settings:       st.settings,
		GroupIP:        groupIP,
		Port:           port,
		Progress:       st.progress,
		ETASeconds:     st.etaSeconds,
		LastError:      st.lastError,
	}
	if st.stream != nil {
		snap.RestartCount = st.stream.RestartCount()
	}
	return snap
}

// ChannelLogs returns the last n diagnostic lines from the channel's
// subprocesses, newest first.
func (m *Manager) ChannelLogs(id, n int) ([]string, error) {
	st, err := m.slot(id)
	if err != nil {
		return nil, err
	}
	return st.logs.Tail(n), nil
}

// ---------------------------------------------------------------------------
// Persistence & restore
// ---------------------------------------------------------------------------

// Restore rehydrates slots from the store. Channels whose media files
// vanished are skipped with a warning; active states (Transcoding,
// Streaming) never survive a restart and collapse to their nearest
// passive state.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	if gs, tc, err := m.store.LoadGlobal(ctx); err != nil {
		m.log.Warn("global settings restore failed", zap.Error(err))
	} else {
		m.mu.Lock()
		if gs != nil {
			m.global = *gs
		}
		if tc != nil {
			m.globalTC = *tc
		}
		m.mu.Unlock()
	}

	snaps, err := m.store.LoadChannels(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		st, err := m.slot(snap.ID)
		if err != nil {
			m.log.Warn("persisted channel outside pool", zap.Int("channel", snap.ID))
			continue
		}
		if snap.OriginalPath == "" || !fileExists(snap.OriginalPath) {
			m.log.Warn("restore skipped, source file missing",
				zap.Int("channel", snap.ID), zap.String("path", snap.OriginalPath))
			continue
		}

		m.mu.Lock()
		st.filename = snap.Filename
		st.originalPath = snap.OriginalPath
		st.settings = snap.Settings
		if snap.TranscodedPath != "" && fileExists(snap.TranscodedPath) {
			st.transcodedPath = snap.TranscodedPath
			st.preTranscoded = true
			st.state = channel.StateReady
		} else {
			st.state = channel.StateHasOriginal
		}
		m.mu.Unlock()

		restored++
		m.log.Info("channel restored", zap.Int("channel", snap.ID), zap.String("file", snap.Filename))
	}

	m.log.Info("restore complete", zap.Int("channels", restored))
	return nil
}

// Shutdown cancels every job and stops every stream, in parallel,
// each bounded by the grace period.
func (m *Manager) Shutdown(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(16)

	for i := range m.slots {
		id := i
		g.Go(func() error {
			_ = m.CancelTranscode(id)
			_ = m.StopStream(id)
			return nil
		})
	}

	done := make(chan struct{})
	go func() { _ = g.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("shutdown deadline hit before all channels stopped")
	}
}

func (m *Manager) thumbnailPath(id int) string {
	if m.thumbnailsDir == "" {
		return ""
	}
	return filepath.Join(m.thumbnailsDir, fmt.Sprintf("ch%d.jpg", id))
}

func (m *Manager) persistSlot(st *slot) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	snap := m.snapshotLocked(st)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.SaveChannel(ctx, snap); err != nil {
		m.log.Warn("channel persist failed", zap.Int("channel", st.id), zap.Error(err))
	}
}

func (m *Manager) deletePersisted(id int) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.DeleteChannel(ctx, id); err != nil {
		m.log.Warn("channel unpersist failed", zap.Int("channel", id), zap.Error(err))
	}
}

func (m *Manager) persistGlobal(gs channel.GlobalSettings, tc channel.Settings) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.SaveGlobal(ctx, gs, tc); err != nil {
		m.log.Warn("global settings persist failed", zap.Error(err))
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func orPassthrough(s string) string {
	if s == "" {
		return "passthrough"
	}
	return s
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}
