package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/infrastructure/procsup"
)

// fakeProc stands in for a supervised subprocess; the test decides when
// and how it exits.
type fakeProc struct {
	argv     []string
	onStdout func(string)

	mu       sync.Mutex
	exitCode int
	finished bool
	done     chan struct{}
}

func (p *fakeProc) PID() int              { return 4242 }
func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProc) Shutdown() {
	p.finish(-1)
	<-p.done
}

func (p *fakeProc) finish(code int) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	p.exitCode = code
	p.mu.Unlock()
	close(p.done)
}

type fakeSpawner struct {
	mu       sync.Mutex
	spawnErr error
	spawned  chan *fakeProc
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{spawned: make(chan *fakeProc, 64)}
}

func (f *fakeSpawner) spawn(opts procsup.Options) (procsup.Process, error) {
	f.mu.Lock()
	err := f.spawnErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p := &fakeProc{
		argv:     opts.Argv,
		onStdout: opts.OnStdout,
		exitCode: -1,
		done:     make(chan struct{}),
	}
	f.spawned <- p
	return p, nil
}

func (f *fakeSpawner) next(t *testing.T) *fakeProc {
	t.Helper()
	select {
	case p := <-f.spawned:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("no subprocess spawned")
		return nil
	}
}

func newTestManager(t *testing.T, maxChannels int) (*Manager, *fakeSpawner) {
	t.Helper()

	alloc, err := NewAllocator("239.252.100", 1234, maxChannels)
	require.NoError(t, err)

	defaults, err := channel.Validate(channel.Settings{Codec: "copy", Loop: true})
	require.NoError(t, err)

	spawner := newFakeSpawner()
	mgr := NewManager(Params{
		Log:             zap.NewNop(),
		Allocator:       alloc,
		Spawn:           spawner.spawn,
		Tools:           Toolchain{FFmpeg: "/nonexistent/ffmpeg", FFprobe: "/nonexistent/ffprobe"},
		TranscodedDir:   t.TempDir(),
		ThumbnailsDir:   t.TempDir(),
		Defaults:        defaults,
		GlobalTranscode: defaults,
	})
	return mgr, spawner
}

func addSource(t *testing.T, mgr *Manager, id int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, mgr.AddChannel(id, path, "movie.mp4"))
	return path
}

// writeTranscodeOutput drops a fake encoder output at the job's
// temporary path so a simulated clean exit has something to move into
// place. Returns the final artifact path.
func writeTranscodeOutput(t *testing.T, mgr *Manager, id int) string {
	t.Helper()
	tmp := filepath.Join(mgr.transcodedDir, fmt.Sprintf("ch%d.ts.part", id))
	require.NoError(t, os.WriteFile(tmp, []byte("ts"), 0o644))
	return filepath.Join(mgr.transcodedDir, fmt.Sprintf("ch%d.ts", id))
}

func waitState(t *testing.T, mgr *Manager, id int, want channel.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := mgr.Snapshot(id)
		return err == nil && snap.State == want
	}, 3*time.Second, 10*time.Millisecond, "channel %d never reached %s", id, want)
}

func TestAddChannelTransitions(t *testing.T) {
	mgr, _ := newTestManager(t, 4)

	snap, err := mgr.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, channel.StateEmpty, snap.State)

	path := addSource(t, mgr, 0)

	snap, err = mgr.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, channel.StateHasOriginal, snap.State)
	assert.Equal(t, path, snap.OriginalPath)
	assert.Equal(t, "movie.mp4", snap.Filename)
	assert.Equal(t, "239.252.100.1", snap.GroupIP)
	assert.Equal(t, 1234, snap.Port)
}

func TestAddChannelRejectedWhileStreaming(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartStream(0, false))
	spawner.next(t)

	err := mgr.AddChannel(0, "/tmp/other.mp4", "other.mp4")
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestStartTranscodeRequiresSource(t *testing.T) {
	mgr, _ := newTestManager(t, 4)

	err := mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStartTranscodeInvalidSettings(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	addSource(t, mgr, 0)

	err := mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "mpeg2"})
	var invalid *channel.InvalidParameterError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "codec", invalid.Field)
}

func TestTranscodeCompletionMakesChannelReady(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"}))
	waitState(t, mgr, 0, channel.StateTranscoding)

	artifact := writeTranscodeOutput(t, mgr, 0)
	spawner.next(t).finish(0)

	waitState(t, mgr, 0, channel.StateReady)
	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, artifact, snap.TranscodedPath)
	assert.FileExists(t, artifact)
	assert.Equal(t, 100, snap.Progress)
}

func TestTranscodeFailureMovesChannelToError(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"}))
	proc := spawner.next(t)
	proc.finish(1)

	waitState(t, mgr, 0, channel.StateError)
	snap, _ := mgr.Snapshot(0)
	assert.Contains(t, snap.LastError, "exited with code 1")
}

func TestSecondTranscodeRejectedWhileRunning(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"}))
	waitState(t, mgr, 0, channel.StateTranscoding)

	err := mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"})
	assert.ErrorIs(t, err, ErrAlreadyTranscoding)

	writeTranscodeOutput(t, mgr, 0)
	spawner.next(t).finish(0)
}

func TestCancelTranscodeRevertsToHasOriginal(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"}))
	waitState(t, mgr, 0, channel.StateTranscoding)
	spawner.next(t) // cancel's Shutdown settles it

	partial := filepath.Join(mgr.transcodedDir, "ch0.ts.part")
	require.NoError(t, os.WriteFile(partial, []byte("x"), 0o644))

	require.NoError(t, mgr.CancelTranscode(0))

	waitState(t, mgr, 0, channel.StateHasOriginal)
	assert.NoFileExists(t, partial)
}

func TestCancelledRetranscodePreservesCompletedArtifact(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	// First transcode runs to completion.
	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h264", VideoBitrate: "6M"}))
	artifact := writeTranscodeOutput(t, mgr, 0)
	spawner.next(t).finish(0)
	waitState(t, mgr, 0, channel.StateReady)
	require.FileExists(t, artifact)

	// Second transcode is cancelled midway. The channel falls back to
	// Ready, so the artifact it points at must still be on disk.
	require.NoError(t, mgr.StartTranscode(context.Background(), 0, channel.Settings{Codec: "h265", VideoBitrate: "4M"}))
	waitState(t, mgr, 0, channel.StateTranscoding)
	spawner.next(t)
	partial := filepath.Join(mgr.transcodedDir, "ch0.ts.part")
	require.NoError(t, os.WriteFile(partial, []byte("partial"), 0o644))

	require.NoError(t, mgr.CancelTranscode(0))

	waitState(t, mgr, 0, channel.StateReady)
	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, artifact, snap.TranscodedPath)
	assert.FileExists(t, artifact)
	assert.NoFileExists(t, partial)
}

func TestCancelWithoutTranscodeFails(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	addSource(t, mgr, 0)

	assert.ErrorIs(t, mgr.CancelTranscode(0), ErrNotReady)
}

func TestStartStopStream(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartStream(0, false))
	proc := spawner.next(t)

	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, channel.StateStreaming, snap.State)
	assert.Contains(t, proc.argv, "udp://239.252.100.1:1234?pkt_size=1316&ttl=10")

	require.NoError(t, mgr.StopStream(0))

	snap, _ = mgr.Snapshot(0)
	assert.Equal(t, channel.StateHasOriginal, snap.State)
}

func TestStartStreamTwiceRejected(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartStream(0, false))
	spawner.next(t)

	assert.ErrorIs(t, mgr.StartStream(0, false), ErrAlreadyActive)
}

func TestStopWithoutStreamFails(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	addSource(t, mgr, 0)

	assert.ErrorIs(t, mgr.StopStream(0), ErrNotReady)
}

func TestUnexpectedStreamDeathMovesChannelToError(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	// Loop disabled so a clean exit is still unexpected.
	require.NoError(t, mgr.UpdateSettings(0, channel.Settings{Codec: "copy", Loop: false}))
	require.NoError(t, mgr.StartStream(0, false))
	proc := spawner.next(t)

	proc.finish(2)

	waitState(t, mgr, 0, channel.StateError)
	snap, _ := mgr.Snapshot(0)
	assert.Contains(t, snap.LastError, "exited with code 2")
}

func TestLoopModeRelaunchesOnCleanExit(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	require.NoError(t, mgr.StartStream(0, false))
	first := spawner.next(t)
	assert.Contains(t, first.argv, "-stream_loop")

	first.finish(0)
	second := spawner.next(t)

	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, channel.StateStreaming, snap.State)
	assert.Equal(t, 1, snap.RestartCount)

	second.finish(-1)
	waitState(t, mgr, 0, channel.StateError)
}

func TestStartAllReportsPerChannelResults(t *testing.T) {
	mgr, spawner := newTestManager(t, 5)
	addSource(t, mgr, 0)
	addSource(t, mgr, 2)
	addSource(t, mgr, 4)

	results := mgr.StartAll(true)
	require.Len(t, results, 5)

	ok, notReady := 0, 0
	for _, r := range results {
		switch {
		case r.Err == nil:
			ok++
		case errors.Is(r.Err, ErrNotReady):
			notReady++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 2, notReady)

	for i := 0; i < 3; i++ {
		spawner.next(t)
	}
}

func TestStopAllStopsEveryStream(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	for id := 0; id < 4; id++ {
		addSource(t, mgr, id)
		require.NoError(t, mgr.StartStream(id, false))
		spawner.next(t)
	}

	results := mgr.StopAll()
	for _, r := range results {
		assert.NoError(t, r.Err, "channel %d", r.ID)
	}
	for id := 0; id < 4; id++ {
		snap, _ := mgr.Snapshot(id)
		assert.Equal(t, channel.StateHasOriginal, snap.State)
	}
}

func TestRemoveChannelResetsSlotAndDeletesMedia(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	path := addSource(t, mgr, 0)

	require.NoError(t, mgr.StartStream(0, false))
	spawner.next(t)

	require.NoError(t, mgr.RemoveChannel(0))

	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, channel.StateEmpty, snap.State)
	assert.Empty(t, snap.Filename)
	assert.Empty(t, snap.OriginalPath)
	assert.NoFileExists(t, path)
}

func TestStreamSpawnFailureReported(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	spawner.mu.Lock()
	spawner.spawnErr = errors.New("exec format error")
	spawner.mu.Unlock()

	err := mgr.StartStream(0, false)
	require.ErrorIs(t, err, ErrProcessSpawnFailed)

	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, channel.StateError, snap.State)
}

func TestUpdateSettingsValidates(t *testing.T) {
	mgr, _ := newTestManager(t, 4)

	err := mgr.UpdateSettings(0, channel.Settings{Codec: "h264", Preset: "veryslow"})
	var invalid *channel.InvalidParameterError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "preset", invalid.Field)

	require.NoError(t, mgr.UpdateSettings(0, channel.Settings{Codec: "h265", Preset: "slow", VideoBitrate: "4M"}))
	snap, _ := mgr.Snapshot(0)
	assert.Equal(t, "h265", snap.Settings.Codec)
}

func TestUpdateGlobalSettingsValidatesBitrate(t *testing.T) {
	mgr, _ := newTestManager(t, 4)

	err := mgr.UpdateGlobalSettings(channel.GlobalSettings{Bitrate: "7M"})
	var invalid *channel.InvalidParameterError
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, mgr.UpdateGlobalSettings(channel.GlobalSettings{Bitrate: "passthrough"}))
	assert.Empty(t, mgr.GlobalSettings().Bitrate)
}

func TestInvalidChannelID(t *testing.T) {
	mgr, _ := newTestManager(t, 4)

	var invalid *channel.InvalidParameterError
	assert.ErrorAs(t, mgr.StopStream(99), &invalid)
	assert.ErrorAs(t, mgr.AddChannel(-1, "/x", "x"), &invalid)
	_, err := mgr.Snapshot(4)
	assert.ErrorAs(t, err, &invalid)
}

func TestConcurrentStartStopConsistency(t *testing.T) {
	mgr, spawner := newTestManager(t, 4)
	addSource(t, mgr, 0)

	// Drain spawns continuously so neither path blocks on the spawner.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case p := <-spawner.spawned:
				p.finish(-1)
			case <-stop:
				return
			}
		}
	}()

	var ops sync.WaitGroup
	for i := 0; i < 8; i++ {
		ops.Add(2)
		go func() { defer ops.Done(); _ = mgr.StartStream(0, false) }()
		go func() { defer ops.Done(); _ = mgr.StopStream(0) }()
	}
	ops.Wait()
	close(stop)
	wg.Wait()

	// Whatever interleaving happened, the slot must settle in a
	// coherent passive or error state, never a dangling Streaming with
	// no process.
	snap, err := mgr.Snapshot(0)
	require.NoError(t, err)
	assert.Contains(t, []channel.State{
		channel.StateHasOriginal, channel.StateError, channel.StateStreaming,
	}, snap.State)
}
