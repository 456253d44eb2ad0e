package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/infrastructure/procsup"
	"github.com/mediacastd/playout-server/internal/media"
)

// StreamProcess keeps one channel's chosen file flowing to its
// multicast group for as long as the channel is Streaming. In loop
// mode a clean exit restarts the same invocation (restartCount
// incremented) instead of counting as a failure. Owned exclusively by
// its channel.
type StreamProcess struct {
	log           *zap.Logger
	id            int
	file          string
	settings      channel.Settings
	groupIP       string
	port          int
	preTranscoded bool
	ffmpeg        string
	spawn         SpawnFunc

	// onExit fires exactly once, when the stream ends for good.
	// expected is true for stop()-initiated teardown; diag carries the
	// exit code and last diagnostic line otherwise.
	onExit func(expected bool, diag string)

	mu            sync.Mutex
	proc          procsup.Process
	stopRequested bool
	restartCount  int
	startedAt     time.Time

	stderr *procsup.LineBuffer
	done   chan struct{}
}

func newStreamProcess(log *zap.Logger, id int, file string, settings channel.Settings,
	groupIP string, port int, preTranscoded bool, ffmpeg string, spawn SpawnFunc,
	stderr *procsup.LineBuffer, onExit func(expected bool, diag string)) *StreamProcess {
	return &StreamProcess{
		log:           log,
		id:            id,
		file:          file,
		settings:      settings,
		groupIP:       groupIP,
		port:          port,
		preTranscoded: preTranscoded,
		ffmpeg:        ffmpeg,
		spawn:         spawn,
		onExit:        onExit,
		stderr:        stderr,
		done:          make(chan struct{}),
	}
}

// RestartCount reports how many times loop mode relaunched the encoder.
func (sp *StreamProcess) RestartCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.restartCount
}

// StartedAt reports when the first invocation launched.
func (sp *StreamProcess) StartedAt() time.Time {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.startedAt
}

// PID reports the current subprocess pid, 0 when none is running.
func (sp *StreamProcess) PID() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.proc == nil {
		return 0
	}
	return sp.proc.PID()
}

// start launches the first invocation. Called without the Manager's
// lock held. A stop() that raced ahead of start wins: nothing is
// spawned.
func (sp *StreamProcess) start() error {
	sp.mu.Lock()
	if sp.stopRequested {
		sp.mu.Unlock()
		close(sp.done)
		return nil
	}
	sp.startedAt = time.Now()
	sp.mu.Unlock()

	return sp.launch()
}

// launch spawns one encoder invocation and hands it to the monitor.
func (sp *StreamProcess) launch() error {
	argv := media.StreamArgs(sp.ffmpeg, sp.file, sp.settings, sp.groupIP, sp.port, sp.preTranscoded)

	proc, err := sp.spawn(procsup.Options{
		Argv:   argv,
		Stderr: sp.stderr,
	})
	if err != nil {
		close(sp.done)
		return fmt.Errorf("%w: %v", ErrProcessSpawnFailed, err)
	}

	sp.mu.Lock()
	sp.proc = proc
	stopped := sp.stopRequested
	sp.mu.Unlock()

	if stopped {
		// stop() raced the relaunch; tear the new process down.
		go proc.Shutdown()
	}

	go sp.monitor(proc)
	return nil
}

// monitor waits for one invocation to end and decides: finish (stopped),
// relaunch (loop mode, clean exit) or report an unexpected death.
func (sp *StreamProcess) monitor(proc procsup.Process) {
	<-proc.Done()
	code := proc.ExitCode()

	sp.mu.Lock()
	stopped := sp.stopRequested
	sp.mu.Unlock()

	switch {
	case stopped:
		close(sp.done)
		sp.onExit(true, "")

	case code == 0 && sp.settings.Loop:
		// Clean end of file in loop mode: immediately run it again.
		sp.mu.Lock()
		sp.restartCount++
		n := sp.restartCount
		sp.mu.Unlock()
		sp.log.Debug("looping stream restarted",
			zap.Int("channel", sp.id), zap.Int("restart_count", n))

		if err := sp.launch(); err != nil {
			sp.onExit(false, fmt.Sprintf("loop restart failed: %v", err))
		}

	default:
		diag := fmt.Sprintf("stream process exited with code %d", code)
		if tail := sp.stderr.Last(); tail != "" {
			diag += ": " + tail
		}
		close(sp.done)
		sp.onExit(false, diag)
	}
}

// stop performs the shared terminate-then-kill teardown and blocks
// until the stream has settled (bounded by the grace period). Safe to
// call before, during or after start.
func (sp *StreamProcess) stop() {
	sp.mu.Lock()
	if sp.stopRequested {
		sp.mu.Unlock()
		<-sp.done
		return
	}
	sp.stopRequested = true
	proc := sp.proc
	sp.mu.Unlock()

	if proc == nil {
		// start() has not spawned yet (or never will); it observes
		// stopRequested and closes done itself.
		select {
		case <-sp.done:
		case <-time.After(procsup.GracePeriod):
		}
		return
	}

	proc.Shutdown()
	<-sp.done
}
