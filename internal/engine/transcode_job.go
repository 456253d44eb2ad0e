package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/infrastructure/procsup"
	"github.com/mediacastd/playout-server/internal/media"
)

// SpawnFunc launches a supervised subprocess. The default wraps
// procsup.Spawn; tests substitute a fake so the engine can be exercised
// without the media toolchain installed.
type SpawnFunc func(opts procsup.Options) (procsup.Process, error)

// JobStatus is a transcode job's position in its state machine.
// Completed, Cancelled and Failed are terminal; a new job must be
// created for retry.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// jobCallbacks report terminal transitions and progress back to the
// Manager, which owns the channel-level state bookkeeping.
type jobCallbacks struct {
	onProgress  func(percent, etaSeconds int)
	onComplete  func(outputPath string)
	onCancelled func()
	onFailed    func(message string)
}

// TranscodeJob supervises one encode-to-MPEG-TS subprocess. It probes
// the source duration once at start, parses the toolchain's
// machine-readable progress stream line by line, and supports
// cooperative cancellation via the shared teardown primitive. The
// encoder writes to a temporary sibling of dst; the finished output is
// renamed into place only on a clean exit, so an artifact at dst always
// came from a completed encode. Owned exclusively by its channel.
type TranscodeJob struct {
	log   *zap.Logger
	id    int
	src   string
	dst   string
	tmp   string
	prms  channel.Settings
	tools Toolchain
	spawn SpawnFunc
	cb    jobCallbacks

	cancelRequested atomic.Bool

	mu          sync.Mutex
	stopProbe   context.CancelFunc
	status      JobStatus
	percent     int
	etaSeconds  int
	durationSec float64
	proc        procsup.Process
	startedAt   time.Time

	stderr *procsup.LineBuffer
	done   chan struct{}
}

// Toolchain locates the external media binaries.
type Toolchain struct {
	FFmpeg  string
	FFprobe string
}

func newTranscodeJob(log *zap.Logger, id int, src, dst string, prms channel.Settings,
	tools Toolchain, spawn SpawnFunc, stderr *procsup.LineBuffer, cb jobCallbacks) *TranscodeJob {
	return &TranscodeJob{
		log:    log,
		id:     id,
		src:    src,
		dst:    dst,
		tmp:    dst + ".part",
		prms:   prms,
		tools:  tools,
		spawn:  spawn,
		cb:     cb,
		status: JobPending,
		stderr: stderr,
		done:   make(chan struct{}),
	}
}

// Status returns the current state machine position.
func (j *TranscodeJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the latest percent and ETA.
func (j *TranscodeJob) Progress() (percent, etaSeconds int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.percent, j.etaSeconds
}

// Done is closed once the job reaches a terminal status.
func (j *TranscodeJob) Done() <-chan struct{} { return j.done }

// start probes the source, builds the argument list, spawns the encoder
// and begins monitoring. Returns a wrapped ErrProcessSpawnFailed when
// the toolchain cannot be launched; the job is then Failed.
// Called without the Manager's lock held: the duration probe and spawn
// are slow.
func (j *TranscodeJob) start(ctx context.Context) error {
	ctx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	j.mu.Lock()
	j.stopProbe = stopProbe
	j.mu.Unlock()

	duration := media.ProbeDuration(ctx, j.tools.FFprobe, j.src)

	prms := j.prms
	if prms.Codec != "copy" {
		// Smart remux: when the source already satisfies the target
		// specs, a stream copy into MPEG-TS is sufficient.
		if info := media.ProbeStreams(ctx, j.tools.FFprobe, j.src); media.SpecsMatch(info, prms) {
			j.log.Info("source matches target specs, remuxing without re-encode",
				zap.Int("channel", j.id))
			prms.Codec = "copy"
		}
	}

	// A cancel during the probe phase must not reach the spawn.
	if j.cancelRequested.Load() {
		j.mu.Lock()
		j.status = JobCancelled
		j.mu.Unlock()
		if j.cb.onCancelled != nil {
			j.cb.onCancelled()
		}
		close(j.done)
		return nil
	}

	argv := media.TranscodeArgs(j.tools.FFmpeg, j.src, j.tmp, prms)

	proc, err := j.spawn(procsup.Options{
		Argv:     argv,
		OnStdout: j.handleProgressLine(),
		Stderr:   j.stderr,
	})
	if err != nil {
		j.mu.Lock()
		j.status = JobFailed
		j.mu.Unlock()
		close(j.done)
		return fmt.Errorf("%w: %v", ErrProcessSpawnFailed, err)
	}

	// Publishing proc and re-reading the flag happen under the same
	// lock cancel() sets the flag under: either cancel() sees proc, or
	// the flag is observed here. A cancel can never miss both.
	j.mu.Lock()
	j.status = JobRunning
	j.proc = proc
	j.startedAt = time.Now()
	j.durationSec = duration
	cancelled := j.cancelRequested.Load()
	j.mu.Unlock()

	go j.monitor(proc)

	if cancelled {
		go proc.Shutdown()
	}
	return nil
}

// cancel requests cooperative cancellation: flag first, then the shared
// terminate-then-kill teardown. Returns once the job has settled
// (bounded by the grace period). No-op after a terminal status.
func (j *TranscodeJob) cancel() {
	j.mu.Lock()
	if j.status != JobPending && j.status != JobRunning {
		j.mu.Unlock()
		return
	}
	j.cancelRequested.Store(true)
	proc := j.proc
	stopProbe := j.stopProbe
	j.mu.Unlock()

	if stopProbe != nil {
		stopProbe()
	}
	if proc != nil {
		proc.Shutdown()
	}
	<-j.done
}

// monitor waits for the subprocess to exit and drives the terminal
// transition. Cancellation wins over the exit code once requested.
func (j *TranscodeJob) monitor(proc procsup.Process) {
	<-proc.Done()
	code := proc.ExitCode()

	// Callbacks fire before done closes: a caller blocked in cancel()
	// must observe the settled channel state once it unblocks.
	switch {
	case j.cancelRequested.Load():
		j.setStatus(JobCancelled)
		j.removePartialOutput()
		if j.cb.onCancelled != nil {
			j.cb.onCancelled()
		}

	case code == 0:
		if err := os.Rename(j.tmp, j.dst); err != nil {
			j.setStatus(JobFailed)
			if j.cb.onFailed != nil {
				j.cb.onFailed(fmt.Sprintf("could not move finished output into place: %v", err))
			}
			break
		}
		j.mu.Lock()
		j.status = JobCompleted
		j.percent = 100
		j.etaSeconds = 0
		j.mu.Unlock()
		if j.cb.onProgress != nil {
			j.cb.onProgress(100, 0)
		}
		if j.cb.onComplete != nil {
			j.cb.onComplete(j.dst)
		}

	default:
		j.setStatus(JobFailed)
		j.removePartialOutput()
		msg := fmt.Sprintf("encoder exited with code %d", code)
		if tail := j.stderr.Last(); tail != "" {
			msg += ": " + tail
		}
		if j.cb.onFailed != nil {
			j.cb.onFailed(msg)
		}
	}
	close(j.done)
}

func (j *TranscodeJob) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// removePartialOutput deletes whatever the interrupted encode left at
// the temporary path. An earlier completed artifact at dst is never
// touched.
func (j *TranscodeJob) removePartialOutput() {
	if err := os.Remove(j.tmp); err != nil && !os.IsNotExist(err) {
		j.log.Warn("could not remove partial transcode output",
			zap.Int("channel", j.id), zap.String("path", j.tmp), zap.Error(err))
	}
}

// handleProgressLine returns the stdout line handler. The toolchain
// writes key=value lines in blocks terminated by a "progress=" line;
// out_time_us carries the elapsed output timestamp. One notification is
// pushed per complete block, never polled.
func (j *TranscodeJob) handleProgressLine() func(string) {
	var outTimeUs int64

	return func(line string) {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			return
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				outTimeUs = us
			}
		case "progress":
			j.recordProgress(outTimeUs)
		}
	}
}

// recordProgress converts an elapsed-output timestamp into percent/ETA
// and pushes the update. Percent is clamped to 99 while the encoder
// runs (100 is reserved for exit 0) and never decreases.
func (j *TranscodeJob) recordProgress(outTimeUs int64) {
	j.mu.Lock()
	if j.durationSec <= 0 || outTimeUs <= 0 {
		j.mu.Unlock()
		return
	}

	pct := int(float64(outTimeUs) / (j.durationSec * 1e6) * 100)
	if pct > 99 {
		pct = 99
	}
	if pct < j.percent {
		pct = j.percent // monotone, never regress on out-of-order blocks
	}

	eta := 0
	if pct > 0 {
		elapsed := time.Since(j.startedAt).Seconds()
		eta = int(elapsed / float64(pct) * float64(100-pct))
		if eta < 0 {
			eta = 0
		}
	}

	changed := pct != j.percent || eta != j.etaSeconds
	j.percent = pct
	j.etaSeconds = eta
	j.mu.Unlock()

	if changed && j.cb.onProgress != nil {
		j.cb.onProgress(pct, eta)
	}
}
