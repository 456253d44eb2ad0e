//go:build linux

package procsup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GracePeriod is the bounded wait between a graceful termination signal
// and the forced kill. It is the single teardown constant shared by
// every subprocess stop path in the server.
const GracePeriod = 3 * time.Second

// Process is the handle the engine holds on a supervised subprocess.
// Implemented here on top of exec.Cmd; faked in engine tests.
type Process interface {
	// PID of the child process.
	PID() int
	// Done is closed once the child has been reaped.
	Done() <-chan struct{}
	// ExitCode is valid after Done; -1 when the child died on a signal
	// or could not be waited on.
	ExitCode() int
	// Shutdown performs the terminate-then-kill protocol: SIGTERM to
	// the process group, GracePeriod wait, SIGKILL. It blocks until the
	// child is reaped or the escalation path is exhausted, so teardown
	// is bounded but never instantaneous-and-unchecked. Idempotent.
	Shutdown()
}

// Options configures a spawn.
type Options struct {
	// Argv is the fully-enumerated argument list, argv[0] the binary.
	// Never assembled from unvalidated input.
	Argv []string
	// OnStdout, when set, receives each stdout line as it arrives.
	// Used for the toolchain's machine-readable progress stream.
	OnStdout func(line string)
	// Stderr, when set, collects diagnostic output lines.
	Stderr *LineBuffer
}

type process struct {
	log *zap.Logger
	cmd *exec.Cmd

	stdout io.ReadCloser
	stderr io.ReadCloser

	onStdout  func(string)
	stderrBuf *LineBuffer

	done     chan struct{}
	stopOnce sync.Once
	pid      int
	exitCode atomic.Int64
}

// Spawn launches the command and begins supervising its pipes. The
// child runs in its own process group (so teardown reaches any
// grandchildren) and receives SIGKILL if this server dies first.
func Spawn(log *zap.Logger, opts Options) (Process, error) {
	if len(opts.Argv) == 0 {
		return nil, errors.New("procsup: empty argv")
	}

	cmd := exec.Command(opts.Argv[0], opts.Argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Argv[0], err)
	}

	p := &process{
		log:       log,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		onStdout:  opts.OnStdout,
		stderrBuf: opts.Stderr,
		done:      make(chan struct{}),
		pid:       cmd.Process.Pid,
	}
	p.exitCode.Store(-1)

	log.Debug("process started", zap.Int("pid", p.pid), zap.String("bin", opts.Argv[0]))
	go p.supervise()
	return p, nil
}

func (p *process) PID() int              { return p.pid }
func (p *process) Done() <-chan struct{} { return p.done }
func (p *process) ExitCode() int         { return int(p.exitCode.Load()) }

// supervise drains both pipes, reaps the child exactly once, records
// the exit code, and fires Done.
func (p *process) supervise() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.scanLines(p.stdout, p.onStdout)
	}()
	go func() {
		defer wg.Done()
		var sink func(string)
		if p.stderrBuf != nil {
			sink = p.stderrBuf.Append
		}
		p.scanLines(p.stderr, sink)
	}()

	wg.Wait()

	if err := p.cmd.Wait(); err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			p.exitCode.Store(int64(eerr.ExitCode()))
			p.log.Debug("process exited", zap.Int("pid", p.pid), zap.Int("exit_code", eerr.ExitCode()))
		} else {
			p.log.Error("wait failed", zap.Int("pid", p.pid), zap.Error(err))
		}
	} else {
		p.exitCode.Store(0)
		p.log.Debug("process exited cleanly", zap.Int("pid", p.pid))
	}

	close(p.done)
}

// scanLines pumps one pipe line-by-line into sink (which may be nil to
// discard). Oversized lines are tolerated up to 1 MiB.
func (p *process) scanLines(r io.Reader, sink func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if sink != nil {
			sink(sc.Text())
		}
	}
	if err := sc.Err(); err != nil {
		p.log.Debug("pipe scanner failure", zap.Int("pid", p.pid), zap.Error(err))
	}
}

// Shutdown implements the shared terminate-then-kill teardown.
func (p *process) Shutdown() {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := syscall.Kill(-p.pid, syscall.SIGTERM); err != nil {
			p.log.Warn("SIGTERM failed", zap.Int("pid", p.pid), zap.Error(err))
		}

		timer := time.NewTimer(GracePeriod)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		}

		p.log.Warn("grace period expired, sending SIGKILL", zap.Int("pid", p.pid))
		if err := syscall.Kill(-p.pid, syscall.SIGKILL); err != nil {
			p.log.Error("SIGKILL failed", zap.Int("pid", p.pid), zap.Error(err))
		}

		// Best effort: a process that survives SIGKILL (unkillable
		// kernel state) is reported and abandoned rather than blocking
		// the caller forever.
		kill := time.NewTimer(time.Second)
		defer kill.Stop()
		select {
		case <-p.done:
		case <-kill.C:
			p.log.Error("process did not die after SIGKILL", zap.Int("pid", p.pid))
		}
	})

	// Later callers block until the first teardown settles.
	select {
	case <-p.done:
	case <-time.After(GracePeriod + 2*time.Second):
	}
}
