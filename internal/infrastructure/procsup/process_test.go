//go:build linux

package procsup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitDone(t *testing.T, p Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("process never finished")
	}
}

func TestSpawnCapturesStdoutAndExitCode(t *testing.T) {
	var mu sync.Mutex
	var lines []string

	p, err := Spawn(zap.NewNop(), Options{
		Argv: []string{"/bin/sh", "-c", "echo alpha; echo beta"},
		OnStdout: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	assert.Equal(t, 0, p.ExitCode())
	mu.Lock()
	assert.Equal(t, []string{"alpha", "beta"}, lines)
	mu.Unlock()
}

func TestSpawnCollectsStderr(t *testing.T) {
	buf := &LineBuffer{}
	p, err := Spawn(zap.NewNop(), Options{
		Argv:   []string{"/bin/sh", "-c", "echo oops >&2; exit 3"},
		Stderr: buf,
	})
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	assert.Equal(t, 3, p.ExitCode())
	assert.Equal(t, "oops", buf.Last())
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := Spawn(zap.NewNop(), Options{Argv: []string{"/nonexistent/binary"}})
	assert.Error(t, err)
}

func TestSpawnEmptyArgv(t *testing.T) {
	_, err := Spawn(zap.NewNop(), Options{})
	assert.Error(t, err)
}

func TestShutdownTerminatesGracefully(t *testing.T) {
	// trap-less sleep dies on the first SIGTERM.
	p, err := Spawn(zap.NewNop(), Options{
		Argv: []string{"/bin/sh", "-c", "sleep 60"},
	})
	require.NoError(t, err)

	start := time.Now()
	p.Shutdown()
	waitDone(t, p, 2*time.Second)

	assert.Less(t, time.Since(start), GracePeriod,
		"a SIGTERM-compliant child must not eat the whole grace period")
	assert.Equal(t, -1, p.ExitCode(), "signal death carries no exit code")
}

func TestShutdownIdempotent(t *testing.T) {
	p, err := Spawn(zap.NewNop(), Options{
		Argv: []string{"/bin/sh", "-c", "sleep 60"},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
	}
	wg.Wait()
	waitDone(t, p, 2*time.Second)
}

func TestShutdownAfterExitIsNoop(t *testing.T) {
	p, err := Spawn(zap.NewNop(), Options{
		Argv: []string{"/bin/sh", "-c", "true"},
	})
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	p.Shutdown() // must not block or signal a reused pid
	assert.Equal(t, 0, p.ExitCode())
}
