package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/infrastructure/procsup"
)

func newProgressJob(t *testing.T, durationSec float64, onProgress func(pct, eta int)) *TranscodeJob {
	t.Helper()
	j := newTranscodeJob(zap.NewNop(), 0, "/src.mp4", "/dst.ts", channel.Settings{},
		Toolchain{}, nil, &procsup.LineBuffer{}, jobCallbacks{onProgress: onProgress})
	j.durationSec = durationSec
	j.startedAt = time.Now().Add(-10 * time.Second)
	return j
}

func TestProgressParsing(t *testing.T) {
	var got []int
	j := newProgressJob(t, 100, func(pct, eta int) { got = append(got, pct) })

	handle := j.handleProgressLine()
	handle("out_time_us=25000000")
	handle("progress=continue")
	handle("out_time_us=50000000")
	handle("progress=continue")

	assert.Equal(t, []int{25, 50}, got)

	pct, eta := j.Progress()
	assert.Equal(t, 50, pct)
	// elapsed ~10s at 50% leaves roughly another 10s
	assert.InDelta(t, 10, eta, 2)
}

func TestProgressClampedAt99UntilExit(t *testing.T) {
	j := newProgressJob(t, 100, nil)

	handle := j.handleProgressLine()
	handle("out_time_us=200000000") // past the end
	handle("progress=end")

	pct, _ := j.Progress()
	assert.Equal(t, 99, pct)
}

func TestProgressNeverRegresses(t *testing.T) {
	j := newProgressJob(t, 100, nil)

	handle := j.handleProgressLine()
	handle("out_time_us=60000000")
	handle("progress=continue")
	handle("out_time_us=40000000") // out-of-order block
	handle("progress=continue")

	pct, _ := j.Progress()
	assert.Equal(t, 60, pct)
}

func TestProgressIgnoresGarbage(t *testing.T) {
	var calls int
	j := newProgressJob(t, 100, func(int, int) { calls++ })

	handle := j.handleProgressLine()
	handle("not a key value line")
	handle("out_time_us=abc")
	handle("progress=continue") // no usable timestamp yet
	handle("fps=31.2")

	assert.Zero(t, calls)
}

func TestProgressWithoutDuration(t *testing.T) {
	var calls int
	j := newProgressJob(t, 0, func(int, int) { calls++ })

	handle := j.handleProgressLine()
	handle("out_time_us=30000000")
	handle("progress=continue")

	assert.Zero(t, calls, "no duration means no percentage can be derived")
}

func TestETANonNegative(t *testing.T) {
	j := newProgressJob(t, 100, nil)
	j.startedAt = time.Now().Add(time.Second) // clock skew

	handle := j.handleProgressLine()
	handle("out_time_us=50000000")
	handle("progress=continue")

	_, eta := j.Progress()
	assert.GreaterOrEqual(t, eta, 0)
}
