package procsup

import "sync"

const bufferCap = 500

// LineBuffer is a thread-safe ring of the most recent output lines from
// a supervised subprocess. It backs the per-channel diagnostic log tail
// and the crash message attached to a channel on unexpected exit.
type LineBuffer struct {
	mu      sync.RWMutex
	entries [bufferCap]string
	head    int // next write position
	size    int
	full    bool
}

// Append adds a line, overwriting the oldest when full.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = line
	b.head = (b.head + 1) % bufferCap
	if b.full {
		return
	}
	b.size++
	if b.size == bufferCap {
		b.full = true
	}
}

// Tail returns up to n lines, newest first. n <= 0 or n > capacity
// returns everything available.
func (b *LineBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > bufferCap {
		n = bufferCap
	}
	if n > b.size {
		n = b.size
	}

	newest := b.head - 1
	if newest < 0 {
		newest += bufferCap
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(newest-i+bufferCap)%bufferCap]
	}
	return out
}

// Last returns the most recent line, or "" when empty.
func (b *LineBuffer) Last() string {
	lines := b.Tail(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
