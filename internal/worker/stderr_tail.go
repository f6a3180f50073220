package worker

import (
	"sync"

	"github.com/smallnest/ringbuffer"
)

// DefaultStderrTail is the number of classifier stderr bytes kept for error context.
const DefaultStderrTail = 4096

// stderrTail keeps the most recent bytes written to it.
type stderrTail struct {
	mu sync.Mutex
	rb *ringbuffer.RingBuffer
}

func newStderrTail(size int) *stderrTail {
	if size <= 0 {
		size = DefaultStderrTail
	}
	return &stderrTail{rb: ringbuffer.New(size)}
}

// Write appends p, evicting the oldest bytes when full.
func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if capacity := t.rb.Capacity(); len(p) > capacity {
		p = p[len(p)-capacity:]
	}
	if excess := len(p) - t.rb.Free(); excess > 0 {
		discard := make([]byte, excess)
		if _, err := t.rb.Read(discard); err != nil {
			return 0, err
		}
	}
	if _, err := t.rb.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

// String returns the buffered bytes without consuming them.
func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.rb.Length()
	if size == 0 {
		return ""
	}
	buf := make([]byte, size)
	n, _ := t.rb.Read(buf)
	_, _ = t.rb.Write(buf[:n])
	return string(buf[:n])
}
