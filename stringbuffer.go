package async

import (
	"runtime"
	"time"

	"github.com/ygrebnov/async/pool"
)

// bufferChunkSize is the capacity a StringBuffer asks the chunk pool for
// on first use.
const bufferChunkSize = 4096

// chunkPool recycles the []byte backing stores StringBuffer instances
// grow into, via a sync.Pool-backed pool.Pool.
var chunkPool = pool.NewDynamic(func() interface{} {
	return make([]byte, 0, bufferChunkSize)
})

type bufState uint8

const (
	bufOpen bufState = iota
	bufEnded
	bufFailed
)

// StringBuffer is a single-producer, multi-consumer byte buffer for
// message framing, guarded by a DeadmanSwitch: if the producer is
// garbage-collected without ever calling End or Fail, any reader parked
// on it is woken with ErrDeadman instead of hanging forever.
type StringBuffer struct {
	state   bufState
	data    []byte
	readPos int
	err     error

	readyKey *struct{}
	deadman  *DeadmanSwitch
	released bool
}

// NewStringBuffer creates an empty, open StringBuffer.
func NewStringBuffer() *StringBuffer {
	buf := chunkPool.Get().([]byte)[:0]
	return &StringBuffer{data: buf, readyKey: new(struct{})}
}

func (b *StringBuffer) available() int { return len(b.data) - b.readPos }

// releaseIfDrained returns the backing chunk to chunkPool once the buffer
// has reached a terminal state and every byte has been read out, so a
// StringBuffer that is only ever partially read doesn't hold its chunk
// hostage but one that is fully drained gives it back for reuse.
func (b *StringBuffer) releaseIfDrained() {
	if b.released || b.state == bufOpen || b.available() > 0 {
		return
	}
	b.released = true
	chunkPool.Put(b.data[:0])
	b.data = nil
	b.readPos = 0
}

// Write appends s to the buffer. It never suspends.
func (b *StringBuffer) Write(s string) error {
	if b.state != bufOpen {
		return ErrChannelClosed
	}
	b.data = append(b.data, s...)
	RaiseFlag(b.readyKey)
	return nil
}

// Read returns up to maxLen bytes currently buffered, blocking only if
// none are available yet and the buffer is neither ended nor failed.
// maxLen < 0 is a usage error. ok is false once the buffer has ended (or
// failed) and has nothing left to drain. timeout follows deadlineFor:
// negative uses the configured default, zero never times out, positive
// is an explicit deadline.
func (b *StringBuffer) Read(t *Task, maxLen int, timeout time.Duration) (s string, ok bool, err error) {
	if maxLen < 0 {
		return "", false, ErrNegativeLength
	}
	if maxLen == 0 {
		return "", true, nil
	}
	for {
		if b.available() > 0 {
			n := b.available()
			if n > maxLen {
				n = maxLen
			}
			s = string(b.data[b.readPos : b.readPos+n])
			b.readPos += n
			b.releaseIfDrained()
			return s, true, nil
		}
		switch b.state {
		case bufFailed:
			return "", false, b.err
		case bufEnded:
			return "", false, nil
		}
		if t == nil {
			return "", false, ErrOutsideTask
		}
		if err = AwaitFlag(t, b.readyKey, timeout); err != nil {
			return "", false, err
		}
	}
}

// ReadFixed blocks until exactly n bytes are available and returns them
// with ok=true. If the buffer ends first, it returns whatever was left
// with ok=false, the short-read signal for "ended before the frame
// completed". If the buffer fails, or timeout elapses, first, it returns
// that error with ok=false and consumes nothing.
func (b *StringBuffer) ReadFixed(t *Task, n int, timeout time.Duration) (s string, ok bool, err error) {
	if n < 0 {
		return "", false, ErrNegativeLength
	}
	if n == 0 {
		return "", true, nil
	}
	for {
		if b.available() >= n {
			s = string(b.data[b.readPos : b.readPos+n])
			b.readPos += n
			b.releaseIfDrained()
			return s, true, nil
		}
		switch b.state {
		case bufFailed:
			return "", false, b.err
		case bufEnded:
			s = string(b.data[b.readPos:])
			b.readPos = len(b.data)
			b.releaseIfDrained()
			return s, false, nil
		}
		if t == nil {
			return "", false, ErrOutsideTask
		}
		if err = AwaitFlag(t, b.readyKey, timeout); err != nil {
			return "", false, err
		}
	}
}

// Unread pushes s back in front of the next read, for callers that peeked
// past a frame boundary. It fails if there is less consumed history than
// s to rewind into.
func (b *StringBuffer) Unread(s string) error {
	if len(s) == 0 {
		return nil
	}
	if b.readPos < len(s) {
		return ErrUnreadOnDrained
	}
	b.readPos -= len(s)
	copy(b.data[b.readPos:], s)
	return nil
}

// End closes the buffer normally: readers drain remaining bytes, then
// observe EOF. Disarms the deadman switch, if one was taken.
func (b *StringBuffer) End() error {
	switch b.state {
	case bufEnded:
		return ErrEndedTwice
	case bufFailed:
		return b.err
	}
	b.state = bufEnded
	b.disarmDeadman()
	b.releaseIfDrained()
	RaiseFlag(b.readyKey)
	return nil
}

// Fail ends the buffer abnormally: readers drain remaining bytes, then
// observe err instead of a clean EOF.
func (b *StringBuffer) Fail(err error) {
	if b.state != bufOpen {
		return
	}
	if err == nil {
		err = ErrDeadman
	}
	b.state = bufFailed
	b.err = err
	b.disarmDeadman()
	b.releaseIfDrained()
	RaiseFlag(b.readyKey)
}

// Eof reports whether the buffer has reached a terminal state and has no
// bytes left to drain.
func (b *StringBuffer) Eof() bool {
	return b.state != bufOpen && b.available() == 0
}

// Ready reports select-readiness: bytes available to read without
// blocking, or a terminal state reached.
func (b *StringBuffer) Ready() bool {
	return b.available() > 0 || b.state != bufOpen
}

// DeadmanSwitch ties a StringBuffer's liveness to the producer's own
// garbage-collectability: as long as the producer keeps a reference to
// the switch, the buffer stays open; if the switch is dropped (producer
// goroutine exits, or panics, without calling End/Fail), the runtime
// finalizer fails the buffer with ErrDeadman.
type DeadmanSwitch struct {
	buf *StringBuffer
}

func newDeadmanSwitch(buf *StringBuffer) *DeadmanSwitch {
	d := &DeadmanSwitch{buf: buf}
	runtime.SetFinalizer(d, func(d *DeadmanSwitch) {
		// Finalizers run on their own goroutine, outside any task's turn,
		// so the state change is routed through a microtask rather than
		// mutating buf directly here.
		currentDriver().ScheduleMicrotask(func() {
			d.buf.Fail(ErrDeadman)
		})
	})
	return d
}

func (b *StringBuffer) disarmDeadman() {
	if b.deadman != nil {
		runtime.SetFinalizer(b.deadman, nil)
	}
}

// GetDeadmanSwitch returns the buffer's DeadmanSwitch, creating it on
// first call. The caller (the producer) must keep the returned value
// reachable for as long as it intends to keep writing.
func (b *StringBuffer) GetDeadmanSwitch() *DeadmanSwitch {
	if b.deadman == nil {
		b.deadman = newDeadmanSwitch(b)
	}
	return b.deadman
}
