package async

// Channel is the shared state behind a (reader, writer) pair. User code
// never touches it directly — it only ever holds a *ChannelReader or
// *ChannelWriter, each closable independently of the other.
type Channel struct {
	capacity int
	buf      []any
	writeIdx int
	readIdx  int

	closedRead  bool
	closedWrite bool

	creator   *Task
	activated bool

	readKey  *struct{}
	writeKey *struct{}
}

// NewChannel creates a bounded channel of the given capacity (0 means
// synchronous rendezvous) and returns its reader and writer ends. t is
// the creating task, used only for the deadlock-protection check
// below; it may be nil if the channel is built outside a task.
func NewChannel(t *Task, capacity int) (*ChannelReader, *ChannelWriter, error) {
	if capacity < 0 {
		return nil, nil, ErrNegativeLength
	}
	ch := &Channel{
		capacity: capacity,
		creator:  t,
		readKey:  new(struct{}),
		writeKey: new(struct{}),
	}
	return &ChannelReader{ch: ch}, &ChannelWriter{ch: ch}, nil
}

func (ch *Channel) raiseReadReady()  { RaiseFlag(ch.readKey) }
func (ch *Channel) raiseWriteReady() { RaiseFlag(ch.writeKey) }

// checkActivation implements the channel's deadlock protection: the first
// non-trivial operation on an unactivated channel must come from a task
// other than its creator, or from an endpoint explicitly activated via
// Activate. A creator that reads or writes its own freshly made channel
// without a counterparty is almost always a bug, and this catches it
// synchronously rather than hanging.
func (ch *Channel) checkActivation(t *Task) error {
	if ch.activated {
		return nil
	}
	if t != ch.creator {
		ch.activated = true
		return nil
	}
	return ErrChannelUnactivated
}

// ChannelReader is the read end of a Channel.
type ChannelReader struct{ ch *Channel }

// Activate opts this endpoint (and so the whole channel) out of the
// deadlock protection above.
func (r *ChannelReader) Activate() { r.ch.activated = true }

// Close closes the read end: further writes raise ErrChannelUnreachable,
// and any writer currently suspended on backpressure is woken to observe
// that.
func (r *ChannelReader) Close() {
	r.ch.closedRead = true
	r.ch.raiseWriteReady()
}

// Ready reports select-readiness: true when a value is buffered or the
// channel is closed.
func (r *ChannelReader) Ready() bool {
	ch := r.ch
	return ch.readIdx < ch.writeIdx || ch.closedWrite || ch.closedRead
}

// Read returns the oldest queued value, advancing the read index. ok is
// false once the channel is closed and drained, matching "returns null
// when the channel is closed and no values remain".
func (r *ChannelReader) Read(t *Task) (value any, ok bool, err error) {
	ch := r.ch
	if err = ch.checkActivation(t); err != nil {
		return nil, false, err
	}
	for {
		if ch.readIdx < ch.writeIdx {
			v := ch.buf[0]
			ch.buf = ch.buf[1:]
			ch.readIdx++
			ch.raiseWriteReady()
			return v, true, nil
		}
		if ch.closedWrite || ch.closedRead {
			return nil, false, nil
		}
		if t == nil {
			return nil, false, ErrOutsideTask
		}
		if err = AwaitFlag(t, ch.readKey, 0); err != nil {
			return nil, false, err
		}
	}
}

// ChannelWriter is the write end of a Channel.
type ChannelWriter struct{ ch *Channel }

// Activate opts this endpoint (and so the whole channel) out of the
// deadlock protection above.
func (w *ChannelWriter) Activate() { w.ch.activated = true }

// Close closes the write end: readers drain any remaining buffered
// values, then observe end-of-channel.
func (w *ChannelWriter) Close() {
	w.ch.closedWrite = true
	w.ch.raiseReadReady()
}

// Ready reports select-readiness: true when there is buffer space or the
// channel is closed.
func (w *ChannelWriter) Ready() bool {
	ch := w.ch
	return ch.writeIdx-ch.readIdx < ch.capacity || ch.closedWrite || ch.closedRead
}

// Write appends v to the queue, suspending until writeIndex-readIndex is
// back within capacity (capacity 0 makes this a synchronous rendezvous
// with a reader).
func (w *ChannelWriter) Write(t *Task, v any) error {
	ch := w.ch
	if err := ch.checkActivation(t); err != nil {
		return err
	}
	if ch.closedWrite {
		return ErrChannelClosed
	}
	if ch.closedRead {
		return ErrChannelUnreachable
	}

	ch.buf = append(ch.buf, v)
	ch.writeIdx++
	ch.raiseReadReady()

	for ch.writeIdx-ch.readIdx > ch.capacity {
		if ch.closedRead {
			return ErrChannelUnreachable
		}
		if t == nil {
			return ErrOutsideTask
		}
		if err := AwaitFlag(t, ch.writeKey, 0); err != nil {
			return err
		}
	}
	return nil
}
