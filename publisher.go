package async

// Publisher is a broadcast log: every Subscriber sees every value
// published after it subscribed, each advancing its own offset
// independently. Unlike Channel there is no backpressure on the
// publish side — Publish never suspends — so memory is bounded instead
// by garbage-collecting entries once every live subscriber has passed
// them.
type Publisher struct {
	entries    []any
	baseOffset int
	nextOffset int

	subscribers []*Subscriber

	closed    bool
	creator   *Task
	activated bool

	readyKey *struct{}
}

// NewPublisher creates an empty Publisher. t is the creating task, used
// only for the deadlock-protection check mirroring Channel's; it may be
// nil.
func NewPublisher(t *Task) *Publisher {
	return &Publisher{creator: t, readyKey: new(struct{})}
}

// Activate opts the publisher out of the creator-deadlock protection.
func (p *Publisher) Activate() { p.activated = true }

func (p *Publisher) checkActivation(t *Task) error {
	if p.activated {
		return nil
	}
	if t != p.creator {
		p.activated = true
		return nil
	}
	return ErrChannelUnactivated
}

// Subscriber tracks one reader's position in a Publisher's log.
type Subscriber struct {
	pub    *Publisher
	offset int
}

// Subscribe registers a new Subscriber positioned at the publisher's
// current tail: it sees only values published from this point on, never
// a backlog.
func (p *Publisher) Subscribe(t *Task) (*Subscriber, error) {
	if err := p.checkActivation(t); err != nil {
		return nil, err
	}
	sub := &Subscriber{pub: p, offset: p.nextOffset}
	p.subscribers = append(p.subscribers, sub)
	return sub, nil
}

// Unsubscribe detaches sub and drops the entries every remaining
// subscriber has already passed, including ones sub was holding open.
func (p *Publisher) Unsubscribe(sub *Subscriber) {
	for i, s := range p.subscribers {
		if s == sub {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			break
		}
	}
	p.gc()
}

// Publish appends v to the log and wakes every subscriber waiting on it.
// It never suspends.
func (p *Publisher) Publish(t *Task, v any) error {
	if err := p.checkActivation(t); err != nil {
		return err
	}
	if p.closed {
		return ErrChannelClosed
	}
	p.entries = append(p.entries, v)
	p.nextOffset++
	RaiseFlag(p.readyKey)
	return nil
}

// Close marks the publisher closed: subscribers drain any remaining
// backlog, then observe end-of-log.
func (p *Publisher) Close() {
	p.closed = true
	RaiseFlag(p.readyKey)
}

// gc drops entries every live subscriber has already passed.
func (p *Publisher) gc() {
	if len(p.subscribers) == 0 {
		return
	}
	min := p.subscribers[0].offset
	for _, s := range p.subscribers[1:] {
		if s.offset < min {
			min = s.offset
		}
	}
	if min > p.baseOffset {
		drop := min - p.baseOffset
		p.entries = p.entries[drop:]
		p.baseOffset = min
	}
}

// Ready reports select-readiness: true once a value this subscriber
// hasn't seen yet is available, or the publisher is closed.
func (s *Subscriber) Ready() bool {
	return s.offset < s.pub.nextOffset || s.pub.closed
}

// Read returns the next value this subscriber hasn't seen. ok is false
// once the publisher is closed and this subscriber is caught up.
func (s *Subscriber) Read(t *Task) (value any, ok bool, err error) {
	p := s.pub
	for {
		if s.offset < p.nextOffset {
			v := p.entries[s.offset-p.baseOffset]
			s.offset++
			p.gc()
			return v, true, nil
		}
		if p.closed {
			return nil, false, nil
		}
		if t == nil {
			return nil, false, ErrOutsideTask
		}
		if err = AwaitFlag(t, p.readyKey, 0); err != nil {
			return nil, false, err
		}
	}
}
