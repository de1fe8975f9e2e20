// Package driver implements the default event loop consumed by the
// top-level async package's facade (Run, Go, Sleep, Readable, ...). It
// owns the runnable queue, the timer heap, stream-readiness
// registrations, flag waiters, idle waiters, a deadline map, and a
// microtask queue, and runs the tick algorithm in Driver.Tick (scan
// deadlines, drain microtasks, promote expired timers, poll readiness,
// dispatch the runnable queue, repeat).
//
// The driver never touches a task's stack or goroutine directly: callers
// register a plain `resume func(error)` callback alongside an opaque
// identity (`any`, typically a *async.Task pointer, which is comparable).
// Invoking that callback is expected to synchronously hand control to the
// parked task and block until it suspends again or terminates — the
// driver does not need to know which. Operating on bare `interface{}`
// handles rather than a concrete task type keeps this package importable
// by anything that wants an alternate scheduler (see async.SetDriver).
package driver

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ygrebnov/async/metrics"
)

// ErrTimeout is delivered to a task whose waiting operation's deadline
// expired. The top-level async package aliases this as async.ErrTimeout
// so callers never need to import this package to check for it.
var ErrTimeout = errors.New("driver: operation timed out")

type readyEntry struct {
	id     any
	resume func(thrown error)
	thrown error
}

// Driver is the default event loop. It is not safe for concurrent Tick
// calls; exactly one goroutine should drive the loop. Registration calls
// (Enqueue, Delay, RaiseFlag, Cancel, ...) made from other goroutines —
// e.g. a completed external I/O callback waking a flag — are synchronized
// internally, though the common path (a task registering itself from
// inside the single active tick) never contends.
type Driver struct {
	cfg config

	mu sync.Mutex

	ready     []readyEntry
	sched     *scheduler
	streams   *streamRegistry
	poll      *poller
	flags     *flagTable
	idle      *idleSet
	deadlines *deadlineMap

	microtasks []func()

	lastDeadlineScan time.Time

	tickDuration metrics.Histogram
	readyDepth   metrics.UpDownCounter
	resumed      metrics.Counter
}

// New constructs a Driver with the given options applied.
func New(opts ...Option) *Driver {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Driver{
		cfg:       cfg,
		sched:     newScheduler(),
		streams:   newStreamRegistry(),
		poll:      newPoller(),
		flags:     newFlagTable(),
		idle:      newIdleSet(),
		deadlines: newDeadlineMap(),

		tickDuration: cfg.metrics.Histogram(
			"async_driver_tick_seconds",
			metrics.WithUnit("seconds"),
			metrics.WithDescription("wall-clock duration of one Driver.Tick call"),
		),
		readyDepth: cfg.metrics.UpDownCounter(
			"async_driver_ready_depth",
			metrics.WithDescription("number of ids on the ready queue at dispatch time"),
		),
		resumed: cfg.metrics.Counter(
			"async_driver_tasks_resumed_total",
			metrics.WithDescription("count of ready-queue entries dispatched"),
		),
	}
}

func (d *Driver) log() *zerolog.Logger { return &d.cfg.logger }

// Enqueue marks id runnable at the tail of the ready queue.
func (d *Driver) Enqueue(id any, resume func(thrown error)) {
	d.mu.Lock()
	d.ready = append(d.ready, readyEntry{id: id, resume: resume})
	d.mu.Unlock()
}

// Delay parks id on the timer heap until deadline, for the plain
// sleep/explicit-delay suspension. A deadline that has already passed is
// promoted to runnable on the very next Tick, without special-casing it
// here: a zero or negative delay is simply scheduled for the next tick.
func (d *Driver) Delay(deadline time.Time, id any, resume func(thrown error)) {
	d.mu.Lock()
	d.sched.insert(id, deadline, resume)
	d.mu.Unlock()
}

// Readable registers id to be resumed when fd becomes readable, with an
// optional deadline after which it is resumed with ErrTimeout instead.
func (d *Driver) Readable(fd uintptr, id any, deadline time.Time, hasDeadline bool, resume func(thrown error)) error {
	return d.registerStream(fd, DirRead, id, deadline, hasDeadline, resume)
}

// Writable registers id to be resumed when fd becomes writable.
func (d *Driver) Writable(fd uintptr, id any, deadline time.Time, hasDeadline bool, resume func(thrown error)) error {
	return d.registerStream(fd, DirWrite, id, deadline, hasDeadline, resume)
}

func (d *Driver) registerStream(fd uintptr, dir Direction, id any, deadline time.Time, hasDeadline bool, resume func(thrown error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streams.register(fd, dir, id, resume) {
		return ErrDoubleRegister
	}
	if hasDeadline {
		d.deadlines.set(id, deadline)
	}
	return nil
}

// Idle parks id until a tick finds no other runnable work.
func (d *Driver) Idle(id any, deadline time.Time, hasDeadline bool, resume func(thrown error)) {
	d.mu.Lock()
	d.idle.park(id, resume)
	if hasDeadline {
		d.deadlines.set(id, deadline)
	}
	d.mu.Unlock()
}

// AwaitFlag parks id on key until RaiseFlag(key) or DisposeFlag(key).
func (d *Driver) AwaitFlag(key any, id any, deadline time.Time, hasDeadline bool, resume func(thrown error)) {
	d.mu.Lock()
	d.flags.park(key, id, resume)
	if hasDeadline {
		d.deadlines.set(id, deadline)
	}
	d.mu.Unlock()
}

// RaiseFlag wakes every task currently parked on key and returns how many
// were woken. Safe to call from outside the loop, e.g. from a completion
// callback on a foreign goroutine.
func (d *Driver) RaiseFlag(key any) int {
	d.mu.Lock()
	woken := d.flags.raise(key)
	for _, w := range woken {
		d.deadlines.clear(w.id)
		d.ready = append(d.ready, readyEntry{id: w.id, resume: w.resume})
	}
	d.mu.Unlock()
	return len(woken)
}

// DisposeFlag is the explicit substitute for weak-key-map garbage
// collection described in the runtime's design notes: it wakes current
// waiters on key with err (a "no such source" style failure) instead of a
// normal resume, then discards the key.
func (d *Driver) DisposeFlag(key any, err error) int {
	d.mu.Lock()
	woken := d.flags.raise(key)
	for _, w := range woken {
		d.deadlines.clear(w.id)
		d.ready = append(d.ready, readyEntry{id: w.id, resume: w.resume, thrown: err})
	}
	d.mu.Unlock()
	return len(woken)
}

// ScheduleMicrotask appends fn to the microtask queue, drained between
// resumes — used for deferred-closure invocation such as exception-holder
// escalation that must happen between two task resumes rather than
// inside either one.
func (d *Driver) ScheduleMicrotask(fn func()) {
	d.mu.Lock()
	d.microtasks = append(d.microtasks, fn)
	d.mu.Unlock()
}

// Cancel removes id from whatever wait-structure holds it and returns its
// resume callback so the caller can invoke it with the cancellation
// error. Returns ErrNotPending if id was not parked anywhere.
func (d *Driver) Cancel(id any) (func(thrown error), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(id)
}

// removeLocked removes id from every wait-structure that might hold it
// (mu must already be held) and returns its resume callback.
func (d *Driver) removeLocked(id any) (func(thrown error), error) {
	if r := d.sched.cancel(id); r != nil {
		return r, nil
	}
	if r := d.streams.unregisterID(id); r != nil {
		d.deadlines.clear(id)
		return r, nil
	}
	if r := d.flags.removeID(id); r != nil {
		d.deadlines.clear(id)
		return r, nil
	}
	if r := d.idle.removeID(id); r != nil {
		d.deadlines.clear(id)
		return r, nil
	}
	for i, e := range d.ready {
		if e.id == id {
			d.ready = append(d.ready[:i], d.ready[i+1:]...)
			return e.resume, nil
		}
	}
	return nil, ErrNotPending
}

// Count returns the number of ids currently parked across every
// wait-structure (ready queue included), i.e. the runtime's outstanding
// scheduling work — not the task tree's total membership, which is
// async.Context's responsibility.
func (d *Driver) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready) + d.sched.len() + d.streams.len() + d.flags.len() + d.idle.len()
}

// Flush drains any pending microtasks without otherwise advancing the
// loop. Used by the facade right after the runnable-task count reaches
// zero, so an exception-holder escalation scheduled by a task that ran
// to completion before the very first Tick is still delivered.
func (d *Driver) Flush() {
	d.drainMicrotasks()
}

func (d *Driver) drainMicrotasks() {
	for {
		d.mu.Lock()
		if len(d.microtasks) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.microtasks[0]
		d.microtasks = d.microtasks[1:]
		d.mu.Unlock()
		fn()
	}
}

// Tick performs one pass of the loop, steps 1-10 of the runtime's tick
// algorithm.
func (d *Driver) Tick(maxSleep time.Duration) {
	now := time.Now()
	defer func() {
		d.tickDuration.Record(time.Since(now).Seconds())
	}()

	// Step 1: deadline scan, at most every cfg.deadlineScanEvery.
	d.mu.Lock()
	scan := now.Sub(d.lastDeadlineScan) > d.cfg.deadlineScanEvery
	if scan {
		d.lastDeadlineScan = now
	}
	d.mu.Unlock()
	if scan {
		d.scanDeadlines(now)
		d.log().Debug().Msg("deadline scan")
	}

	// Step 2: drain microtasks.
	d.drainMicrotasks()

	// Step 3: promote expired timers to runnable.
	d.mu.Lock()
	expired := d.sched.drainExpired(now)
	for _, e := range expired {
		d.ready = append(d.ready, readyEntry{id: e.id, resume: e.resume})
	}
	d.mu.Unlock()
	if len(expired) > 0 {
		d.log().Debug().Int("count", len(expired)).Msg("timers promoted to runnable")
	}

	// Step 4 (auxiliary readiness sources, e.g. a cURL multiplexer) is not
	// implemented by this driver; nothing to poll here.

	// Step 5: compute sleep budget.
	d.mu.Lock()
	readyLen := len(d.ready)
	nextDL, hasNext := d.sched.nextDeadline()
	idleLen := d.idle.len()
	d.mu.Unlock()

	var budget time.Duration
	switch {
	case readyLen > 0:
		budget = 0
	case hasNext:
		budget = nextDL.Sub(now)
		if budget > maxSleep {
			budget = maxSleep
		}
	default:
		budget = maxSleep
	}
	if budget < 0 {
		budget = 0
	}

	// Step 6: idle promotion.
	if budget > 0 && idleLen > 0 {
		d.mu.Lock()
		woken := d.idle.drain()
		for _, w := range woken {
			d.deadlines.clear(w.id)
			d.ready = append(d.ready, readyEntry{id: w.id, resume: w.resume})
		}
		d.mu.Unlock()
		budget = 0
		d.log().Debug().Int("count", len(woken)).Msg("idle waiters promoted")
	}

	// Step 7: poll stream readiness, bounded by budget; otherwise sleep.
	d.mu.Lock()
	fds := d.streams.fds()
	d.mu.Unlock()

	if len(fds) > 0 {
		ready, err := d.poll.wait(fds, budget)
		if err == nil {
			d.mu.Lock()
			for fd, mask := range ready {
				if mask&maskRead != 0 {
					if e := d.streams.unregister(fd, DirRead); e != nil {
						d.deadlines.clear(e.id)
						d.ready = append(d.ready, readyEntry{id: e.id, resume: e.resume})
					}
				}
				if mask&maskWrite != 0 {
					if e := d.streams.unregister(fd, DirWrite); e != nil {
						d.deadlines.clear(e.id)
						d.ready = append(d.ready, readyEntry{id: e.id, resume: e.resume})
					}
				}
			}
			d.mu.Unlock()
		}
	} else if budget > 0 {
		time.Sleep(budget)
	}

	// Step 8: dispatch a snapshot of the ready queue.
	d.mu.Lock()
	batch := d.ready
	d.ready = nil
	d.mu.Unlock()

	d.readyDepth.Add(int64(len(batch)))
	d.resumed.Add(int64(len(batch)))
	if len(batch) > 0 {
		d.log().Debug().Int("count", len(batch)).Msg("dispatching ready queue")
	}
	for _, e := range batch {
		e.resume(e.thrown)
	}
	d.readyDepth.Add(-int64(len(batch)))

	// Step 9: drain microtasks added during dispatch.
	d.drainMicrotasks()

	// Step 10 ("trigger a collection pass") is handled by async.Context,
	// which owns task-tree membership; the driver has nothing to collect.
}

func (d *Driver) scanDeadlines(now time.Time) {
	d.mu.Lock()
	ids := d.deadlines.expired(now)
	var toResume []readyEntry
	for _, id := range ids {
		if r, err := d.removeLocked(id); err == nil {
			toResume = append(toResume, readyEntry{id: id, resume: r, thrown: ErrTimeout})
		}
	}
	d.ready = append(d.ready, toResume...)
	d.mu.Unlock()
}
