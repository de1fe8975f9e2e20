package async

import (
	"fmt"
	"time"
)

type streamDirection uint8

const (
	driverDirRead streamDirection = iota
	driverDirWrite
)

func waitStream(t *Task, handle StreamHandle, dir streamDirection, timeout time.Duration) error {
	if t == nil {
		// Outside a task this call is always a no-op: it returns at once
		// without waiting, whether or not the handle is non-blocking,
		// and it does not change the handle's blocking mode.
		return nil
	}
	d := currentDriver()
	fd := handle.Fd()
	return t.park(StateSuspendedOnIO, func(resume func(error)) error {
		deadline, has := deadlineFor(timeout)
		if dir == driverDirRead {
			return d.Readable(fd, t, deadline, has, resume)
		}
		return d.Writable(fd, t, deadline, has, resume)
	})
}

// Run creates a root task with a fresh Context, ticks the driver until
// that context's subtree has fully drained, and returns the root task's
// value or its failure — including any descendant failure that was never
// observed by an Await.
func Run(fn Func) (any, error) {
	ctx := newContext()
	_ = ctx.activate() // a freshly built Context can never already be active

	d := currentDriver()
	root := newTask(ctx, fn)

	for ctx.memberCount() > 0 {
		d.Tick(100 * time.Millisecond)
	}
	d.Flush()

	if excErr := ctx.takeException(); excErr != nil {
		return root.result, excErr
	}
	return root.result, root.err
}

// Go creates a child task of t, under t's context, and returns its
// handle. The child runs synchronously up to its own first suspension or
// termination before Go returns, exactly like Run does for the root.
func Go(t *Task, fn Func) (*Task, error) {
	if t == nil {
		return nil, ErrOutsideTask
	}
	return newTask(t.context, fn), nil
}

// Await suspends t until target terminates, then returns its value or
// rethrows its failure. target may be a *Task or, when a promise handler
// has been registered via SetPromiseHandler, anything implementing
// PromiseLike.
func Await(t *Task, target any, timeout time.Duration) (any, error) {
	if t == nil {
		return nil, ErrOutsideTask
	}

	task, ok := target.(*Task)
	if !ok {
		pl, ok2 := target.(PromiseLike)
		if !ok2 {
			return nil, fmt.Errorf("%s: Await target must be a *Task or PromiseLike", Namespace)
		}
		h := promiseHandler()
		if h == nil {
			return nil, fmt.Errorf("%s: no promise handler configured; call SetPromiseHandler first", Namespace)
		}
		proxy, err := h(t, pl)
		if err != nil {
			return nil, err
		}
		task = proxy
	}

	if task == t {
		return nil, ErrSelfAwait
	}

	if task.state == StateTerminated {
		return observeResult(task)
	}

	d := currentDriver()
	thrown := t.park(StateSuspendedOnFlag, func(resume func(error)) error {
		deadline, has := deadlineFor(timeout)
		d.AwaitFlag(task, t, deadline, has, resume)
		return nil
	})
	if thrown != nil {
		return nil, thrown
	}
	return observeResult(task)
}

// Sleep suspends t for d; d <= 0 yields for one tick instead. Called with
// a nil task (outside the cooperative runtime entirely), it falls back
// to a plain blocking time.Sleep.
func Sleep(t *Task, d time.Duration) error {
	if t == nil {
		if d > 0 {
			time.Sleep(d)
		}
		return nil
	}
	if d < 0 {
		d = 0
	}
	deadline := time.Now().Add(d)
	return t.park(StateSuspendedDelayed, func(resume func(error)) error {
		currentDriver().Delay(deadline, t, resume)
		return nil
	})
}

// Yield suspends t and re-enqueues it at the tail of the runnable queue,
// after every task already enqueued has had a resume opportunity.
func Yield(t *Task) error {
	if t == nil {
		return ErrOutsideTask
	}
	return t.park(StateSuspendedEnqueued, func(resume func(error)) error {
		currentDriver().Enqueue(t, resume)
		return nil
	})
}

// Idle suspends t until a tick finds no other runnable work.
func Idle(t *Task, timeout time.Duration) error {
	if t == nil {
		return ErrOutsideTask
	}
	d := currentDriver()
	return t.park(StateSuspendedOnIdle, func(resume func(error)) error {
		deadline, has := deadlineFor(timeout)
		d.Idle(t, deadline, has, resume)
		return nil
	})
}

// StreamHandle is anything the host platform can multiplex for read/write
// readiness, concretely anything exposing its raw descriptor.
type StreamHandle interface {
	Fd() uintptr
}

// Readable suspends t until handle becomes readable or timeout elapses.
func Readable(t *Task, handle StreamHandle, timeout time.Duration) error {
	return waitStream(t, handle, driverDirRead, timeout)
}

// Writable suspends t until handle becomes writable or timeout elapses.
func Writable(t *Task, handle StreamHandle, timeout time.Duration) error {
	return waitStream(t, handle, driverDirWrite, timeout)
}

// Stream suspends t until handle is ready in the requested direction(s)
// or timeout elapses. When both read and write are requested it waits for
// readability first and then, as a separate wait with its own timeout,
// for writability; it does not return as soon as either one is ready. At
// most one task may be parked per (handle, direction) pair.
func Stream(t *Task, handle StreamHandle, read, write bool, timeout time.Duration) error {
	if read {
		if err := Readable(t, handle, timeout); err != nil {
			return err
		}
	}
	if write {
		if err := Writable(t, handle, timeout); err != nil {
			return err
		}
	}
	return nil
}

// AwaitFlag suspends t until key is raised via RaiseFlag or disposed.
func AwaitFlag(t *Task, key any, timeout time.Duration) error {
	if t == nil {
		return ErrOutsideTask
	}
	d := currentDriver()
	return t.park(StateSuspendedOnFlag, func(resume func(error)) error {
		deadline, has := deadlineFor(timeout)
		d.AwaitFlag(key, t, deadline, has, resume)
		return nil
	})
}

// RaiseFlag wakes every task parked on key and returns how many were
// woken. Safe to call outside a task.
func RaiseFlag(key any) int {
	return currentDriver().RaiseFlag(key)
}

// Cancel removes task from whatever it is suspended on and arranges for
// err (ErrCancelled if nil) to be raised at its next resume. Fails if
// task is not currently suspended.
func Cancel(task *Task, err error) error {
	if task == nil {
		return ErrOutsideTask
	}
	if err == nil {
		err = ErrCancelled
	}
	resume, cerr := currentDriver().Cancel(task)
	if cerr != nil {
		return ErrNotPending
	}
	task.state = StateSuspendedEnqueued
	resume(err)
	return nil
}

// Preempt yields t if its current time slice has exceeded the configured
// preempt interval, designed to be near-free otherwise. Safe to call
// outside a task, where it is a near no-op.
func Preempt(t *Task) error {
	if t == nil {
		return nil
	}
	now := time.Now()
	if t.lastPreempt.IsZero() {
		t.lastPreempt = now
		return nil
	}
	if now.Sub(t.lastPreempt) < preemptInterval() {
		return nil
	}
	t.lastPreempt = now
	return Yield(t)
}
