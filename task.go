package async

import (
	"fmt"
	"time"

	"github.com/ygrebnov/async/internal/idgen"
)

// State is one of a task's lifecycle states.
type State int

const (
	StateRunning State = iota
	StateSuspendedEnqueued
	StateSuspendedDelayed
	StateSuspendedOnIO
	StateSuspendedOnFlag
	StateSuspendedOnIdle
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspendedEnqueued:
		return "suspended-enqueued"
	case StateSuspendedDelayed:
		return "suspended-delayed"
	case StateSuspendedOnIO:
		return "suspended-on-io"
	case StateSuspendedOnFlag:
		return "suspended-on-flag"
	case StateSuspendedOnIdle:
		return "suspended-on-idle"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var taskIDs idgen.Generator

// Task is the unit of cooperatively scheduled work: a goroutine hosting
// user code, handed control one at a time by the package-level Driver via
// a two-channel handshake (resumeCh/yieldCh). Only one Task's body ever
// runs at once; every other live Task is blocked at the single point in
// park() where it waits for its own resumeCh, so the fields below need no
// locking beyond that invariant — the sole exception is the Driver itself
// (Count, RaiseFlag, ...), which is explicitly documented as callable
// from outside the cooperative loop.
//
// User code never constructs a Task directly; Run and Go do.
type Task struct {
	id        uint64
	context   *Context
	state     State
	createdAt time.Time

	result any
	err    error
	holder *exceptionHolder

	finalizers []func()

	resumeCh chan error
	yieldCh  chan struct{}

	lastPreempt time.Time
}

// Func is the signature every task body must have: it receives the Task
// handle it is running as, rather than relying on goroutine-local
// "current task" state, and returns a value plus an error.
type Func func(t *Task) (any, error)

// ID returns a small monotonic integer identifying the task, stable for
// its lifetime and usable as a map key or log field.
func (t *Task) ID() uint64 { return t.id }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return t.state }

// Ready reports whether the task has terminated, satisfying Selectable:
// a task handle is select-ready iff terminated.
func (t *Task) Ready() bool { return t.state == StateTerminated }

func newTask(ctx *Context, fn Func) *Task {
	t := &Task{
		id:        taskIDs.Next(),
		context:   ctx,
		createdAt: time.Now(),
		state:     StateRunning,
		resumeCh:  make(chan error),
		yieldCh:   make(chan struct{}),
	}
	ctx.addMember(t)
	go t.loop(fn)
	// Hand it control immediately: a task runs up to its first suspension
	// synchronously before the call that started it returns. Since loop's
	// very first act is to wait on resumeCh, this first driverResume call
	// is just an ordinary resume with a nil thrown error.
	t.driverResume(nil)
	return t
}

func (t *Task) loop(fn Func) {
	thrown := <-t.resumeCh

	var result any
	var err error
	if thrown != nil {
		err = thrown
	} else {
		err = t.runBody(fn, &result)
	}

	t.finish(result, err)
	close(t.yieldCh)
}

func (t *Task) runBody(fn Func, result *any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: task panicked: %v", Namespace, r)
		}
	}()
	*result, err = fn(t)
	return err
}

// driverResume is the `resume func(thrown error)` closure every
// suspension point registers with the Driver. Sending into resumeCh wakes
// the task's goroutine; driverResume then blocks on yieldCh until that
// goroutine suspends again or terminates, which is exactly what the
// Driver's tick loop expects from a synchronous "resume" call.
func (t *Task) driverResume(thrown error) {
	t.resumeCh <- thrown
	<-t.yieldCh
}

// park is the single choke point every suspending operation goes
// through: it marks the new state, lets register attach driverResume to
// whichever wait-structure holds it, then blocks until resumed. If
// register reports a usage error (e.g. a double stream registration), the
// task never actually suspends — park restores StateRunning and returns
// that error directly instead of touching yieldCh/resumeCh.
func (t *Task) park(state State, register func(resume func(error)) error) error {
	t.state = state
	if err := register(t.driverResume); err != nil {
		t.state = StateRunning
		return err
	}
	t.yieldCh <- struct{}{}
	thrown := <-t.resumeCh
	t.state = StateRunning
	return thrown
}

func (t *Task) finish(result any, err error) {
	t.result = result
	if err != nil {
		err = newTaskError(err, t)
	}
	t.err = err
	t.state = StateTerminated

	t.runFinalizers()

	if err != nil {
		t.holder = &exceptionHolder{err: err}
		d := currentDriver()
		holder := t.holder
		ctx := t.context
		d.ScheduleMicrotask(func() {
			if !holder.observed {
				ctx.escalate(holder.err)
			}
		})
	}

	// Wake anything suspended in Await on this task. A woken waiter only
	// resumes after the microtask above has been drained, but it returns
	// this result from Await when it does (see Await/observeResult), so
	// the failure counts as observed as soon as a waiter is woken.
	if currentDriver().RaiseFlag(t) > 0 && t.holder != nil {
		t.holder.observed = true
	}
	t.context.memberTerminated(t)
}

// runFinalizers runs the finalizer stack LIFO, even when the task
// failed; a finalizer panic is contained so one broken cleanup cannot
// prevent the rest from running.
func (t *Task) runFinalizers() {
	for i := len(t.finalizers) - 1; i >= 0; i-- {
		t.runOneFinalizer(t.finalizers[i])
	}
}

func (t *Task) runOneFinalizer(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// Finally pushes fn onto t's finalizer stack.
func Finally(t *Task, fn func()) error {
	if t == nil {
		return ErrOutsideTask
	}
	t.finalizers = append(t.finalizers, fn)
	return nil
}

func observeResult(task *Task) (any, error) {
	if task.holder != nil {
		task.holder.observed = true
	}
	return task.result, task.err
}

// deadlineFor translates a timeout parameter into an absolute deadline:
// a negative timeout means "use the configured default", zero means "no
// deadline", and a positive value is used as-is.
func deadlineFor(timeout time.Duration) (time.Time, bool) {
	switch {
	case timeout < 0:
		d := defaultTimeout()
		if d <= 0 {
			return time.Time{}, false
		}
		return time.Now().Add(d), true
	case timeout == 0:
		return time.Time{}, false
	default:
		return time.Now().Add(timeout), true
	}
}
