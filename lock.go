package async

import "time"

// Lock is a reentrant mutex scoped to tasks rather than goroutines: a
// task already holding it may acquire it again without blocking, and
// must release it the same number of times.
type Lock struct {
	owner    *Task
	depth    int
	readyKey *struct{}
}

// NewLock creates an unheld Lock.
func NewLock() *Lock {
	return &Lock{readyKey: new(struct{})}
}

// Ready reports whether the lock is currently free. It does not account
// for reentrant acquisition by a specific task, since Selectable.Ready
// carries no task argument.
func (l *Lock) Ready() bool { return l.owner == nil }

// Acquire blocks t until the lock is free (or immediately succeeds, with
// depth incremented, if t already holds it).
func (l *Lock) Acquire(t *Task, timeout time.Duration) error {
	if t == nil {
		return ErrOutsideTask
	}
	if l.owner == t {
		l.depth++
		return nil
	}
	deadline, hasDeadline := deadlineFor(timeout)
	for l.owner != nil {
		wait, err := remainingOrErr(hasDeadline, deadline)
		if err != nil {
			return err
		}
		if err := AwaitFlag(t, l.readyKey, wait); err != nil {
			return err
		}
	}
	l.owner = t
	l.depth = 1
	return nil
}

// Release drops one level of t's hold on the lock, freeing it and waking
// any waiters once depth reaches zero.
func (l *Lock) Release(t *Task) error {
	if l.owner != t {
		return ErrLockNotOwned
	}
	l.depth--
	if l.depth == 0 {
		l.owner = nil
		RaiseFlag(l.readyKey)
	}
	return nil
}

// Run acquires the lock, runs fn, and releases it — including when fn
// fails or panics via runBody-style recovery further up the call chain.
func (l *Lock) Run(t *Task, timeout time.Duration, fn func(t *Task) (any, error)) (any, error) {
	if err := l.Acquire(t, timeout); err != nil {
		return nil, err
	}
	defer l.Release(t)
	return fn(t)
}

// remainingOrErr computes how long to wait on the next poll given an
// optional deadline, returning ErrTimeout once it has already passed.
func remainingOrErr(hasDeadline bool, deadline time.Time) (time.Duration, error) {
	if !hasDeadline {
		return 0, nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, ErrTimeout
	}
	return remaining, nil
}
