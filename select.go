package async

import "time"

// Selectable is the capability Select waits over: anything whose
// readiness can be polled. *Task, Channel readers/writers, *Publisher
// subscribers, *WaitGroup, *RateLimiter and *StringBuffer all implement
// it.
//
// This implementation polls Ready() at a short fixed interval rather than
// wiring a separate notify-on-ready fan-in per item: every Selectable
// here is already driven by the same single-threaded driver, so a short
// poll costs one extra suspend/resume round trip per interval rather than
// a syscall, and it keeps Select from needing a bespoke multi-key flag
// registration (and matching cancel-on-first-wake bookkeeping) that the
// driver's flag table does not otherwise need to support.
type Selectable interface {
	Ready() bool
}

// PromiseLike is an external promise/future that a registered
// SetPromiseHandler adapter can bind to. Await accepts it alongside
// *Task.
type PromiseLike interface {
	Then(onFulfilled, onRejected func(any))
}

// selectPollInterval bounds how long Select can overshoot an item
// becoming ready.
const selectPollInterval = 500 * time.Microsecond

// Select suspends t until at least one of items is ready, then returns
// that item. An empty items returns (nil, nil) immediately. A deadline
// with no item becoming ready returns (nil, nil), the null indicator for
// a timeout.
func Select(t *Task, items []Selectable, timeout time.Duration) (Selectable, error) {
	if t == nil {
		return nil, ErrOutsideTask
	}
	if len(items) == 0 {
		return nil, nil
	}

	deadline, hasDeadline := deadlineFor(timeout)
	for {
		for _, it := range items {
			if it != nil && it.Ready() {
				if task, ok := it.(*Task); ok {
					observeResult(task)
				}
				return it, nil
			}
		}
		if hasDeadline && !time.Now().Before(deadline) {
			return nil, nil
		}
		if err := Sleep(t, selectPollInterval); err != nil {
			return nil, err
		}
	}
}
