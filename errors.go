package async

import (
	"errors"
	"fmt"

	"github.com/ygrebnov/async/driver"
)

// Namespace prefixes every sentinel error message so failures are
// identifiable in logs aggregated across packages.
const Namespace = "async"

// Usage errors: contract misuse. These are never routed through the task
// tree — they are returned or panic immediately at the call site.
var (
	ErrOutsideTask       = errors.New(Namespace + ": operation requires a current task")
	ErrSelfAwait         = errors.New(Namespace + ": a task cannot await itself")
	ErrContextReactivate = errors.New(Namespace + ": context already activated")
	ErrDriverAlreadySet  = errors.New(Namespace + ": driver already initialized implicitly")
	ErrWaitGroupNegative = errors.New(Namespace + ": WaitGroup.Done called with counter at zero")
	ErrLockReentrantMiss = errors.New(Namespace + ": Synchronized.Run called reentrantly by the same task")
	ErrLockNotOwned      = errors.New(Namespace + ": Lock.Unlock called by a task that does not hold it")
	ErrEndedTwice        = errors.New(Namespace + ": StringBuffer.End called twice")
	ErrNegativeLength    = errors.New(Namespace + ": negative length requested")
	ErrUnreadOnDrained   = errors.New(Namespace + ": Unread called on an ended, fully drained buffer")
	ErrInvalidRate       = errors.New(Namespace + ": RateLimiter requires r > 0")
)

// ErrNotPending and ErrDoubleRegister alias the driver package's sentinels
// directly rather than redeclaring them, so a caller holding an error
// surfaced straight from a Driver (e.g. a custom one set via SetDriver)
// still matches with errors.Is against the async-level name.
var (
	ErrNotPending     = driver.ErrNotPending
	ErrDoubleRegister = driver.ErrDoubleRegister
)

// ErrTimeout is returned/thrown when a waiting operation's deadline
// expires. It aliases driver.ErrTimeout so errors.Is matches regardless of
// which layer a caller checks against.
var ErrTimeout = driver.ErrTimeout

// ErrCancelled is thrown inside a task that was explicitly cancelled.
var ErrCancelled = errors.New(Namespace + ": task was cancelled")

// Channel errors.
var (
	ErrChannelClosed      = errors.New(Namespace + ": channel is closed")
	ErrChannelUnactivated = errors.New(Namespace + ": channel endpoint used by its creator without activation (likely deadlock)")
	ErrChannelUnreachable = errors.New(Namespace + ": channel counterparty is unreachable")
)

// ErrDeadman is raised by a StringBuffer read once its deadman switch has
// fired and the buffered bytes preceding the failure have been drained.
var ErrDeadman = errors.New(Namespace + ": producer deadman switch fired before buffer was ended")

// TaskError tags a user failure (or a planned exception) with the task
// that produced it.
type TaskError struct {
	err  error
	task *Task
}

// newTaskError tags err with the task that produced it, preserving
// whichever task originally failed if err has already been tagged by one
// of its descendants and simply propagated back up (e.g. a parent
// returning its child's Await error as its own).
func newTaskError(err error, t *Task) error {
	if err == nil {
		return nil
	}
	var existing *TaskError
	if errors.As(err, &existing) {
		return err
	}
	return &TaskError{err: err, task: t}
}

func (e *TaskError) Error() string { return e.err.Error() }
func (e *TaskError) Unwrap() error { return e.err }

// TaskID returns the ID of the task that produced the failure.
func (e *TaskError) TaskID() uint64 { return e.task.id }

func (e *TaskError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%d): %+v", e.task.id, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractTaskID returns the ID of the task that produced err, if err (or
// something it wraps) is a *TaskError.
func ExtractTaskID(err error) (uint64, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te.TaskID(), true
	}
	return 0, false
}
