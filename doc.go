// Package async is a single-threaded cooperative coroutine runtime.
//
// It multiplexes lightweight tasks over blocking I/O and timers using one
// event loop (see package driver) and provides the synchronization
// primitives tasks use to coordinate: channels, a broadcast publisher, a
// wait-group, a rate limiter, and a reentrant lock. Everything above the
// driver is built strictly on top of the suspend/resume API exposed by
// Task — there is no direct use of raw goroutine synchronization in the
// primitives themselves.
//
// Model
//
// A Task is a unit of cooperatively scheduled work. It is started by Run
// (the root of a task tree) or Go (a child of the currently running task).
// A task runs on its own goroutine but only one task's user code executes
// at any instant: creating or resuming a task hands control to it and
// blocks the caller until the task suspends again or terminates. This
// handoff is what lets the rest of the runtime — the scheduler, the
// channel buffers, the publisher offsets — mutate shared state without
// locks, the same way a single-threaded event loop would.
//
// Suspension points
//
// The only way a task yields control is by calling one of Sleep, Yield,
// Idle, Readable, Writable, Stream, Await, AwaitFlag, Select, or Preempt
// (when its time slice is exceeded), or by blocking on a Channel,
// Publisher, WaitGroup, RateLimiter, or Lock operation — all of which are
// themselves built on AwaitFlag/Sleep under the hood.
//
// Errors
//
// Failures raised inside a task are captured in a per-task exception
// holder (see exception.go) and escalate to the task's owning Context if
// never observed via Await or Select, ultimately surfacing from the
// outermost Run call. See errors.go for the error kinds.
//
// Configuration
//
// SetDefaultTimeout, SetPreemptInterval, SetDriver, and SetPromiseHandler
// configure process-wide defaults. SetDefaultTimeout, SetPreemptInterval
// and SetPromiseHandler may be called at any time and apply to operations
// started after the call; SetDriver must be called before the driver is
// implicitly constructed.
package async
