package async

import (
	"sync"
	"time"

	"github.com/ygrebnov/async/driver"
	"github.com/ygrebnov/async/metrics"
)

// config centralizes package-level runtime configuration: a plain struct
// holding current values plus a defaultConfig() constructor, with
// validation/guards kept out of the struct itself.
type config struct {
	defaultTimeout  time.Duration
	preemptInterval time.Duration
	promiseHandler  func(t *Task, p PromiseLike) (*Task, error)
}

// defaultConfig centralizes default values, applied once at package init.
func defaultConfig() config {
	return config{
		defaultTimeout:  DefaultTimeout,
		preemptInterval: DefaultPreemptInterval,
	}
}

const (
	// DefaultTimeout is the deadline applied to a waiting operation whose
	// caller passed a negative timeout (zero means no deadline; see
	// deadlineFor).
	DefaultTimeout = 30 * time.Second

	// DefaultPreemptInterval is the default "time since last preempt"
	// threshold, on the tens-of-microseconds order, chosen at the upper
	// end of that range so Preempt stays cheap in the common case of
	// tight, short-lived task bodies.
	DefaultPreemptInterval = 100 * time.Microsecond
)

var (
	cfgMu sync.RWMutex
	cfg   = defaultConfig()

	// driverOnce guards implicit Driver construction with a sync.Once;
	// calling SetDriver after this latch has fired is a usage error.
	driverOnce     sync.Once
	driverMu       sync.Mutex
	activeDriver   *driver.Driver
	driverExplicit bool

	pendingMetrics metrics.Provider
)

func currentDriver() *driver.Driver {
	driverMu.Lock()
	defer driverMu.Unlock()
	if activeDriver == nil {
		driverOnce.Do(func() {
			if activeDriver == nil {
				opts := []driver.Option{}
				if pendingMetrics != nil {
					opts = append(opts, driver.WithMetrics(pendingMetrics))
				}
				activeDriver = driver.New(opts...)
			}
		})
	}
	return activeDriver
}

// SetMetrics wires a metrics.Provider into the implicitly constructed
// driver (tick duration, ready-queue depth, tasks-resumed counters). Must
// be called before the first task runs; has no effect on a driver
// installed explicitly via SetDriver, which owns its own construction.
func SetMetrics(p metrics.Provider) {
	driverMu.Lock()
	pendingMetrics = p
	driverMu.Unlock()
}

// SetDriver installs a custom Driver implementation. Must be called before
// the first task runs; calling it after implicit construction has already
// occurred returns ErrDriverAlreadySet.
func SetDriver(d *driver.Driver) error {
	driverMu.Lock()
	defer driverMu.Unlock()
	if activeDriver != nil {
		return ErrDriverAlreadySet
	}
	activeDriver = d
	driverExplicit = true
	return nil
}

// SetDefaultTimeout overrides the deadline used by waiting operations that
// did not specify one explicitly. Safe to call at any time; takes effect
// for subsequent waits only.
func SetDefaultTimeout(d time.Duration) {
	cfgMu.Lock()
	cfg.defaultTimeout = d
	cfgMu.Unlock()
}

func defaultTimeout() time.Duration {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.defaultTimeout
}

// SetPreemptInterval overrides the threshold Preempt uses to decide
// whether the calling task has held the single driver thread long enough
// to warrant yielding.
func SetPreemptInterval(d time.Duration) {
	cfgMu.Lock()
	cfg.preemptInterval = d
	cfgMu.Unlock()
}

func preemptInterval() time.Duration {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.preemptInterval
}

// SetPromiseHandler registers the adapter used by Await when given a
// PromiseLike rather than a *Task: fn spawns a proxy task (a child of the
// awaiting task t) that terminates with the promise's eventual value or
// failure, so Await can treat the result uniformly as a *Task from then
// on.
func SetPromiseHandler(fn func(t *Task, p PromiseLike) (*Task, error)) {
	cfgMu.Lock()
	cfg.promiseHandler = fn
	cfgMu.Unlock()
}

func promiseHandler() func(t *Task, p PromiseLike) (*Task, error) {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.promiseHandler
}
