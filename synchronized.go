package async

import "time"

// Synchronized is a set of independent, non-reentrant named locks
// identified by string key. Unlike Lock, a task that tries to re-enter a
// key it already holds fails loudly with ErrLockReentrantMiss instead of
// blocking or stacking — it exists for call sites where re-entrancy is a
// bug, not a convenience.
type Synchronized struct {
	holders map[string]*Task
	flags   map[string]*struct{}
}

// NewSynchronized creates an empty Synchronized.
func NewSynchronized() *Synchronized {
	return &Synchronized{
		holders: make(map[string]*Task),
		flags:   make(map[string]*struct{}),
	}
}

func (s *Synchronized) flagFor(key string) *struct{} {
	f, ok := s.flags[key]
	if !ok {
		f = new(struct{})
		s.flags[key] = f
	}
	return f
}

// Run executes fn with key held exclusively, waiting for any current
// holder to finish first. It returns ErrLockReentrantMiss immediately if
// t already holds key.
func (s *Synchronized) Run(t *Task, key string, timeout time.Duration, fn func(t *Task) (any, error)) (any, error) {
	if t == nil {
		return nil, ErrOutsideTask
	}
	if s.holders[key] == t {
		return nil, ErrLockReentrantMiss
	}

	flag := s.flagFor(key)
	deadline, hasDeadline := deadlineFor(timeout)
	for s.holders[key] != nil {
		wait, err := remainingOrErr(hasDeadline, deadline)
		if err != nil {
			return nil, err
		}
		if err := AwaitFlag(t, flag, wait); err != nil {
			return nil, err
		}
	}

	s.holders[key] = t
	defer func() {
		delete(s.holders, key)
		RaiseFlag(flag)
	}()
	return fn(t)
}
