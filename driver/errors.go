package driver

import "errors"

// ErrDoubleRegister is returned by Readable/Writable/Stream when a task is
// already registered for the same (handle, direction) pair.
var ErrDoubleRegister = errors.New("driver: handle already registered for this direction")

// ErrNotPending is returned by Cancel when id is not currently parked in
// any wait-structure.
var ErrNotPending = errors.New("driver: id is not currently suspended")
