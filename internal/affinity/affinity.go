// Package affinity pins the calling OS thread to a CPU.
//
// Callers must hold the thread with runtime.LockOSThread first, otherwise the
// Go scheduler may move the goroutine to another, unpinned thread.
package affinity

import "errors"

// ErrUnsupported is returned on platforms without thread affinity control.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// ErrInvalidCPU is returned for negative CPU indices.
var ErrInvalidCPU = errors.New("affinity: invalid cpu")
