package threadpool

import (
	"log/slog"

	cells "github.com/psincf/Cells-sub001"
)

// Idle selects what a worker does while the queue is empty.
type Idle int

const (
	// IdleSpin polls the queue and yields the processor between polls.
	// Lowest wake latency, highest CPU use.
	IdleSpin Idle = iota

	// IdlePark blocks the worker on a condition variable until work is pushed.
	IdlePark
)

func (i Idle) String() string {
	switch i {
	case IdleSpin:
		return "spin"
	case IdlePark:
		return "park"
	default:
		return "unknown"
	}
}

// Option configures a Pool during creation.
//
// Example:
//
//	pool := threadpool.New(8,
//	    threadpool.WithIdle(threadpool.IdlePark),
//	    threadpool.WithAffinity(0, 1, 2, 3),
//	)
type Option func(*options)

type options struct {
	logger *slog.Logger
	cpus   []int
	idle   Idle
}

func defaultOptions() options {
	return options{
		logger: nil, // resolved to cells.Logger() in New
		idle:   IdleSpin,
	}
}

// WithLogger sets the logger for pool lifecycle events.
// Defaults to the logger installed with cells.SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithAffinity pins worker threads to CPUs: the n-th spawned worker is pinned
// to cpus[n % len(cpus)]. Pinning failures are logged and otherwise ignored.
func WithAffinity(cpus ...int) Option {
	return func(o *options) {
		o.cpus = append([]int(nil), cpus...)
	}
}

// WithIdle selects the idle strategy of workers.
func WithIdle(i Idle) Option {
	return func(o *options) {
		o.idle = i
	}
}

func (o *options) resolve() {
	if o.logger == nil {
		o.logger = cells.Logger()
	}
}
