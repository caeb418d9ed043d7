// Package cells is the support core of a real-time interactive application:
// the pieces that move data between the simulation, render and input threads
// without stalling a frame.
//
// # Packages
//
//   - slab: stable-key dense arena for frequently churned objects
//   - buffer: lock-protected exchange queues (single and sharded)
//   - quintuple: five-slot snapshot buffer, readers never wait on the writer
//   - threadpool: resizable work-stealing pool with lockstep frame barriers
//   - runner: fixed-function scheduler, one thread per system or round robin
//
// # Logging
//
// Nothing is logged by default. Install a logger with SetLogger:
//
//	cells.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
//
// # Errors
//
// The core has no recoverable error taxonomy. Misuse (an unknown slab key,
// a second in-flight snapshot write, a negative thread count) panics with a
// wrapped package sentinel that can be matched with errors.Is after recover.
package cells
