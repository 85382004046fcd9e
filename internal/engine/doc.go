// Package engine runs background jobs on a single-writer loop.
//
// Jobs are fire-and-forget work spawned by save hooks, such as refetching a
// parent work package after one of its children was saved. Callers never
// wait on a job; they Enqueue it and move on.
//
// Single-Writer Loop:
// One goroutine calls Loop.Run and executes jobs one at a time in FIFO
// order. Every job is stamped with a seq from the loop's atomic counter when
// it is enqueued, so log records can be ordered without wall-clock time.
//
// Error Handling:
// A failing or panicking job is logged with its name, key and seq and the
// loop moves on. Jobs are never retried.
//
// Shutdown:
// Stop closes the queue. Jobs already queued still run before Run returns;
// jobs enqueued after Stop are rejected.
//
// Immediate runs jobs inline in the caller's goroutine with the same
// logging and recovery, for deterministic callers such as tests and the
// scenario harness. Detached starts a goroutine per job and is the
// fallback when no loop is running.
package engine
