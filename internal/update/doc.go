// Package update delivers status change events to the registry.
//
// Submit never blocks the caller: events are appended to an unbounded FIFO
// and a single goroutine writes them out in submission order, so transitions
// of the same instance reach the registry in the order they were detected.
// Writes are retried with exponential backoff and guarded by a circuit
// breaker; while the breaker is open events stay queued. Delivery is
// at-least-once.
package update
