// Package queue provides a single-concurrency FIFO execution queue.
//
// Operations are admitted one at a time, in submission order, by one worker
// goroutine per Queue. Each submission returns a Future that resolves exactly
// once with the operation's result. A failing or panicking operation rejects
// only its own Future; operations queued behind it still run.
//
// Queued operations cannot be withdrawn. Waiting on a Future with a context
// that expires only stops that wait; the operation keeps its place in line.
package queue
