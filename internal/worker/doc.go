// Package worker provides the broker's single serialized task queue.
//
// # Overview
//
// Every outbound call to a service, window connection or input pipeline is
// posted here instead of being made under the broker lock, and every timer
// callback fires here. Tasks run one at a time in posting order.
//
//	q := worker.New(logger)
//	h := q.PostDelayed(100*time.Millisecond, deliver)
//	q.Cancel(h) // deliver will never run
//
// # Cancellation
//
// Cancel and the dispatch loop share one mutex: a task is either marked
// started or cancelled, never both. A true return from Cancel therefore
// guarantees the task has not run and will not run.
package worker
