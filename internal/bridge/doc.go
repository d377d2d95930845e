// Package bridge turns a generation request into exactly one worker run and
// exactly one classified outcome.
//
// A request body is validated ([Validate]), serialized into the worker
// argument, and handed to the provider's [worker.Executor] once a worker slot
// is free. The worker's exit status and aggregated output are then classified
// by [Translate] in a fixed order: launch failure, abnormal exit, unparseable
// output, worker-reported error, success. Deadlines and cancellation are
// decided from the executor error before any of those.
//
// Nothing is retried. A Bridge holds no per-request state; the only shared
// state is the worker-slot semaphore and the metrics recorder.
//
// Usage:
//
//	b := bridge.New(registry,
//		bridge.WithLogger(logger),
//		bridge.WithMaxConcurrent(8),
//	)
//	outcome := b.Generate(ctx, body)
package bridge
