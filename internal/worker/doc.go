// Package worker runs text-generation workers on behalf of the bridge.
//
// A worker is an opaque program that receives a single JSON argument
// {"prompt": ..., "provider": ...} and, when it exits cleanly, prints one JSON
// object to stdout: either {"response": ...} or {"error": ...}. A non-zero
// exit is a crash and stderr carries the diagnostic.
//
// [Executor] is the launch contract. Implementations:
//
//   - [Subprocess] starts a local process per request, draining stdout and
//     stderr concurrently before observing the exit status.
//   - [Lambda] invokes an AWS Lambda function; the response payload plays the
//     role of stdout and a function error plays the role of a crash.
//   - [OpenAI] calls an OpenAI-compatible chat completion endpoint in process
//     and emits the same document a worker script would.
//
// Executors return a [Result] for every worker that ran, even one that
// failed. The error return is reserved for workers that never ran
// (*errors.ProcessStartError) or were killed because their context ended
// (wrapping context.DeadlineExceeded or context.Canceled).
//
// [Registry] maps provider ids to executors and per-provider timeouts.
package worker
