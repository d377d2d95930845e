package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Executor runs one worker for one request.
type Executor interface {
	// Execute runs the worker to completion. It must launch at most once and
	// must not return until the worker has exited or been killed.
	Execute(ctx context.Context, inv Invocation) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inv Invocation) (*Result, error)

// Execute calls f(ctx, inv).
func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	return f(ctx, inv)
}

// Invocation is the argument handed to a worker.
type Invocation struct {
	Provider string
	// Arg is the serialized request, passed as the worker's last argument.
	Arg string
}

// requestArg fixes the key order of the serialized argument.
type requestArg struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

// NewInvocation serializes prompt and provider into the worker argument.
// HTML characters are left unescaped so the worker sees the prompt verbatim.
func NewInvocation(prompt, provider string) (Invocation, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(requestArg{Prompt: prompt, Provider: provider}); err != nil {
		return Invocation{}, fmt.Errorf("encode worker argument: %w", err)
	}
	return Invocation{
		Provider: provider,
		Arg:      string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))),
	}, nil
}

// Result is what a worker left behind once it exited.
type Result struct {
	// ExitCode is the process exit code, or -1 when killed by a signal.
	ExitCode int
	// Signal names the terminating signal, if any.
	Signal string

	Stdout string
	Stderr string

	// StdoutTruncated and StderrTruncated report output dropped past the
	// retention cap.
	StdoutTruncated bool
	StderrTruncated bool

	Duration time.Duration
}

// Succeeded reports whether the worker exited with code 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && r.Signal == ""
}
