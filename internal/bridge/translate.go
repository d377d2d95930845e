package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/genbridge/internal/errors"
	"github.com/Iron-Ham/genbridge/internal/worker"
)

// Translate classifies one executor run. timeout is the deadline the run was
// given and only appears in the timeout diagnostic.
//
// Deadline and cancellation are read from execErr first. After that the
// checks run in order and the first match wins:
//
//  1. launch failure
//  2. non-zero exit or death by signal
//  3. stdout truncated, not valid JSON, or null
//  4. a truthy "error" field
//  5. success, with the "response" field as text
func Translate(provider string, timeout time.Duration, res *worker.Result, execErr error) Outcome {
	out := Outcome{Provider: provider}
	if res != nil {
		out.Ran = true
		out.ExitCode = res.ExitCode
		out.Duration = res.Duration
	}

	switch {
	case execErr == nil:
	case errors.Is(execErr, context.DeadlineExceeded):
		terr := errors.NewTimeoutError("worker did not finish", timeout).WithCause(execErr).WithProvider(provider)
		out.Kind = KindWorkerTimeoutError
		out.Detail = timeoutDetail(timeout)
		out.Err = terr
		return out
	case errors.Is(execErr, context.Canceled):
		out.Kind = KindCanceled
		out.Detail = "request canceled before the worker finished"
		out.Err = fmt.Errorf("%w: %w", errors.ErrCanceled, execErr)
		return out
	default:
		return classifyExecError(out, provider, res, execErr)
	}

	if res == nil {
		// An executor must return a result or an error.
		return classifyExecError(out, provider, nil, errors.New("executor returned no result"))
	}

	if !res.Succeeded() {
		exitErr := errors.NewWorkerExitError(res.ExitCode, res.Stderr).
			WithSignal(res.Signal).
			WithProvider(provider)
		out.Kind = KindWorkerExitError
		out.Detail = exitErr.Diagnostic()
		out.Err = exitErr
		return out
	}

	if res.StdoutTruncated {
		return parseFailure(out, provider, res.Stdout, errors.New("output exceeded the retention limit"))
	}
	var value json.RawMessage
	if err := json.Unmarshal([]byte(res.Stdout), &value); err != nil {
		return parseFailure(out, provider, res.Stdout, err)
	}
	if string(value) == "null" {
		return parseFailure(out, provider, res.Stdout, errors.New("output is null"))
	}
	// Arrays, strings, numbers and booleans carry neither field.
	var doc map[string]json.RawMessage
	if value[0] == '{' {
		if err := json.Unmarshal(value, &doc); err != nil {
			return parseFailure(out, provider, res.Stdout, err)
		}
	}

	if raw, ok := doc["error"]; ok && truthy(raw) {
		msg := textValue(raw)
		appErr := errors.NewApplicationError(msg).
			WithRetryable(retryableHint(doc)).
			WithProvider(provider)
		out.Kind = KindApplicationError
		out.Detail = msg
		out.Err = appErr
		return out
	}

	out.Kind = KindSuccess
	if raw, ok := doc["response"]; ok {
		out.Response = textValue(raw)
	}
	return out
}

// classifyExecError handles executor errors that are not deadlines or
// cancellation. Without a result nothing ran, so it is a launch failure. With
// a result the worker ran but its output could not be collected.
func classifyExecError(out Outcome, provider string, res *worker.Result, execErr error) Outcome {
	var startErr *errors.ProcessStartError
	if errors.As(execErr, &startErr) || res == nil {
		if startErr == nil {
			startErr = errors.NewProcessStartError("worker", execErr).WithProvider(provider)
		}
		out.Kind = KindProcessStartError
		out.Ran = false
		out.Detail = startErr.Diagnostic()
		out.Err = startErr
		return out
	}

	stderr := res.Stderr
	if stderr == "" {
		stderr = execErr.Error()
	}
	exitErr := errors.NewWorkerExitError(res.ExitCode, stderr).
		WithSignal(res.Signal).
		WithProvider(provider)
	out.Kind = KindWorkerExitError
	out.Detail = exitErr.Diagnostic()
	out.Err = errors.Join(exitErr, execErr)
	return out
}

func parseFailure(out Outcome, provider, raw string, cause error) Outcome {
	out.Kind = KindOutputParseError
	out.Detail = raw
	out.Err = errors.NewOutputParseError(raw, cause).WithProvider(provider)
	return out
}

func timeoutDetail(timeout time.Duration) string {
	if timeout > 0 {
		return fmt.Sprintf("worker did not finish within %s and was killed", timeout)
	}
	return "worker did not finish before the deadline and was killed"
}

// truthy treats null, false, 0 and "" as absent.
func truthy(raw json.RawMessage) bool {
	switch v := strings.TrimSpace(string(raw)); v {
	case "null", "false", `""`:
		return false
	default:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f != 0
		}
		return v != ""
	}
}

// textValue returns a JSON string's content, or the JSON text of any other value.
func textValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// retryableHint reads the optional boolean "retryable" field.
func retryableHint(doc map[string]json.RawMessage) bool {
	raw, ok := doc["retryable"]
	if !ok {
		return false
	}
	var b bool
	return json.Unmarshal(raw, &b) == nil && b
}
