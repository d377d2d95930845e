package bridge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/genbridge/internal/errors"
	"github.com/Iron-Ham/genbridge/internal/worker"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name         string
		res          *worker.Result
		err          error
		wantKind     Kind
		wantResponse string
		wantDetail   string
		wantSentinel error
	}{
		{
			name:         "response string",
			res:          &worker.Result{Stdout: `{"response":"Hello"}`},
			wantKind:     KindSuccess,
			wantResponse: "Hello",
		},
		{
			name:         "response with trailing newline",
			res:          &worker.Result{Stdout: "{\"response\":\"Hello\"}\n"},
			wantKind:     KindSuccess,
			wantResponse: "Hello",
		},
		{
			name:     "response absent",
			res:      &worker.Result{Stdout: `{}`},
			wantKind: KindSuccess,
		},
		{
			name:         "response not a string",
			res:          &worker.Result{Stdout: `{"response":{"text":"hi"}}`},
			wantKind:     KindSuccess,
			wantResponse: `{"text":"hi"}`,
		},
		{
			name:         "falsy error ignored",
			res:          &worker.Result{Stdout: `{"error":null,"response":"ok"}`},
			wantKind:     KindSuccess,
			wantResponse: "ok",
		},
		{
			name:         "empty error string ignored",
			res:          &worker.Result{Stdout: `{"error":"","response":"ok"}`},
			wantKind:     KindSuccess,
			wantResponse: "ok",
		},
		{
			name:         "false error ignored",
			res:          &worker.Result{Stdout: `{"error":false,"response":"ok"}`},
			wantKind:     KindSuccess,
			wantResponse: "ok",
		},
		{
			name:         "application error",
			res:          &worker.Result{Stdout: `{"error":"rate limited"}`},
			wantKind:     KindApplicationError,
			wantDetail:   "rate limited",
			wantSentinel: errors.ErrApplication,
		},
		{
			name:         "application error wins over response",
			res:          &worker.Result{Stdout: `{"error":"bad","response":"ignored"}`},
			wantKind:     KindApplicationError,
			wantDetail:   "bad",
			wantSentinel: errors.ErrApplication,
		},
		{
			name:         "structured application error",
			res:          &worker.Result{Stdout: `{"error":{"code":429}}`},
			wantKind:     KindApplicationError,
			wantDetail:   `{"code":429}`,
			wantSentinel: errors.ErrApplication,
		},
		{
			name:         "not json",
			res:          &worker.Result{Stdout: "not-json"},
			wantKind:     KindOutputParseError,
			wantDetail:   "not-json",
			wantSentinel: errors.ErrOutputParse,
		},
		{
			name:         "empty stdout",
			res:          &worker.Result{},
			wantKind:     KindOutputParseError,
			wantSentinel: errors.ErrOutputParse,
		},
		{
			name:     "json array",
			res:      &worker.Result{Stdout: `[1,2]`},
			wantKind: KindSuccess,
		},
		{
			name:     "json string",
			res:      &worker.Result{Stdout: `"hello"`},
			wantKind: KindSuccess,
		},
		{
			name:     "json number",
			res:      &worker.Result{Stdout: "42\n"},
			wantKind: KindSuccess,
		},
		{
			name:     "json bool",
			res:      &worker.Result{Stdout: ` true `},
			wantKind: KindSuccess,
		},
		{
			name:         "json null",
			res:          &worker.Result{Stdout: `null`},
			wantKind:     KindOutputParseError,
			wantDetail:   "null",
			wantSentinel: errors.ErrOutputParse,
		},
		{
			name:         "truncated output",
			res:          &worker.Result{Stdout: `{"response":"He`, StdoutTruncated: true},
			wantKind:     KindOutputParseError,
			wantDetail:   `{"response":"He`,
			wantSentinel: errors.ErrOutputParse,
		},
		{
			name:         "exit code with stderr",
			res:          &worker.Result{ExitCode: 1, Stderr: "Traceback: boom"},
			wantKind:     KindWorkerExitError,
			wantDetail:   "Traceback: boom",
			wantSentinel: errors.ErrWorkerExit,
		},
		{
			name:         "exit code without stderr",
			res:          &worker.Result{ExitCode: 2},
			wantKind:     KindWorkerExitError,
			wantDetail:   "worker exited with code 2",
			wantSentinel: errors.ErrWorkerExit,
		},
		{
			name:         "exit code beats valid stdout",
			res:          &worker.Result{ExitCode: 1, Stdout: `{"response":"Hello"}`},
			wantKind:     KindWorkerExitError,
			wantDetail:   "worker exited with code 1",
			wantSentinel: errors.ErrWorkerExit,
		},
		{
			name:         "killed by signal",
			res:          &worker.Result{ExitCode: -1, Signal: "killed"},
			wantKind:     KindWorkerExitError,
			wantDetail:   "worker terminated by signal killed",
			wantSentinel: errors.ErrWorkerExit,
		},
		{
			name:         "launch failure",
			err:          errors.NewProcessStartError("python3", errors.New("permission denied")),
			wantKind:     KindProcessStartError,
			wantDetail:   "permission denied",
			wantSentinel: errors.ErrProcessStart,
		},
		{
			name:         "unknown error without result",
			err:          errors.New("connection refused"),
			wantKind:     KindProcessStartError,
			wantDetail:   "connection refused",
			wantSentinel: errors.ErrProcessStart,
		},
		{
			name:         "unknown error after the worker ran",
			res:          &worker.Result{ExitCode: 0, Stdout: `{"response":"x"}`},
			err:          errors.New("read worker output: broken pipe"),
			wantKind:     KindWorkerExitError,
			wantDetail:   "read worker output: broken pipe",
			wantSentinel: errors.ErrWorkerExit,
		},
		{
			name:         "deadline",
			res:          &worker.Result{ExitCode: -1, Signal: "killed"},
			err:          fmt.Errorf("worker killed after 2m0s: %w", context.DeadlineExceeded),
			wantKind:     KindWorkerTimeoutError,
			wantDetail:   "worker did not finish within 2m0s and was killed",
			wantSentinel: errors.ErrTimeout,
		},
		{
			name:         "canceled",
			res:          &worker.Result{ExitCode: -1, Signal: "killed"},
			err:          fmt.Errorf("worker killed: %w", context.Canceled),
			wantKind:     KindCanceled,
			wantDetail:   "request canceled before the worker finished",
			wantSentinel: errors.ErrCanceled,
		},
		{
			name:         "no result and no error",
			wantKind:     KindProcessStartError,
			wantDetail:   "executor returned no result",
			wantSentinel: errors.ErrProcessStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Translate("openai", 2*time.Minute, tt.res, tt.err)

			if out.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", out.Kind, tt.wantKind)
			}
			if out.Response != tt.wantResponse {
				t.Errorf("Response = %q, want %q", out.Response, tt.wantResponse)
			}
			if out.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", out.Detail, tt.wantDetail)
			}
			if out.Provider != "openai" {
				t.Errorf("Provider = %q", out.Provider)
			}
			if tt.wantSentinel == nil {
				if out.Err != nil {
					t.Errorf("Err = %v, want nil", out.Err)
				}
				return
			}
			if !errors.Is(out.Err, tt.wantSentinel) {
				t.Errorf("Err = %v, want it to match %v", out.Err, tt.wantSentinel)
			}
		})
	}
}

func TestTranslate_RetryableHint(t *testing.T) {
	out := Translate("openai", 0, &worker.Result{Stdout: `{"error":"overloaded","retryable":true}`}, nil)
	if out.Kind != KindApplicationError {
		t.Fatalf("Kind = %v", out.Kind)
	}
	if !errors.IsRetryable(out.Err) {
		t.Error("retryable hint should be recorded on the error")
	}

	out = Translate("openai", 0, &worker.Result{Stdout: `{"error":"bad prompt"}`}, nil)
	if errors.IsRetryable(out.Err) {
		t.Error("application errors are not retryable without a hint")
	}
}

func TestTranslate_TimeoutWithoutLimit(t *testing.T) {
	out := Translate("openai", 0, nil, context.DeadlineExceeded)
	if out.Kind != KindWorkerTimeoutError {
		t.Fatalf("Kind = %v", out.Kind)
	}
	if !strings.Contains(out.Detail, "deadline") {
		t.Errorf("Detail = %q", out.Detail)
	}
}

func TestTranslate_RanAndExitCode(t *testing.T) {
	out := Translate("openai", 0, &worker.Result{ExitCode: 3, Duration: time.Second}, nil)
	if !out.Ran || out.ExitCode != 3 || out.Duration != time.Second {
		t.Errorf("Outcome = %+v", out)
	}

	out = Translate("openai", 0, nil, errors.NewProcessStartError("python3", errors.New("nope")))
	if out.Ran {
		t.Error("launch failure should report Ran = false")
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindSuccess, "success"},
		{KindValidationError, "validation_error"},
		{KindProcessStartError, "process_start_error"},
		{KindWorkerExitError, "worker_exit_error"},
		{KindOutputParseError, "output_parse_error"},
		{KindApplicationError, "application_error"},
		{KindWorkerTimeoutError, "worker_timeout_error"},
		{KindCapacityError, "capacity_error"},
		{KindCanceled, "canceled"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
