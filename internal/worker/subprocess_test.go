package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/errors"
	"github.com/Iron-Ham/genbridge/internal/testutil"
)

func newTestSubprocess(t *testing.T, sh, script string) *Subprocess {
	t.Helper()
	s, err := NewSubprocess(config.SubprocessConfig{
		Command:        sh,
		Script:         script,
		EnvPassthrough: []string{"*"},
		KillGrace:      time.Second,
	})
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}
	return s
}

func mustInvocation(t *testing.T, prompt, provider string) Invocation {
	t.Helper()
	inv, err := NewInvocation(prompt, provider)
	if err != nil {
		t.Fatalf("NewInvocation() error = %v", err)
	}
	return inv
}

func TestNewSubprocess_Validation(t *testing.T) {
	if _, err := NewSubprocess(config.SubprocessConfig{}); err == nil {
		t.Error("NewSubprocess() with empty command should fail")
	}
	if _, err := NewSubprocess(config.SubprocessConfig{Command: "sh", EnvPassthrough: []string{"["}}); err == nil {
		t.Error("NewSubprocess() with bad glob should fail")
	}
}

func TestSubprocess_Argv(t *testing.T) {
	s, err := NewSubprocess(config.SubprocessConfig{
		Command: "python3",
		Args:    []string{"-u"},
		Script:  "agents/llm_handler.py",
	})
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}

	got := s.argv(Invocation{Arg: `{"prompt":"hi","provider":"openai"}`})
	want := []string{"-u", "agents/llm_handler.py", `{"prompt":"hi","provider":"openai"}`}
	if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
		t.Errorf("argv() = %q, want %q", got, want)
	}
}

func TestSubprocess_Execute(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	tests := []struct {
		name       string
		script     string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "response on stdout",
			script:     `printf '{"response":"Hello"}'`,
			wantExit:   0,
			wantStdout: `{"response":"Hello"}`,
		},
		{
			name:       "request argument is passed verbatim",
			script:     `printf '%s' "$1"`,
			wantExit:   0,
			wantStdout: `{"prompt":"<say> \"hi\" & bye","provider":"openai"}`,
		},
		{
			name:       "crash with stderr",
			script:     "echo boom >&2\nexit 1",
			wantExit:   1,
			wantStderr: "boom\n",
		},
		{
			name:       "both streams kept apart",
			script:     "echo out\necho err >&2\necho more",
			wantExit:   0,
			wantStdout: "out\nmore\n",
			wantStderr: "err\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSubprocess(t, sh, testutil.WriteWorkerScript(t, tt.script))

			res, err := s.Execute(context.Background(), mustInvocation(t, `<say> "hi" & bye`, "openai"))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if res.Stderr != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestSubprocess_Execute_LargeOutput(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	// Enough to fill a pipe buffer on both streams.
	script := `i=0
while [ $i -lt 4000 ]; do
  echo "line $i of stdout output padding padding"
  echo "line $i of stderr output padding padding" >&2
  i=$((i+1))
done`
	s := newTestSubprocess(t, sh, testutil.WriteWorkerScript(t, script))

	res, err := s.Execute(context.Background(), mustInvocation(t, "x", "openai"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.Count(res.Stdout, "\n"); got != 4000 {
		t.Errorf("stdout lines = %d, want 4000", got)
	}
	if got := strings.Count(res.Stderr, "\n"); got != 4000 {
		t.Errorf("stderr lines = %d, want 4000", got)
	}
	if !strings.HasPrefix(res.Stdout, "line 0 of stdout") || !strings.Contains(res.Stdout, "line 3999 of stdout") {
		t.Error("stdout lost or reordered data")
	}
}

func TestSubprocess_Execute_OutputCap(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	s, err := NewSubprocess(config.SubprocessConfig{
		Command:        sh,
		Script:         testutil.WriteWorkerScript(t, "printf 'abcdefghij'\nprintf 'xy' >&2"),
		EnvPassthrough: []string{"*"},
		MaxOutputBytes: 4,
		KillGrace:      time.Second,
	})
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}

	res, err := s.Execute(context.Background(), mustInvocation(t, "x", "openai"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Stdout != "abcd" || !res.StdoutTruncated {
		t.Errorf("Stdout = %q truncated=%v, want %q truncated=true", res.Stdout, res.StdoutTruncated, "abcd")
	}
	if res.Stderr != "xy" || res.StderrTruncated {
		t.Errorf("Stderr = %q truncated=%v, want %q truncated=false", res.Stderr, res.StderrTruncated, "xy")
	}
}

func TestSubprocess_Execute_MissingExecutable(t *testing.T) {
	s, err := NewSubprocess(config.SubprocessConfig{
		Command: "/nonexistent/genbridge-worker",
	})
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}

	res, err := s.Execute(context.Background(), mustInvocation(t, "x", "openai"))
	if res != nil {
		t.Errorf("Execute() result = %+v, want nil on launch failure", res)
	}
	var startErr *errors.ProcessStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Execute() error = %v, want *ProcessStartError", err)
	}
	if startErr.Provider() != "openai" {
		t.Errorf("Provider() = %q, want %q", startErr.Provider(), "openai")
	}
}

func TestSubprocess_Execute_Timeout(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	// The background child keeps stdout open; the group kill must take it too.
	s := newTestSubprocess(t, sh, testutil.WriteWorkerScript(t, "sleep 30 &\nsleep 30"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := s.Execute(ctx, mustInvocation(t, "x", "openai"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want context.DeadlineExceeded", err)
	}
	if res == nil {
		t.Fatal("Execute() result should not be nil after kill")
	}
	if res.Succeeded() {
		t.Error("killed worker should not report success")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Execute() took %s after timeout", elapsed)
	}
}

func TestSubprocess_Execute_Canceled(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	s := newTestSubprocess(t, sh, testutil.WriteWorkerScript(t, "sleep 30"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := s.Execute(ctx, mustInvocation(t, "x", "openai"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestSubprocess_Execute_Signal(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	s := newTestSubprocess(t, sh, testutil.WriteWorkerScript(t, "kill -9 $$"))

	res, err := s.Execute(context.Background(), mustInvocation(t, "x", "openai"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if res.Signal == "" {
		t.Error("Signal should name the terminating signal")
	}
	if res.Succeeded() {
		t.Error("signaled worker should not report success")
	}
}

func TestSubprocess_Execute_Environment(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	s, err := NewSubprocess(config.SubprocessConfig{
		Command:        sh,
		Script:         testutil.WriteWorkerScript(t, `printf '%s|%s|%s' "$GB_KEEP" "$GB_DROP" "$GB_EXTRA"`),
		EnvPassthrough: []string{"GB_K*"},
		Env:            []string{"GB_EXTRA=set"},
		KillGrace:      time.Second,
	})
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}
	s.environ = func() []string {
		return []string{"GB_KEEP=kept", "GB_DROP=dropped", "GB_EXTRA=inherited"}
	}

	res, err := s.Execute(context.Background(), mustInvocation(t, "x", "openai"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Stdout != "kept||set" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "kept||set")
	}
}

func TestSubprocess_Execute_IndependentRuns(t *testing.T) {
	sh := testutil.SkipIfNoShell(t)

	dir := t.TempDir()
	script := testutil.WriteWorkerScript(t, `echo run >> "`+dir+`/runs"
printf '{"response":"ok"}'`)
	s := newTestSubprocess(t, sh, script)

	for i := 0; i < 2; i++ {
		if _, err := s.Execute(context.Background(), mustInvocation(t, "same", "openai")); err != nil {
			t.Fatalf("Execute() #%d error = %v", i+1, err)
		}
	}

	data := testutil.ReadFile(t, dir+"/runs")
	if got := strings.Count(data, "run\n"); got != 2 {
		t.Errorf("worker ran %d times, want 2", got)
	}
}

func TestRunError(t *testing.T) {
	tests := []struct {
		name     string
		res      *Result
		exited   bool
		ctxErr   error
		waitErr  error
		drainErr error
		want     error
		wantNil  bool
	}{
		{
			name:    "clean exit",
			res:     &Result{ExitCode: 0},
			exited:  true,
			wantNil: true,
		},
		{
			name:    "clean exit as the deadline fires",
			res:     &Result{ExitCode: 0},
			exited:  true,
			ctxErr:  context.DeadlineExceeded,
			waitErr: context.DeadlineExceeded,
			wantNil: true,
		},
		{
			name:    "killed at the deadline",
			res:     &Result{ExitCode: -1, Signal: "killed"},
			exited:  true,
			ctxErr:  context.DeadlineExceeded,
			waitErr: errors.New("signal: killed"),
			want:    context.DeadlineExceeded,
		},
		{
			name:   "non-zero exit after cancel",
			res:    &Result{ExitCode: 1},
			exited: true,
			ctxErr: context.Canceled,
			want:   context.Canceled,
		},
		{
			name:     "clean exit with unread output at the deadline",
			res:      &Result{ExitCode: 0},
			exited:   true,
			ctxErr:   context.DeadlineExceeded,
			drainErr: errors.New("file already closed"),
			want:     context.DeadlineExceeded,
		},
		{
			name:    "wait failed",
			res:     &Result{ExitCode: -1},
			waitErr: errWaitFailed,
			want:    errWaitFailed,
		},
		{
			name:     "drain failed",
			res:      &Result{ExitCode: 0},
			exited:   true,
			drainErr: errDrainFailed,
			want:     errDrainFailed,
		},
		{
			name:    "non-zero exit is not an executor error",
			res:     &Result{ExitCode: 3},
			exited:  true,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runError(tt.res, tt.exited, tt.ctxErr, tt.waitErr, tt.drainErr)
			if tt.wantNil {
				if err != nil {
					t.Fatalf("runError() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("runError() = %v, want %v", err, tt.want)
			}
		})
	}
}

var (
	errWaitFailed  = errors.New("wait: no child processes")
	errDrainFailed = errors.New("read |0: bad file descriptor")
)
