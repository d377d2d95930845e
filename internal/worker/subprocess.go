package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/errors"
)

// Subprocess launches a local worker process per request:
//
//	<command> [args...] [script] <request-json>
type Subprocess struct {
	command   string
	args      []string
	script    string
	dir       string
	env       *envFilter
	maxOutput int64
	killGrace time.Duration

	// environ supplies the server environment; os.Environ unless overridden in tests.
	environ func() []string
}

// NewSubprocess creates a Subprocess executor from its configuration.
func NewSubprocess(cfg config.SubprocessConfig) (*Subprocess, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("subprocess executor: command is required")
	}
	env, err := newEnvFilter(cfg.EnvPassthrough, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("subprocess executor: %w", err)
	}
	return &Subprocess{
		command:   cfg.Command,
		args:      append([]string(nil), cfg.Args...),
		script:    cfg.Script,
		dir:       cfg.Dir,
		env:       env,
		maxOutput: cfg.MaxOutputBytes,
		killGrace: cfg.KillGrace,
		environ:   os.Environ,
	}, nil
}

// argv returns the arguments after the command for one invocation.
func (s *Subprocess) argv(inv Invocation) []string {
	argv := make([]string, 0, len(s.args)+2)
	argv = append(argv, s.args...)
	if s.script != "" {
		argv = append(argv, s.script)
	}
	return append(argv, inv.Arg)
}

// Execute starts the worker once and waits for it. Both output pipes are
// drained to EOF before the exit status is collected.
func (s *Subprocess) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	cmd := exec.CommandContext(ctx, s.command, s.argv(inv)...)
	cmd.Dir = s.dir
	cmd.Env = s.env.apply(s.environ())
	cmd.WaitDelay = s.killGrace
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewProcessStartError(s.command, err).WithProvider(inv.Provider)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewProcessStartError(s.command, err).WithProvider(inv.Provider)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessStartError(s.command, err).WithProvider(inv.Provider)
	}

	// Once the context ends the process group is killed; if something still
	// holds the pipes open after the grace period, close our ends so the
	// drain finishes.
	stopClosing := context.AfterFunc(ctx, func() {
		time.AfterFunc(s.killGrace, func() {
			_ = stdout.Close()
			_ = stderr.Close()
		})
	})
	defer stopClosing()

	out, drainErr := drain(stdout, stderr, s.maxOutput)
	waitErr := cmd.Wait()

	res := &Result{
		ExitCode:        -1,
		Stdout:          out.stdout.String(),
		Stderr:          out.stderr.String(),
		StdoutTruncated: out.stdout.truncated,
		StderrTruncated: out.stderr.truncated,
		Duration:        time.Since(start),
	}
	exited := cmd.ProcessState != nil
	if exited {
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.Signal = exitSignal(cmd.ProcessState)
	}
	return res, runError(res, exited, ctx.Err(), waitErr, drainErr)
}

// runError decides what Execute reports once the worker is gone. A worker
// that exited 0 on its own with its output fully read has succeeded, even if
// the deadline passed while it was being reaped.
func runError(res *Result, exited bool, ctxErr, waitErr, drainErr error) error {
	if exited && res.Succeeded() && drainErr == nil {
		return nil
	}
	if ctxErr != nil {
		return fmt.Errorf("worker killed after %s: %w", res.Duration.Round(time.Millisecond), ctxErr)
	}
	if !exited {
		return fmt.Errorf("wait for worker: %w", waitErr)
	}
	if drainErr != nil {
		return fmt.Errorf("read worker output: %w", drainErr)
	}
	return nil
}
