package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/genbridge/internal/app"
	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/testutil"
	"github.com/Iron-Ham/genbridge/internal/worker"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "genbridge" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "genbridge")
	}

	expected := []string{"serve", "generate", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range expected {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigureViper_EnvOverride(t *testing.T) {
	t.Setenv("GENBRIDGE_POOL_MAX_CONCURRENT", "3")
	t.Setenv("GENBRIDGE_SERVER_PORT", "8088")

	v := viper.New()
	configureViper(v, filepath.Join(t.TempDir(), "missing.yaml"))
	_ = v.ReadInConfig()

	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Pool.MaxConcurrent != 3 {
		t.Errorf("Pool.MaxConcurrent = %d, want 3", cfg.Pool.MaxConcurrent)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
}

func TestInitConfigFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genbridge", "config.yaml")
	if err := initConfigFile(path, false); err != nil {
		t.Fatalf("initConfigFile: %v", err)
	}
	if err := initConfigFile(path, false); err == nil {
		t.Error("second init without force should fail")
	}
	if err := initConfigFile(path, true); err != nil {
		t.Errorf("init with force: %v", err)
	}

	v := viper.New()
	configureViper(v, path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	want := config.Default()
	if cfg.Server != want.Server {
		t.Errorf("Server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Pool != want.Pool {
		t.Errorf("Pool = %+v, want %+v", cfg.Pool, want.Pool)
	}
	if cfg.DefaultProvider != want.DefaultProvider {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider)
	}
	if got := cfg.Providers["openai"].Timeout; got != 120*time.Second {
		t.Errorf("openai timeout = %v", got)
	}
}

func TestWriteConfigYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := writeConfigYAML(&buf, config.Default()); err != nil {
		t.Fatalf("writeConfigYAML: %v", err)
	}
	for _, want := range []string{"default_provider: openai", "max_concurrent: 8", "timeout: 2m0s", "executor: subprocess"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"Write", "a", "haiku"}, strings.NewReader("ignored"))
	if err != nil || got != "Write a haiku" {
		t.Errorf("readPrompt(args) = %q, %v", got, err)
	}

	got, err = readPrompt(nil, strings.NewReader("from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("readPrompt(stdin) = %q, %v", got, err)
	}
}

func TestPrintOutcome(t *testing.T) {
	tests := []struct {
		name       string
		out        bridge.Outcome
		asJSON     bool
		wantErr    bool
		wantStdout string
		wantStderr string
	}{
		{
			name:       "success",
			out:        bridge.Outcome{Kind: bridge.KindSuccess, Response: "Hello"},
			wantStdout: "Hello\n",
		},
		{
			name:       "failure",
			out:        bridge.Outcome{Kind: bridge.KindWorkerExitError, Detail: "Traceback"},
			wantErr:    true,
			wantStderr: "generation failed (worker_exit_error)\nTraceback\n",
		},
		{
			name:       "success as json",
			out:        bridge.Outcome{Kind: bridge.KindSuccess, Response: "<b>hi</b>", Provider: "openai", Ran: true},
			asJSON:     true,
			wantStdout: `"response": "<b>hi</b>"`,
		},
		{
			name:       "failure as json",
			out:        bridge.Outcome{Kind: bridge.KindWorkerTimeoutError, Detail: "killed"},
			asJSON:     true,
			wantErr:    true,
			wantStdout: `"outcome": "worker_timeout_error"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := printOutcome(&stdout, &stderr, tt.out, tt.asJSON, false)
			if (err != nil) != tt.wantErr {
				t.Fatalf("printOutcome() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.asJSON {
				if !strings.Contains(stdout.String(), tt.wantStdout) {
					t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tt.wantStdout)
				}
				return
			}
			if stdout.String() != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantStdout)
			}
			if stderr.String() != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestPrintOutcome_JSONExitCode(t *testing.T) {
	var stdout bytes.Buffer
	_ = printOutcome(&stdout, &bytes.Buffer{}, bridge.Outcome{Kind: bridge.KindWorkerExitError, Ran: true, ExitCode: 0}, true, false)

	var res generateResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0 for a worker that ran", res.ExitCode)
	}
}

func sampleEntries() []logging.LogEntry {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []logging.LogEntry{
		{Timestamp: base, Level: "INFO", Message: "bridge ready"},
		{Timestamp: base.Add(time.Second), Level: "INFO", Message: "generation succeeded", RequestID: "r1", Provider: "openai", Outcome: "success"},
		{Timestamp: base.Add(2 * time.Second), Level: "ERROR", Message: "generation failed", RequestID: "r2", Provider: "local", Outcome: "worker_exit_error", Attrs: map[string]any{"exit_code": float64(1)}},
	}
}

func TestDisplayLogs(t *testing.T) {
	tests := []struct {
		name      string
		filter    logging.LogFilter
		tail      int
		format    string
		want      []string
		wantNot   []string
		wantEmpty bool
	}{
		{
			name: "all pretty",
			want: []string{"bridge ready", "generation succeeded", "generation failed", "exit_code=", "request_id=", "r2"},
		},
		{
			name:    "level filter",
			filter:  logging.LogFilter{Level: logging.LevelWarn},
			want:    []string{"generation failed"},
			wantNot: []string{"bridge ready"},
		},
		{
			name:    "request filter",
			filter:  logging.LogFilter{RequestID: "r1"},
			want:    []string{"generation succeeded"},
			wantNot: []string{"generation failed"},
		},
		{
			name:    "tail",
			tail:    1,
			want:    []string{"generation failed"},
			wantNot: []string{"generation succeeded"},
		},
		{
			name:   "csv",
			format: "csv",
			want:   []string{"timestamp,level,message,request_id,provider,outcome,attrs", "worker_exit_error"},
		},
		{
			name:      "no matches",
			filter:    logging.LogFilter{Provider: "nobody"},
			wantEmpty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := displayLogs(&buf, sampleEntries(), tt.filter, tt.tail, tt.format); err != nil {
				t.Fatalf("displayLogs: %v", err)
			}
			out := buf.String()
			if tt.wantEmpty {
				if !strings.Contains(out, "No matching log entries found.") {
					t.Errorf("output = %q", out)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestBuildLogFilter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logsLevel, logsSince, logsOutcome = "warn", "30m", "success"
	t.Cleanup(func() { logsLevel, logsSince, logsOutcome = "", "", "" })

	filter, err := buildLogFilter(now)
	if err != nil {
		t.Fatalf("buildLogFilter: %v", err)
	}
	if filter.Level != logging.LevelWarn {
		t.Errorf("Level = %q", filter.Level)
	}
	if !filter.StartTime.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("StartTime = %v", filter.StartTime)
	}
	if filter.Outcome != "success" {
		t.Errorf("Outcome = %q", filter.Outcome)
	}

	logsSince = "yesterday"
	if _, err := buildLogFilter(now); err == nil {
		t.Error("invalid --since should fail")
	}
}

func TestLogTailer_Drain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logging.LogFileName)
	testutil.WriteFile(t, dir, logging.LogFileName, `{"time":"2025-03-01T12:00:00Z","level":"INFO","msg":"old"}`+"\n")

	var buf bytes.Buffer
	tail := &logTailer{path: path, filter: logging.LogFilter{Level: logging.LevelInfo}, w: &buf}
	if err := tail.open(true); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tail.close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	_, _ = f.WriteString(`{"time":"2025-03-01T12:00:01Z","level":"DEBUG","msg":"noise"}` + "\n")
	_, _ = f.WriteString(`{"time":"2025-03-01T12:00:02Z","level":"INFO","msg":"new","request_id":"r9"}` + "\n")
	_, _ = f.WriteString("plain text line\n")
	_, _ = f.WriteString(`{"time":"2025-03-01T12:00:03Z","level":"INFO","msg":"part`)
	f.Close()

	if err := tail.drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "old") || strings.Contains(out, "noise") {
		t.Errorf("output should skip existing and filtered lines:\n%s", out)
	}
	if !strings.Contains(out, "new") || !strings.Contains(out, "r9") || !strings.Contains(out, "plain text line") {
		t.Errorf("output missing appended lines:\n%s", out)
	}
	if strings.Contains(out, "part") {
		t.Errorf("incomplete line should wait for its newline:\n%s", out)
	}

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("reopen for append: %v", err)
	}
	_, _ = f.WriteString(`ial"}` + "\n")
	f.Close()
	buf.Reset()
	if err := tail.drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !strings.Contains(buf.String(), "partial") {
		t.Errorf("completed line not printed: %q", buf.String())
	}
}

func TestReloadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	testutil.WriteFile(t, dir, "config.yaml", "pool:\n  max_concurrent: 4\n")

	v := viper.New()
	configureViper(v, path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	exec := worker.ExecutorFunc(func(context.Context, worker.Invocation) (*worker.Result, error) {
		return &worker.Result{Stdout: `{"response":"ok"}`}, nil
	})
	reg, err := worker.NewRegistry("openai", worker.Provider{Name: "openai", Executor: exec})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var logs bytes.Buffer
	logger := logging.NewLoggerWithWriter(&logs, logging.LevelInfo)
	a, err := app.Build(context.Background(), cfg, app.WithRegistry(reg), app.WithLogger(logger))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	if a.Bridge.Limit() != 4 {
		t.Fatalf("Limit() = %d, want 4", a.Bridge.Limit())
	}

	testutil.WriteFile(t, dir, "config.yaml", "pool:\n  max_concurrent: 2\n")
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	reloadConfig(v, a, logger, fsnotify.Event{Name: path, Op: fsnotify.Write})
	if a.Bridge.Limit() != 2 {
		t.Errorf("Limit() = %d after reload, want 2", a.Bridge.Limit())
	}

	testutil.WriteFile(t, dir, "config.yaml", "pool:\n  max_concurrent: -1\n")
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	reloadConfig(v, a, logger, fsnotify.Event{Name: path, Op: fsnotify.Write})
	if a.Bridge.Limit() != 2 {
		t.Errorf("invalid reload changed Limit() to %d", a.Bridge.Limit())
	}
	if !strings.Contains(logs.String(), "ignoring config change") {
		t.Errorf("invalid reload should be logged, got %q", logs.String())
	}
}
