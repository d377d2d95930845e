package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View bridge logs",
	Long: `View and filter the JSON logs written by 'genbridge serve'.

Logs are read from logging.dir unless --dir is given. Logging to stderr
(an empty logging.dir) leaves nothing for this command to read.

Examples:
  # Show the last 50 entries
  genbridge logs

  # Follow new entries
  genbridge logs -f

  # Everything one request did
  genbridge logs --request 4f1c... -n 0

  # Failed generations in the last hour, as CSV
  genbridge logs --level warn --since 1h --format csv`,
	RunE: runLogs,
}

var (
	logsDir      string
	logsTail     int
	logsFollow   bool
	logsLevel    string
	logsSince    string
	logsRequest  string
	logsProvider string
	logsOutcome  string
	logsGrep     string
	logsFormat   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsRequest, "request", "", "Only entries for this request ID")
	logsCmd.Flags().StringVar(&logsProvider, "provider", "", "Only entries for this provider")
	logsCmd.Flags().StringVar(&logsOutcome, "outcome", "", "Only entries with this outcome (e.g. worker_timeout_error)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "pretty", "Output format: pretty, text, json, csv")
}

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	fieldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	levelStyle = map[string]lipgloss.Style{
		logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		logging.LevelError: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F87171")),
	}
)

// formatLogEntry renders an entry for terminal output.
func formatLogEntry(entry logging.LogEntry) string {
	var sb strings.Builder

	sb.WriteString(timeStyle.Render("[" + entry.Timestamp.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	level := strings.ToUpper(entry.Level)
	if style, ok := levelStyle[level]; ok {
		sb.WriteString(style.Render("[" + level + "]"))
	} else {
		sb.WriteString("[" + level + "]")
	}
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	writeField := func(key string, value any) {
		sb.WriteString(" ")
		sb.WriteString(fieldStyle.Render(key + "="))
		sb.WriteString(fmt.Sprintf("%v", value))
	}
	if entry.RequestID != "" {
		writeField("request_id", entry.RequestID)
	}
	if entry.Provider != "" {
		writeField("provider", entry.Provider)
	}
	if entry.Outcome != "" {
		writeField("outcome", entry.Outcome)
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(k, entry.Attrs[k])
	}

	return sb.String()
}

func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		RequestID:       logsRequest,
		Provider:        logsProvider,
		Outcome:         logsOutcome,
		MessageContains: logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return logging.LogFilter{}, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = now.Add(-duration)
	}
	return filter, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Logging.Dir
	}
	if dir == "" {
		return fmt.Errorf("logging.dir is empty, so logs go to stderr; set it or pass --dir")
	}

	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if logsFollow {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")
		return followLogs(ctx, filepath.Join(dir, logging.LogFileName), filter, out)
	}

	entries, err := logging.AggregateLogs(dir)
	if err != nil {
		return err
	}
	return displayLogs(out, entries, filter, logsTail, logsFormat)
}

// displayLogs filters entries, keeps the last tail of them and writes them in
// format.
func displayLogs(w io.Writer, entries []logging.LogEntry, filter logging.LogFilter, tail int, format string) error {
	entries = logging.FilterLogs(entries, filter)
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	if format != "" && format != "pretty" {
		return logging.WriteLogEntries(w, entries, format)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
		return nil
	}
	for _, entry := range entries {
		fmt.Fprintln(w, formatLogEntry(entry))
	}
	return nil
}

// followLogs prints entries appended to path until ctx ends. A rotated file
// is reopened from the start.
func followLogs(ctx context.Context, path string, filter logging.LogFilter, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so rotation (rename + create) is observed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	t := &logTailer{path: path, filter: filter, w: w}
	if err := t.open(true); err != nil {
		return err
	}
	defer t.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				t.close()
				if err := t.open(false); err != nil {
					return err
				}
				if err := t.drain(); err != nil {
					return err
				}
			case event.Has(fsnotify.Write):
				if err := t.drain(); err != nil {
					return err
				}
			}
		}
	}
}

type logTailer struct {
	path   string
	filter logging.LogFilter
	w      io.Writer

	file    *os.File
	reader  *bufio.Reader
	partial string
}

// open opens path. With atEnd set, existing content is skipped. A missing
// file is not an error: it will be picked up when created.
func (t *logTailer) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if atEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("failed to seek to end: %w", err)
		}
	}
	t.file = f
	t.reader = bufio.NewReader(f)
	t.partial = ""
	return nil
}

func (t *logTailer) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.reader = nil
	}
}

// drain prints every complete line currently readable.
func (t *logTailer) drain() error {
	if t.reader == nil {
		if err := t.open(false); err != nil || t.reader == nil {
			return err
		}
	}
	for {
		chunk, err := t.reader.ReadString('\n')
		t.partial += chunk
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		line := strings.TrimSpace(t.partial)
		t.partial = ""
		if line == "" {
			continue
		}
		t.printLine(line)
	}
}

func (t *logTailer) printLine(line string) {
	if !json.Valid([]byte(line)) {
		fmt.Fprintln(t.w, line)
		return
	}
	entries, err := logging.ReadLogEntries(strings.NewReader(line))
	if err != nil || len(entries) == 0 {
		return
	}
	for _, entry := range logging.FilterLogs(entries, t.filter) {
		fmt.Fprintln(t.w, formatLogEntry(entry))
	}
}
