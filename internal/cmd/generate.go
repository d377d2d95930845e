package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iron-Ham/genbridge/internal/app"
	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run one generation without the HTTP server",
	Long: `Run one generation through the configured providers and print the result.

The prompt is taken from the arguments, or read from stdin when no
arguments are given. The command exits non-zero when the generation fails.

Examples:
  genbridge generate "Write a haiku about pipes"
  echo "Summarize this" | genbridge generate --provider local
  genbridge generate --json "Hello"`,
	RunE: runGenerate,
}

var (
	generateProvider string
	generateJSON     bool
)

var (
	responseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB"))
	failureStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F87171"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Italic(true)
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateProvider, "provider", "", "provider id (default: default_provider)")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the outcome as JSON")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log to the configured file only; stderr belongs to the result.
	var opts []app.Option
	if cfg.Logging.Dir == "" {
		opts = append(opts, app.WithLogger(logging.NopLogger()))
	}
	a, err := app.Build(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	body, err := json.Marshal(bridge.Request{Prompt: prompt, Provider: generateProvider})
	if err != nil {
		return err
	}
	out := a.Bridge.Generate(ctx, body)
	return printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out, generateJSON, isTerminal(cmd.OutOrStdout()))
}

// readPrompt joins args, or reads all of in when args is empty.
func readPrompt(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no prompt given: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type generateResult struct {
	Outcome  string `json:"outcome"`
	Provider string `json:"provider,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Duration string `json:"duration,omitempty"`
}

func printOutcome(stdout, stderr io.Writer, out bridge.Outcome, asJSON, styled bool) error {
	if asJSON {
		res := generateResult{
			Outcome:  out.Kind.String(),
			Provider: out.Provider,
			Response: out.Response,
			Error:    out.Detail,
		}
		if out.Ran {
			code := out.ExitCode
			res.ExitCode = &code
		}
		if out.Duration > 0 {
			res.Duration = out.Duration.String()
		}
		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !out.OK() {
			return fmt.Errorf("generation failed: %s", out.Kind)
		}
		return nil
	}

	if out.OK() {
		text := out.Response
		if styled {
			text = responseStyle.Render(text)
		}
		_, err := fmt.Fprintln(stdout, text)
		return err
	}

	headline := fmt.Sprintf("generation failed (%s)", out.Kind)
	detail := out.Detail
	if styled {
		headline = failureStyle.Render(headline)
		if detail != "" {
			detail = detailStyle.Render(detail)
		}
	}
	fmt.Fprintln(stderr, headline)
	if detail != "" {
		fmt.Fprintln(stderr, detail)
	}
	return fmt.Errorf("generation failed: %s", out.Kind)
}
