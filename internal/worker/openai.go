package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/genbridge/internal/config"
)

// OpenAI calls an OpenAI-compatible chat completion endpoint in process.
// It behaves like the bundled worker script: every answer, including a
// provider-side failure, is reported as a {"response"} or {"error"} document
// on stdout with exit code 0.
type OpenAI struct {
	baseURL   string
	model     string
	apiKeyEnv string
	maxTokens int

	httpClient *http.Client
	getenv     func(string) string
}

// NewOpenAI creates an OpenAI executor. Empty settings fall back to
// config.DefaultOpenAI. A nil httpClient uses http.DefaultClient.
func NewOpenAI(cfg config.OpenAIConfig, httpClient *http.Client) *OpenAI {
	defaults := config.DefaultOpenAI()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = defaults.APIKeyEnv
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKeyEnv:  cfg.APIKeyEnv,
		maxTokens:  cfg.MaxTokens,
		httpClient: httpClient,
		getenv:     os.Getenv,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Execute performs one chat completion with the prompt as a single user message.
func (o *OpenAI) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	start := time.Now()

	var arg requestArg
	if err := json.Unmarshal([]byte(inv.Arg), &arg); err != nil {
		return &Result{ExitCode: 1, Stderr: fmt.Sprintf("invalid worker argument: %v", err), Duration: time.Since(start)}, nil
	}

	text, appErr, err := o.complete(ctx, arg.Prompt)
	elapsed := time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{ExitCode: -1, Duration: elapsed}, fmt.Errorf("chat completion abandoned: %w", ctxErr)
	}
	if err != nil {
		return &Result{ExitCode: 1, Stderr: err.Error(), Duration: elapsed}, nil
	}

	doc := map[string]string{"response": text}
	if appErr != "" {
		doc = map[string]string{"error": appErr}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return &Result{ExitCode: 1, Stderr: err.Error(), Duration: elapsed}, nil
	}
	return &Result{ExitCode: 0, Stdout: buf.String(), Duration: elapsed}, nil
}

// complete returns the completion text, or an application error message for
// failures the worker script would have reported in its output. err is set
// only for failures the script would have crashed on.
func (o *OpenAI) complete(ctx context.Context, prompt string) (text, appErr string, err error) {
	apiKey := o.getenv(o.apiKeyEnv)
	if apiKey == "" {
		return "", fmt.Sprintf("%s environment variable not set.", o.apiKeyEnv), nil
	}

	payload, err := json.Marshal(chatRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Sprintf("An error occurred: %v", err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Sprintf("An error occurred: read response: %v", err), nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Sprintf("An error occurred: provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil
		}
		return "", fmt.Sprintf("An error occurred: parse response: %v", err), nil
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Sprintf("An error occurred: provider returned status %d: %s", resp.StatusCode, msg), nil
	}
	if len(parsed.Choices) == 0 {
		return "", "No response choices received from the model.", nil
	}
	return parsed.Choices[0].Message.Content, "", nil
}
