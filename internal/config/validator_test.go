package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "pool.max_concurrent",
		Value:   -1,
		Message: "must be non-negative",
	}

	expected := "pool.max_concurrent: must be non-negative (got: -1)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "server.port", Value: 70000, Message: "is invalid"},
		}
		expected := "server.port: is invalid (got: 70000)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// fieldsOf returns the Field of each error for compact assertions.
func fieldsOf(errs []ValidationError) []string {
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	return fields
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantFields []string
	}{
		{
			name:       "port out of range",
			mutate:     func(c *Config) { c.Server.Port = 70000 },
			wantFields: []string{"server.port"},
		},
		{
			name:       "zero body limit",
			mutate:     func(c *Config) { c.Server.MaxBodyBytes = 0 },
			wantFields: []string{"server.max_body_bytes"},
		},
		{
			name:       "negative server timeout",
			mutate:     func(c *Config) { c.Server.IdleTimeout = -time.Second },
			wantFields: []string{"server.idle_timeout"},
		},
		{
			name:       "write timeout shorter than provider timeout",
			mutate:     func(c *Config) { c.Server.WriteTimeout = time.Minute },
			wantFields: []string{"server.write_timeout"},
		},
		{
			name:   "write timeout longer than provider timeout",
			mutate: func(c *Config) { c.Server.WriteTimeout = 3 * time.Minute },
		},
		{
			name: "negative pool settings",
			mutate: func(c *Config) {
				c.Pool.MaxConcurrent = -1
				c.Pool.MaxQueue = -1
				c.Pool.QueueTimeout = -time.Second
			},
			wantFields: []string{"pool.max_concurrent", "pool.max_queue", "pool.queue_timeout"},
		},
		{
			name:   "unlimited pool",
			mutate: func(c *Config) { c.Pool.MaxConcurrent = 0; c.Pool.QueueTimeout = 0 },
		},
		{
			name:       "unknown default provider",
			mutate:     func(c *Config) { c.DefaultProvider = "anthropic" },
			wantFields: []string{"default_provider"},
		},
		{
			name:       "no providers",
			mutate:     func(c *Config) { c.Providers = nil },
			wantFields: []string{"providers", "default_provider"},
		},
		{
			name: "upper-case provider id",
			mutate: func(c *Config) {
				c.Providers["Local"] = ProviderConfig{Executor: ExecutorSubprocess, Subprocess: DefaultSubprocess()}
			},
			wantFields: []string{"providers.Local"},
		},
		{
			name: "unknown executor",
			mutate: func(c *Config) {
				c.Providers["openai"] = ProviderConfig{Executor: "grpc"}
			},
			wantFields: []string{"providers.openai.executor"},
		},
		{
			name: "negative provider timeout",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Timeout = -1
				c.Providers["openai"] = p
			},
			wantFields: []string{"providers.openai.timeout"},
		},
		{
			name: "subprocess without command",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Subprocess.Command = "  "
				c.Providers["openai"] = p
			},
			wantFields: []string{"providers.openai.subprocess.command"},
		},
		{
			name: "bad env passthrough glob",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Subprocess.EnvPassthrough = []string{"PATH", "OPENAI_[*"}
				c.Providers["openai"] = p
			},
			wantFields: []string{"providers.openai.subprocess.env_passthrough[1]"},
		},
		{
			name: "malformed extra env",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Subprocess.Env = []string{"GOOD=1", "bad", "=x"}
				c.Providers["openai"] = p
			},
			wantFields: []string{"providers.openai.subprocess.env[1]", "providers.openai.subprocess.env[2]"},
		},
		{
			name: "negative output cap and grace",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Subprocess.MaxOutputBytes = -1
				p.Subprocess.KillGrace = -time.Second
				c.Providers["openai"] = p
			},
			wantFields: []string{"providers.openai.subprocess.max_output_bytes", "providers.openai.subprocess.kill_grace"},
		},
		{
			name: "lambda without function",
			mutate: func(c *Config) {
				c.Providers["remote"] = ProviderConfig{Executor: ExecutorLambda}
			},
			wantFields: []string{"providers.remote.lambda.function_name"},
		},
		{
			name: "valid lambda",
			mutate: func(c *Config) {
				c.Providers["remote"] = ProviderConfig{
					Executor: ExecutorLambda,
					Lambda:   LambdaConfig{FunctionName: "llm-handler"},
				}
			},
		},
		{
			name: "openai without model",
			mutate: func(c *Config) {
				c.Providers["direct"] = ProviderConfig{
					Executor: ExecutorOpenAI,
					OpenAI:   OpenAIConfig{MaxTokens: -5},
				}
			},
			wantFields: []string{"providers.direct.openai.model", "providers.direct.openai.max_tokens"},
		},
		{
			name: "valid openai",
			mutate: func(c *Config) {
				c.Providers["direct"] = ProviderConfig{Executor: ExecutorOpenAI, OpenAI: DefaultOpenAI()}
			},
		},
		{
			name:       "invalid log level",
			mutate:     func(c *Config) { c.Logging.Level = "verbose" },
			wantFields: []string{"logging.level"},
		},
		{
			name:   "upper-case log level",
			mutate: func(c *Config) { c.Logging.Level = "DEBUG" },
		},
		{
			name: "bad log sizes",
			mutate: func(c *Config) {
				c.Logging.MaxSizeMB = 5000
				c.Logging.MaxBackups = -1
			},
			wantFields: []string{"logging.max_size_mb", "logging.max_backups"},
		},
		{
			name:       "log dir with null byte",
			mutate:     func(c *Config) { c.Logging.Dir = "/var/log\x00x" },
			wantFields: []string{"logging.dir"},
		},
		{
			name:       "metrics path without slash",
			mutate:     func(c *Config) { c.Metrics.Path = "metrics" },
			wantFields: []string{"metrics.path"},
		},
		{
			name: "metrics path ignored when disabled",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.Path = ""
			},
		},
		{
			name: "tracing checks when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
				c.Tracing.Endpoint = ""
				c.Tracing.SampleRatio = 2
			},
			wantFields: []string{"tracing.endpoint", "tracing.sample_ratio"},
		},
		{
			name: "unknown tracing exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "zipkin"
			},
			wantFields: []string{"tracing.exporter"},
		},
		{
			name: "tracing ignored when disabled",
			mutate: func(c *Config) {
				c.Tracing.Exporter = "zipkin"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			got := fieldsOf(cfg.Validate())
			if strings.Join(got, "|") != strings.Join(tt.wantFields, "|") {
				t.Errorf("Validate() fields = %v, want %v", got, tt.wantFields)
			}
		})
	}
}
