package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_concurrent")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// providerIDRegex matches provider identifiers. viper lowercases map keys,
// so upper-case ids could never be looked up.
var providerIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// envEntryRegex matches KEY=VALUE environment entries
var envEntryRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidTraceExporters returns the list of valid tracing exporters
func ValidTraceExporters() []string {
	return []string{"stdout", "otlp"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateTracing()...)

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError
	s := c.Server

	if s.Port < 0 || s.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Value:   s.Port,
			Message: "must be between 0 and 65535",
		})
	}

	if s.MaxBodyBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.max_body_bytes",
			Value:   s.MaxBodyBytes,
			Message: "must be positive",
		})
	}

	durations := map[string]time.Duration{
		"server.read_timeout":     s.ReadTimeout,
		"server.write_timeout":    s.WriteTimeout,
		"server.idle_timeout":     s.IdleTimeout,
		"server.shutdown_timeout": s.ShutdownTimeout,
	}
	for _, field := range sortedKeys(durations) {
		if d := durations[field]; d < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   d,
				Message: "must be non-negative",
			})
		}
	}

	if s.WriteTimeout > 0 && s.WriteTimeout <= c.MaxProviderTimeout() {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Value:   s.WriteTimeout,
			Message: fmt.Sprintf("must exceed the longest provider timeout (%s)", c.MaxProviderTimeout()),
		})
	}

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.MaxConcurrent < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_concurrent",
			Value:   c.Pool.MaxConcurrent,
			Message: "must be non-negative (0 = unlimited)",
		})
	}
	if c.Pool.MaxQueue < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_queue",
			Value:   c.Pool.MaxQueue,
			Message: "must be non-negative (0 = unbounded)",
		})
	}
	if c.Pool.QueueTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.queue_timeout",
			Value:   c.Pool.QueueTimeout,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateProviders validates the provider map and default provider
func (c *Config) validateProviders() []ValidationError {
	var errors []ValidationError

	if len(c.Providers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "providers",
			Value:   "{}",
			Message: "at least one provider must be configured",
		})
	}

	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		errors = append(errors, ValidationError{
			Field:   "default_provider",
			Value:   c.DefaultProvider,
			Message: fmt.Sprintf("must name a configured provider (have: %s)", strings.Join(c.ProviderNames(), ", ")),
		})
	}

	for _, id := range c.ProviderNames() {
		errors = append(errors, validateProvider(id, c.Providers[id])...)
	}

	return errors
}

func validateProvider(id string, p ProviderConfig) []ValidationError {
	var errors []ValidationError
	prefix := "providers." + id

	if !providerIDRegex.MatchString(id) {
		errors = append(errors, ValidationError{
			Field:   prefix,
			Value:   id,
			Message: "provider id must be lowercase alphanumeric and may contain '_', '-', '.'",
		})
	}

	if p.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".timeout",
			Value:   p.Timeout,
			Message: "must be non-negative (0 = none)",
		})
	}

	switch p.Executor {
	case ExecutorSubprocess:
		errors = append(errors, validateSubprocess(prefix+".subprocess", p.Subprocess)...)
	case ExecutorLambda:
		if p.Lambda.FunctionName == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".lambda.function_name",
				Value:   "",
				Message: "is required for the lambda executor",
			})
		}
	case ExecutorOpenAI:
		if p.OpenAI.Model == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".openai.model",
				Value:   "",
				Message: "is required for the openai executor",
			})
		}
		if p.OpenAI.MaxTokens < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".openai.max_tokens",
				Value:   p.OpenAI.MaxTokens,
				Message: "must be non-negative",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   prefix + ".executor",
			Value:   p.Executor,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidExecutors(), ", ")),
		})
	}

	return errors
}

func validateSubprocess(prefix string, s SubprocessConfig) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(s.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".command",
			Value:   s.Command,
			Message: "is required for the subprocess executor",
		})
	}

	for i, pattern := range s.EnvPassthrough {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.env_passthrough[%d]", prefix, i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	for i, entry := range s.Env {
		if !envEntryRegex.MatchString(entry) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.env[%d]", prefix, i),
				Value:   entry,
				Message: "must be KEY=VALUE",
			})
		}
	}

	if s.MaxOutputBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_output_bytes",
			Value:   s.MaxOutputBytes,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	if s.KillGrace < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".kill_grace",
			Value:   s.KillGrace,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 = no rotation)",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "metrics.path",
			Value:   c.Metrics.Path,
			Message: "must start with '/'",
		})
	}

	return errors
}

// validateTracing validates the TracingConfig
func (c *Config) validateTracing() []ValidationError {
	var errors []ValidationError

	if !c.Tracing.Enabled {
		return nil
	}

	if !slices.Contains(ValidTraceExporters(), c.Tracing.Exporter) {
		errors = append(errors, ValidationError{
			Field:   "tracing.exporter",
			Value:   c.Tracing.Exporter,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTraceExporters(), ", ")),
		})
	}

	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "tracing.endpoint",
			Value:   "",
			Message: "is required for the otlp exporter",
		})
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "tracing.sample_ratio",
			Value:   c.Tracing.SampleRatio,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
