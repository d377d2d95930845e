package config

import (
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Executor kinds accepted in providers.<id>.executor
const (
	ExecutorSubprocess = "subprocess"
	ExecutorLambda     = "lambda"
	ExecutorOpenAI     = "openai"
)

// Config represents the complete genbridge configuration
type Config struct {
	Server          ServerConfig              `mapstructure:"server" yaml:"server"`
	Pool            PoolConfig                `mapstructure:"pool" yaml:"pool"`
	DefaultProvider string                    `mapstructure:"default_provider" yaml:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Logging         LoggingConfig             `mapstructure:"logging" yaml:"logging"`
	Metrics         MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
	Tracing         TracingConfig             `mapstructure:"tracing" yaml:"tracing"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// ReadTimeout bounds reading the request, body included.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout bounds the whole handler. 0 disables it; when set it must
	// exceed every provider timeout or slow generations are cut off mid-response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// MaxBodyBytes caps the request body; larger bodies get 413.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// ShutdownTimeout is how long in-flight generations get to finish on SIGTERM.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PoolConfig bounds how many workers run at once
type PoolConfig struct {
	// MaxConcurrent is the number of worker slots (0 = unlimited)
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// MaxQueue is how many requests may wait for a slot (0 = unbounded)
	MaxQueue int `mapstructure:"max_queue" yaml:"max_queue"`
	// QueueTimeout is how long a request waits for a slot (0 = until the client gives up)
	QueueTimeout time.Duration `mapstructure:"queue_timeout" yaml:"queue_timeout"`
}

// ProviderConfig describes how requests for one provider are executed
type ProviderConfig struct {
	// Executor is one of "subprocess", "lambda", "openai"
	Executor string `mapstructure:"executor" yaml:"executor"`
	// Timeout is the per-request deadline for the worker (0 = none)
	Timeout    time.Duration    `mapstructure:"timeout" yaml:"timeout"`
	Subprocess SubprocessConfig `mapstructure:"subprocess" yaml:"subprocess,omitempty"`
	Lambda     LambdaConfig     `mapstructure:"lambda" yaml:"lambda,omitempty"`
	OpenAI     OpenAIConfig     `mapstructure:"openai" yaml:"openai,omitempty"`
}

// SubprocessConfig configures a local worker process launched per request.
// The worker is run as: Command Args... Script <request-json>
type SubprocessConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	Script  string   `mapstructure:"script" yaml:"script,omitempty"`
	// Dir is the worker's working directory ("" = the server's)
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// EnvPassthrough lists glob patterns of server environment variable
	// names the worker inherits. ["*"] inherits everything.
	EnvPassthrough []string `mapstructure:"env_passthrough" yaml:"env_passthrough"`
	// Env holds extra KEY=VALUE entries appended after passthrough.
	Env []string `mapstructure:"env" yaml:"env,omitempty"`
	// MaxOutputBytes caps retained stdout/stderr per stream (0 = unlimited)
	MaxOutputBytes int64 `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	// KillGrace is how long pipes may stay open after the worker is killed.
	KillGrace time.Duration `mapstructure:"kill_grace" yaml:"kill_grace"`
}

// LambdaConfig configures a remote worker invoked through AWS Lambda
type LambdaConfig struct {
	FunctionName string `mapstructure:"function_name" yaml:"function_name"`
	Qualifier    string `mapstructure:"qualifier" yaml:"qualifier,omitempty"`
	Region       string `mapstructure:"region" yaml:"region,omitempty"`
}

// OpenAIConfig configures the in-process OpenAI-compatible executor
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Level   string `mapstructure:"level" yaml:"level"`
	// Dir is where genbridge.log is written ("" = stderr)
	Dir        string `mapstructure:"dir" yaml:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Exporter is "stdout" or "otlp"
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Addr returns the host:port the server listens on
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ProviderNames returns the configured provider ids in sorted order
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MaxProviderTimeout returns the longest configured provider timeout
func (c *Config) MaxProviderTimeout() time.Duration {
	var longest time.Duration
	for _, p := range c.Providers {
		longest = max(longest, p.Timeout)
	}
	return longest
}

// DefaultSubprocess returns the worker launch settings for the bundled
// Python handler.
func DefaultSubprocess() SubprocessConfig {
	return SubprocessConfig{
		Command:        "python3",
		Script:         filepath.Join("agents", "llm_handler.py"),
		EnvPassthrough: []string{"*"},
		MaxOutputBytes: 0,
		KillGrace:      2 * time.Second,
	}
}

// DefaultOpenAI returns settings for the in-process executor
func DefaultOpenAI() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			MaxBodyBytes:    1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			MaxConcurrent: 8,
			MaxQueue:      0,
			QueueTimeout:  30 * time.Second,
		},
		DefaultProvider: "openai",
		Providers: map[string]ProviderConfig{
			"openai": {
				Executor:   ExecutorSubprocess,
				Timeout:    120 * time.Second,
				Subprocess: DefaultSubprocess(),
			},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "stdout",
			Endpoint:    "localhost:4317",
			ServiceName: "genbridge",
			SampleRatio: 1.0,
		},
	}
}

// RegisterDefaults registers default values with v
func RegisterDefaults(v *viper.Viper) {
	defaults := Default()

	// Server defaults
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", defaults.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", defaults.Server.MaxBodyBytes)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	// Pool defaults
	v.SetDefault("pool.max_concurrent", defaults.Pool.MaxConcurrent)
	v.SetDefault("pool.max_queue", defaults.Pool.MaxQueue)
	v.SetDefault("pool.queue_timeout", defaults.Pool.QueueTimeout)

	// Provider defaults
	v.SetDefault("default_provider", defaults.DefaultProvider)
	openai := defaults.Providers["openai"]
	v.SetDefault("providers.openai.executor", openai.Executor)
	v.SetDefault("providers.openai.timeout", openai.Timeout)
	v.SetDefault("providers.openai.subprocess.command", openai.Subprocess.Command)
	v.SetDefault("providers.openai.subprocess.script", openai.Subprocess.Script)
	v.SetDefault("providers.openai.subprocess.env_passthrough", openai.Subprocess.EnvPassthrough)
	v.SetDefault("providers.openai.subprocess.max_output_bytes", openai.Subprocess.MaxOutputBytes)
	v.SetDefault("providers.openai.subprocess.kill_grace", openai.Subprocess.KillGrace)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.path", defaults.Metrics.Path)

	// Tracing defaults
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", defaults.Tracing.SampleRatio)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "genbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genbridge"
	}
	return filepath.Join(home, ".config", "genbridge")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidExecutors returns the list of valid executor kinds
func ValidExecutors() []string {
	return []string{ExecutorSubprocess, ExecutorLambda, ExecutorOpenAI}
}

// IsValidExecutor checks if the given executor kind is valid
func IsValidExecutor(kind string) bool {
	return slices.Contains(ValidExecutors(), kind)
}
