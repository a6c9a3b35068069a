// Package config loads agentbench run configuration.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete run configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	Execution ExecutionConfig `koanf:"execution"`
	Retry     RetryConfig     `koanf:"retry"`
	LLM       LLMConfig       `koanf:"llm"`
	Audit     AuditConfig     `koanf:"audit"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// WorkspaceConfig locates per-instruction workspaces and input data files.
type WorkspaceConfig struct {
	Root       string `koanf:"root"`
	DataFolder string `koanf:"data_folder"`
}

// ExecutionConfig controls how generated code is run.
type ExecutionConfig struct {
	Interpreter    string   `koanf:"interpreter"`
	Args           []string `koanf:"args"`
	Timeout        Duration `koanf:"timeout"`
	MaxOutputBytes int      `koanf:"max_output_bytes"`
}

// RetryConfig bounds the debug loop.
type RetryConfig struct {
	MaxDebugIterations int `koanf:"max_debug_iterations"`
}

// LLMConfig configures the completion backend used by the reference agents.
type LLMConfig struct {
	Provider    string   `koanf:"provider"`
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
	MaxRetries  int      `koanf:"max_retries"`
}

// AuditConfig controls the per-workspace action transcript.
type AuditConfig struct {
	FileName      string `koanf:"file_name"`
	RedactSecrets bool   `koanf:"redact_secrets"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// LoggingConfig is the subset of logging settings exposed in the run config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:       "./workspace",
			DataFolder: "./data",
		},
		Execution: ExecutionConfig{
			Interpreter:    "python3",
			Timeout:        Duration(10 * time.Minute),
			MaxOutputBytes: 1 << 20,
		},
		Retry: RetryConfig{
			MaxDebugIterations: 10,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o",
			MaxTokens:  4096,
			Timeout:    Duration(2 * time.Minute),
			RateLimit:  1,
			Burst:      5,
			MaxRetries: 3,
		},
		Audit: AuditConfig{
			FileName:      "workflow.log",
			RedactSecrets: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "agentbench",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.Workspace.Root == "" {
		errs = append(errs, errors.New("workspace.root is required"))
	}
	if c.Execution.Interpreter == "" {
		errs = append(errs, errors.New("execution.interpreter is required"))
	}
	if c.Execution.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("execution.max_output_bytes must be >= 0, got %d", c.Execution.MaxOutputBytes))
	}
	if c.Retry.MaxDebugIterations < 0 {
		errs = append(errs, fmt.Errorf("retry.max_debug_iterations must be >= 0, got %d", c.Retry.MaxDebugIterations))
	}

	switch c.LLM.Provider {
	case "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be 'openai', got %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}
	if c.LLM.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("llm.rate_limit must be > 0, got %v", c.LLM.RateLimit))
	}
	if c.LLM.Burst < 1 {
		errs = append(errs, fmt.Errorf("llm.burst must be >= 1, got %d", c.LLM.Burst))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries))
	}

	if c.Audit.FileName == "" {
		errs = append(errs, errors.New("audit.file_name is required"))
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate))
		}
	}

	return errors.Join(errs...)
}
