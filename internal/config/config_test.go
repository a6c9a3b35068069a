package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero debug iterations allowed", func(c *Config) { c.Retry.MaxDebugIterations = 0 }, ""},
		{"empty root", func(c *Config) { c.Workspace.Root = "" }, "workspace.root"},
		{"empty interpreter", func(c *Config) { c.Execution.Interpreter = "" }, "execution.interpreter"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }, "llm.provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"rate limit", func(c *Config) { c.LLM.RateLimit = 0 }, "llm.rate_limit"},
		{"burst", func(c *Config) { c.LLM.Burst = 0 }, "llm.burst"},
		{"audit file", func(c *Config) { c.Audit.FileName = "" }, "audit.file_name"},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"telemetry protocol", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Protocol = "udp"
		}, "telemetry.protocol"},
		{"telemetry disabled ignores protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("sk-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-123", s.Value())

	out, err := json.Marshal(struct{ Key Secret }{s})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	assert.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, "1m30s", d.Duration().String())
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
