// Package llm is the completion backend the reference agents talk to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultModel       = "gpt-4o"
	defaultMaxTokens   = 4096
	defaultTimeout     = 2 * time.Minute
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	defaultRateLimit   = 1.0
	defaultBurst       = 5
)

// ErrEmptyResponse is returned when the backend answers with no choices.
var ErrEmptyResponse = errors.New("empty response from model")

// Role is who a message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Completer turns a conversation into the model's reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config configures a Client.
type Config struct {
	// Provider selects the backend. Only "openai" (and OpenAI-compatible
	// endpoints via BaseURL) is supported.
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RateLimit is requests per second; Burst is the bucket size.
	RateLimit   float64
	Burst       int
	MaxRetries  int
	BaseBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
}

// Client is a rate-limited, retrying Completer over a langchaingo model.
type Client struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewClient creates a client for the configured provider.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm API key required")
	}
	cfg.applyDefaults()

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return NewClientWithModel(model, cfg, logger), nil
}

// NewClientWithModel wraps an existing langchaingo model.
func NewClientWithModel(model llms.Model, cfg Config, logger *logging.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		model:   model,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:  logger.Named("llm"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends messages and returns the first choice. Failed calls are
// retried with exponential backoff; context errors are not retried.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to complete")
	}
	content := toMessageContent(messages)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.BaseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		text, err := c.generate(ctx, content)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, content []llms.MessageContent) (string, error) {
	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithTemperature(c.config.Temperature),
		llms.WithMaxTokens(c.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	c.logger.Debug(ctx, "completion received",
		zap.String("model", c.config.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", len(resp.Choices[0].Content)),
	)
	return resp.Choices[0].Content, nil
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := schema.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = schema.ChatMessageTypeSystem
		case RoleAssistant:
			role = schema.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, ErrEmptyResponse)
}
