// Package audit appends a human-readable transcript of every agent action
// to a log file inside the instruction's workspace.
package audit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/fyrsmithlabs/agentbench/pkg/secrets"
	"go.uber.org/zap"
)

// DefaultFileName is the per-workspace transcript file.
const DefaultFileName = "workflow.log"

// Action is what happened.
type Action string

const (
	ActionGenerate Action = "Generate"
	ActionExecute  Action = "Execute"
	ActionDebug    Action = "Debug"
)

// ParseAction parses an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	for _, a := range []Action{ActionGenerate, ActionExecute, ActionDebug} {
		if strings.EqualFold(strings.TrimSpace(s), string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown audit action %q", s)
}

// Config controls the transcript.
type Config struct {
	// FileName is created inside each workspace. Defaults to workflow.log.
	FileName string
	// RedactSecrets scrubs credentials from every block before it is
	// written or returned.
	RedactSecrets bool
	// AllowlistPath points at a gitleaks-style allowlist. Optional.
	AllowlistPath string
}

// Entry is one action to record.
type Entry struct {
	Action    Action
	Agent     string
	Method    string
	Tag       string
	Artifact  string
	Log       string
	Iteration int
	Workspace workspace.Workspace
}

// Logger writes transcript blocks.
type Logger struct {
	config   Config
	redactor *secrets.Redactor
	logger   *logging.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New creates an audit logger. It fails only if redaction is enabled and
// the allowlist cannot be loaded.
func New(cfg Config, logger *logging.Logger, opts ...Option) (*Logger, error) {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Logger{config: cfg, logger: logger.Named("audit"), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.RedactSecrets {
		r, err := secrets.NewRedactor(cfg.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
		l.redactor = r
	}
	return l, nil
}

// FileName returns the transcript file name used in each workspace.
func (l *Logger) FileName() string {
	return l.config.FileName
}

// LogAction formats e, appends it to the workspace transcript and returns
// the block that was written.
func (l *Logger) LogAction(ctx context.Context, e Entry) (string, error) {
	block := Format(e, l.now())

	if l.redactor != nil {
		res, err := l.redactor.Redact(block)
		if err != nil {
			return "", fmt.Errorf("audit: redacting %s entry: %w", e.Action, err)
		}
		if res.Report.HasRedactions() {
			l.logger.Warn(ctx, "redacted secrets from audit entry",
				zap.String("action", string(e.Action)),
				zap.String("agent", e.Agent),
				zap.Strings("rules", res.Report.Rules()),
			)
		}
		block = res.Content
	}

	if err := l.append(e.Workspace.Path(l.config.FileName), block); err != nil {
		return block, fmt.Errorf("audit: writing %s entry: %w", e.Action, err)
	}

	l.logger.Debug(ctx, "audit entry written",
		zap.String("action", string(e.Action)),
		zap.String("agent", e.Agent),
		zap.Int("bytes", len(block)),
	)
	return block, nil
}

func (l *Logger) append(path, block string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(block)
	return err
}
