package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/agent/analysis"
	"github.com/fyrsmithlabs/agentbench/internal/agent/errverify"
	"github.com/fyrsmithlabs/agentbench/internal/agent/suggest"
	"github.com/fyrsmithlabs/agentbench/internal/agent/verify"
	"github.com/fyrsmithlabs/agentbench/internal/audit"
	"github.com/fyrsmithlabs/agentbench/internal/config"
	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/telemetry"
	"github.com/fyrsmithlabs/agentbench/internal/workflow"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/agentbench"

// app holds everything a run needs, built from one Config.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	executor  *execution.Executor
	agents    *agent.Registry
	engine    *workflow.Engine
	metrics   *workflow.Metrics
}

// loadConfig reads the config file named by --config plus the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logCfg.Output.File = cfg.Logging.File
	logCfg.Output.OTEL = cfg.Telemetry.Enabled
	return logging.NewLogger(logCfg, global.GetLoggerProvider())
}

func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Telemetry.Enabled
	telCfg.Endpoint = cfg.Telemetry.Endpoint
	telCfg.Protocol = cfg.Telemetry.Protocol
	telCfg.Insecure = cfg.Telemetry.Insecure
	telCfg.ServiceName = cfg.Telemetry.ServiceName
	telCfg.ServiceVersion = version
	telCfg.SampleRate = cfg.Telemetry.SampleRate
	return telemetry.New(ctx, telCfg)
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey.Value(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout.Duration(),
		RateLimit:   cfg.LLM.RateLimit,
		Burst:       cfg.LLM.Burst,
		MaxRetries:  cfg.LLM.MaxRetries,
	}
}

// newAgentRegistry registers the reference agents. completer may be nil
// when the registry is only used for validation.
func newAgentRegistry(completer llm.Completer, executor agent.Executor) (*agent.Registry, error) {
	reg := agent.NewRegistry()
	for _, a := range []agent.Agent{
		analysis.New(completer),
		verify.New(completer, executor),
		suggest.New(completer, executor),
		errverify.New(completer),
	} {
		if err := reg.RegisterAgent(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newExecutor(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) *execution.Executor {
	return execution.NewExecutor(execution.Config{
		Interpreter:    cfg.Execution.Interpreter,
		Args:           cfg.Execution.Args,
		Timeout:        cfg.Execution.Timeout.Duration(),
		MaxOutputBytes: cfg.Execution.MaxOutputBytes,
	}, logger, execution.WithMeter(tel.Meter(instrumentationName)))
}

// newApp wires a full run: logging, telemetry, the model client, the
// reference agents, the audit transcript and the engine.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := newTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if tel.Degraded() {
		logger.Warn(ctx, "telemetry exporters unavailable, continuing without export",
			zap.String("endpoint", cfg.Telemetry.Endpoint))
	}

	client, err := llm.NewClient(llmConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	executor := newExecutor(cfg, logger, tel)
	agents, err := newAgentRegistry(client, executor)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.New(audit.Config{
		FileName:      cfg.Audit.FileName,
		RedactSecrets: cfg.Audit.RedactSecrets,
		AllowlistPath: cfg.Audit.AllowlistPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	metrics := workflow.NewMetrics()
	engine, err := workflow.New(workflow.Deps{
		Agents:      agents,
		Executor:    executor,
		Audit:       auditLog,
		Provisioner: workspace.NewProvisioner(cfg.Workspace.Root, logger),
		Logger:      logger,
	},
		workflow.WithMaxDebugIterations(cfg.Retry.MaxDebugIterations),
		workflow.WithDataFolder(cfg.Workspace.DataFolder),
		workflow.WithTracer(tel.Tracer(instrumentationName)),
		workflow.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "agentbench initialized",
		zap.String("version", version),
		zap.String("model", client.Model()),
		zap.Strings("agents", agents.Agents()),
		zap.Int("max_debug_iterations", cfg.Retry.MaxDebugIterations),
		zap.Duration("execution_timeout", cfg.Execution.Timeout.Duration()),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		executor:  executor,
		agents:    agents,
		engine:    engine,
		metrics:   metrics,
	}, nil
}

// Close flushes telemetry and the logger.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := a.logger.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("logger sync: %w", err))
	}
	return errors.Join(errs...)
}

