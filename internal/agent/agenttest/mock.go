// Package agenttest provides testify mocks for agent collaborators.
package agenttest

import (
	"context"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/stretchr/testify/mock"
)

// MockCapability is a capability without debug support.
type MockCapability struct {
	mock.Mock
}

func (m *MockCapability) Run(ctx context.Context, req *agent.Request) (agent.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(agent.Response), args.Error(1)
}

// MockDebugCapability is a capability that can repair its output.
type MockDebugCapability struct {
	MockCapability
}

func (m *MockDebugCapability) Debug(ctx context.Context, req *agent.DebugRequest) (agent.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(agent.Response), args.Error(1)
}

// MockCompleter is a mock llm.Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// MockExecutor is a mock agent.Executor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, filename string, ws workspace.Workspace) string {
	args := m.Called(ctx, filename, ws)
	return args.String(0)
}
