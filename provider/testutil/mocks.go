package testutil

import (
	"context"
	"sync"

	"parley/model"
)

// MockProvider implements model.Provider for testing. Every behavior is a
// function field with a default implementation, and every request is
// recorded.
type MockProvider struct {
	// Configurable responses
	RequestFunc    func(ctx context.Context, req model.Request) (model.Reply, error)
	ListModelsFunc func(ctx context.Context) ([]model.ModelInfo, error)
	PingFunc       func(ctx context.Context) error

	// State
	mu           sync.Mutex
	id           string
	currentModel string
	requests     []model.Request
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		id:           "mock",
		currentModel: modelName,
	}
	mock.RequestFunc = mock.defaultRequest
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

// ScriptedProvider returns a mock that answers with replies in order and
// repeats the last one once the script runs out.
func ScriptedProvider(replies ...model.Reply) *MockProvider {
	mock := NewMockProvider("mock-model")
	var n int
	mock.RequestFunc = func(ctx context.Context, req model.Request) (model.Reply, error) {
		if err := ctx.Err(); err != nil {
			return model.Reply{}, err
		}
		if len(replies) == 0 {
			return model.Reply{}, nil
		}
		i := n
		if i >= len(replies) {
			i = len(replies) - 1
		}
		n++
		return replies[i], nil
	}
	return mock
}

func (m *MockProvider) defaultRequest(ctx context.Context, req model.Request) (model.Reply, error) {
	// Default: echo back a mock response
	return model.Reply{Text: "Mock response"}, nil
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{
		{Name: "mock-model-1", InternalName: "mock-model-1", Size: 1000, Provider: m.id},
		{Name: "mock-model-2", InternalName: "mock-model-2", Size: 2000, Provider: m.id},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.RequestFunc(ctx, req)
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) ID() string {
	return m.id
}

// SetID changes the provider id reported by ID.
func (m *MockProvider) SetID(id string) {
	m.id = id
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
