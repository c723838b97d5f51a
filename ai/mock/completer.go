package mock

import (
	"context"

	"github.com/poiesic/reviewlens/ai"
)

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via function fields.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns an empty JSON object.
	CompleteFunc func(ctx context.Context, req ai.CompletionRequest) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	callCount int
}

var _ ai.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a mock completer with default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns the injected response or an empty JSON object.
func (m *MockCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.callCount++

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "{}", nil
}

// Model returns the configured mock model name.
func (m *MockCompleter) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock-model"
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockCompleter) Reset() {
	m.callCount = 0
	m.CompleteFunc = nil
}
