package llm

import "context"

// MockBackend is a test double for Backend.
type MockBackend struct {
	BackendName     string
	GetResponseFunc func(ctx context.Context, messages []Message) (string, error)
}

func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

func (m *MockBackend) GetResponse(ctx context.Context, messages []Message) (string, error) {
	if m.GetResponseFunc != nil {
		return m.GetResponseFunc(ctx, messages)
	}
	return "mock response", nil
}
