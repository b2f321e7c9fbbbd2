package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a Langflow.
type MockClient struct {
	Response string
	Err      error

	mu     sync.Mutex
	inputs []string
}

func (m *MockClient) Run(ctx context.Context, input string) (string, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()
	return m.Response, m.Err
}

// Inputs devuelve los payloads recibidos, en orden.
func (m *MockClient) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.inputs))
	copy(out, m.inputs)
	return out
}
