package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockProvider answers locally without any network call. It is registered
// when no vendor key is configured, and is scriptable in tests.
type mockProvider struct {
	mu      sync.Mutex
	calls   []MockCall
	reply   func(model string, messages []Message) (string, error)
	enabled bool
}

// MockCall records one Chat invocation.
type MockCall struct {
	Model    string
	Messages []Message
}

// NewMockProvider creates a mock provider that summarizes what it was asked.
func NewMockProvider() *mockProvider {
	return &mockProvider{enabled: true, reply: defaultMockReply}
}

// NewScriptedMockProvider creates a mock whose answers come from reply.
func NewScriptedMockProvider(reply func(model string, messages []Message) (string, error)) *mockProvider {
	return &mockProvider{enabled: true, reply: reply}
}

func (p *mockProvider) Name() ProviderName { return ProviderMock }

func (p *mockProvider) IsAvailable() bool { return p.enabled }

func (p *mockProvider) Priority() int { return PriorityMock }

// Chat implements Provider.
func (p *mockProvider) Chat(_ context.Context, model string, messages []Message) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, MockCall{Model: model, Messages: append([]Message(nil), messages...)})
	p.mu.Unlock()

	return p.reply(model, messages)
}

// Calls returns the recorded invocations.
func (p *mockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]MockCall(nil), p.calls...)
}

func defaultMockReply(model string, messages []Message) (string, error) {
	var last string

	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}

	lines := strings.Count(last, "\n") + 1

	return fmt.Sprintf("**Réponse simulée** (%s) : aucune clé d'API n'est configurée. La demande comptait %d ligne(s).", model, lines), nil
}

// Ensure mockProvider implements Provider interface.
var _ Provider = (*mockProvider)(nil)
