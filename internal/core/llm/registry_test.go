package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/platform/config"
)

var errProviderDown = errors.New("provider down")

type fakeProvider struct {
	name     ProviderName
	priority int
	reply    string
	err      error

	mu     sync.Mutex
	models []string
}

func (f *fakeProvider) Name() ProviderName { return f.name }
func (f *fakeProvider) IsAvailable() bool  { return true }
func (f *fakeProvider) Priority() int      { return f.priority }

func (f *fakeProvider) Chat(_ context.Context, model string, _ []Message) (string, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	return f.reply, nil
}

func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.models...)
}

func newTestRegistry(providers ...Provider) *Registry {
	logger := zerolog.Nop()
	r := NewRegistry(&logger)

	for _, p := range providers {
		r.Register(p, CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})
	}

	return r
}

func TestRegistry_RoutesByModelOwner(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, reply: "from openai"}
	claude := &fakeProvider{name: ProviderAnthropic, priority: PriorityFallback, reply: "from claude"}
	r := newTestRegistry(openai, claude)

	tests := []struct {
		name  string
		model string
		want  string
	}{
		{name: "gpt model goes to openai", model: "gpt-4o-mini", want: "from openai"},
		{name: "claude model goes to anthropic", model: "claude-sonnet-4-5", want: "from claude"},
		{name: "prefix match ignores case", model: "Claude-3", want: "from claude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Chat(context.Background(), tt.model, []Message{UserMessage("hi")})
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("Chat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_FallsBackWithDefaultModel(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}
	google := &fakeProvider{name: ProviderGoogle, priority: PrioritySecondFallback, reply: "from gemini"}
	claude := &fakeProvider{name: ProviderAnthropic, priority: PriorityFallback, err: errProviderDown}
	r := newTestRegistry(google, openai, claude)

	got, err := r.Chat(context.Background(), "gpt-4.1-mini", nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got != "from gemini" {
		t.Errorf("Chat() = %q, want %q", got, "from gemini")
	}

	if calls := openai.calls(); len(calls) != 1 || calls[0] != "gpt-4.1-mini" {
		t.Errorf("openai calls = %v, want the requested model once", calls)
	}

	if calls := claude.calls(); len(calls) != 1 || calls[0] != "" {
		t.Errorf("anthropic calls = %v, want one call with the default model", calls)
	}

	if calls := google.calls(); len(calls) != 1 || calls[0] != "" {
		t.Errorf("google calls = %v, want one call with the default model", calls)
	}
}

func TestRegistry_AllProvidersFail(t *testing.T) {
	r := newTestRegistry(
		&fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown},
		&fakeProvider{name: ProviderAnthropic, priority: PriorityFallback, err: errProviderDown},
	)

	_, err := r.Chat(context.Background(), "gpt-4o-mini", nil)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Chat() error = %v, want ErrAllProvidersFailed", err)
	}

	if !errors.Is(err, errProviderDown) {
		t.Errorf("Chat() error = %v, want the provider error joined", err)
	}
}

func TestRegistry_NoProviders(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Chat(context.Background(), "gpt-4o-mini", nil)
	if !errors.Is(err, coreerrors.ErrNoProviders) {
		t.Errorf("Chat() error = %v, want ErrNoProviders", err)
	}
}

func TestRegistry_OpenCircuitSkipsProvider(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}
	mock := NewScriptedMockProvider(func(string, []Message) (string, error) { return "mock", nil })
	r := newTestRegistry(openai, mock)

	for range 4 {
		if _, err := r.Chat(context.Background(), "gpt-4o-mini", nil); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	if got := len(openai.calls()); got != 2 {
		t.Errorf("openai called %d times, want 2 before the circuit opened", got)
	}

	if got := len(mock.Calls()); got != 4 {
		t.Errorf("mock called %d times, want 4", got)
	}

	for _, st := range r.ProviderStatuses() {
		if st.Name == ProviderOpenAI && st.CircuitBreakerOK {
			t.Error("openai circuit should be open")
		}
	}
}

func TestRegistry_AllCircuitsOpen(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}
	r := newTestRegistry(openai)

	for range 2 {
		_, _ = r.Chat(context.Background(), "gpt-4o-mini", nil)
	}

	_, err := r.Chat(context.Background(), "gpt-4o-mini", nil)
	if !errors.Is(err, coreerrors.ErrCircuitBreakerOpen) {
		t.Fatalf("Chat() error = %v, want ErrCircuitBreakerOpen", err)
	}

	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("Chat() error = %v, want ErrAllProvidersFailed", err)
	}

	if got := len(openai.calls()); got != 2 {
		t.Errorf("openai called %d times, want 2", got)
	}
}

func TestRegistry_MockReceivesRequestedModel(t *testing.T) {
	mock := NewMockProvider()
	r := newTestRegistry(mock)

	got, err := r.Chat(context.Background(), "gpt-4o-mini", []Message{SystemMessage("sys"), UserMessage("a\nb")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got == "" {
		t.Error("mock reply is empty")
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Model != "gpt-4o-mini" {
		t.Errorf("mock calls = %+v", calls)
	}
}

func TestRegistry_ProviderStatusesOrderedByPriority(t *testing.T) {
	r := newTestRegistry(
		NewMockProvider(),
		&fakeProvider{name: ProviderGoogle, priority: PrioritySecondFallback},
		&fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary},
	)

	statuses := r.ProviderStatuses()
	want := []ProviderName{ProviderOpenAI, ProviderGoogle, ProviderMock}

	if len(statuses) != len(want) {
		t.Fatalf("got %d statuses, want %d", len(statuses), len(want))
	}

	for i, name := range want {
		if statuses[i].Name != name {
			t.Errorf("statuses[%d] = %s, want %s", i, statuses[i].Name, name)
		}
	}
}

func TestNew_RegistersMockWithoutKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "no key", key: ""},
		{name: "explicit mock key", key: llmAPIKeyMock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(context.Background(), &config.Config{LLMAPIKey: tt.key}, nil)

			statuses := r.ProviderStatuses()
			if len(statuses) != 1 || statuses[0].Name != ProviderMock {
				t.Errorf("statuses = %+v, want only the mock", statuses)
			}
		})
	}
}

func TestNew_RegistersConfiguredVendors(t *testing.T) {
	r := New(context.Background(), &config.Config{LLMAPIKey: "sk-test", AnthropicAPIKey: "ak-test"}, nil)

	statuses := r.ProviderStatuses()
	if len(statuses) != 2 {
		t.Fatalf("got %d providers, want 2", len(statuses))
	}

	if statuses[0].Name != ProviderOpenAI || statuses[1].Name != ProviderAnthropic {
		t.Errorf("order = %s, %s", statuses[0].Name, statuses[1].Name)
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		SystemMessage("one"),
		UserMessage("q"),
		SystemMessage("two"),
		{Role: RoleAssistant, Content: "a"},
	})

	if system != "one\n\ntwo" {
		t.Errorf("system = %q", system)
	}

	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("turns = %+v", turns)
	}
}
