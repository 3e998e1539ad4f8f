// Package llm sends role-tagged chat turns to a language model and returns
// the generated text. Several vendors are supported behind one Registry
// that routes by model name and falls back between providers.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/safecity/dashboard/internal/platform/config"
)

// Role tags a chat turn.
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

// SystemMessage returns a system instruction turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Client generates a reply for the given turns with the named model.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// splitSystem joins the system turns into one instruction and returns the
// remaining conversation. Vendors that take the system prompt out of band
// use it.
func splitSystem(messages []Message) (string, []Message) {
	var (
		system []string
		turns  []Message
	)

	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}

		turns = append(turns, m)
	}

	return strings.Join(system, "\n\n"), turns
}

const (
	defaultCircuitThreshold = 3
	defaultCircuitTimeout   = time.Minute
)

// buildCircuitConfig creates a CircuitBreakerConfig with defaults applied.
func buildCircuitConfig(cfg *config.Config) CircuitBreakerConfig {
	circuitCfg := CircuitBreakerConfig{
		Threshold:  cfg.LLMCircuitThreshold,
		ResetAfter: cfg.LLMCircuitResetAfter,
	}

	if circuitCfg.Threshold == 0 {
		circuitCfg.Threshold = defaultCircuitThreshold
	}

	if circuitCfg.ResetAfter == 0 {
		circuitCfg.ResetAfter = defaultCircuitTimeout
	}

	return circuitCfg
}

// registerProviders registers every configured vendor with the registry.
func registerProviders(ctx context.Context, registry *Registry, cfg *config.Config, logger *zerolog.Logger, circuitCfg CircuitBreakerConfig) {
	if cfg.LLMAPIKey != "" && cfg.LLMAPIKey != llmAPIKeyMock {
		registry.Register(NewOpenAIProvider(cfg, logger), circuitCfg)
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(cfg, logger), circuitCfg)
	}

	if cfg.GoogleAPIKey != "" {
		googleProvider, err := NewGoogleProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create Google LLM provider")
		} else {
			registry.Register(googleProvider, circuitCfg)
		}
	}

	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no LLM API key configured, assistant answers are simulated")
		registry.Register(NewMockProvider(), circuitCfg)
	}
}

// New creates a Registry holding every configured provider: OpenAI first,
// then Anthropic, then Google. With no key at all it falls back to the mock.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(logger)
	registerProviders(ctx, registry, cfg, logger, buildCircuitConfig(cfg))

	return registry
}
