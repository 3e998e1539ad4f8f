package llm

import "context"

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGoogle    ProviderName = "google"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary        = 100 // OpenAI or compatible endpoint
	PriorityFallback       = 50  // Anthropic
	PrioritySecondFallback = 25  // Google
	PriorityMock           = 0   // Mock provider for offline use and tests
)

// Provider is one vendor backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Chat sends the turns to model. An empty model selects the provider default.
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// ownerOf returns the provider that serves a model name.
func ownerOf(model string) ProviderName {
	switch {
	case hasPrefixFold(model, modelPrefixClaude):
		return ProviderAnthropic
	case hasPrefixFold(model, modelPrefixGemini):
		return ProviderGoogle
	default:
		return ProviderOpenAI
	}
}
