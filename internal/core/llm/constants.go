package llm

// Error message templates
const (
	errRateLimiter = "rate limiter: %w"
)

// Model prefixes and defaults
const (
	modelPrefixClaude = "claude"
	modelPrefixGemini = "gemini"
	llmAPIKeyMock     = "mock"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5"
	defaultGoogleModel    = "gemini-2.0-flash"
)

// Rate limiter burst per provider
const rateLimiterBurst = 3

// Default completion budget when none is configured
const defaultMaxTokens = 1024

// Content type of text blocks in Anthropic responses
const contentTypeText = "text"

// Log key strings
const (
	logKeyProvider = "provider"
	logKeyModel    = "model"
)

// Log message strings
const (
	logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"
)

// Metric values for provider availability
const (
	MetricValueAvailable   = 1.0
	MetricValueUnavailable = 0.0
)
