package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/platform/config"
)

// openaiProvider talks to OpenAI or any endpoint speaking its chat API.
type openaiProvider struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewOpenAIProvider creates a provider for OpenAI. LLMBaseURL points it at
// a compatible endpoint instead.
func NewOpenAIProvider(cfg *config.Config, logger *zerolog.Logger) *openaiProvider {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return &openaiProvider{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg),
	}
}

func (p *openaiProvider) Name() ProviderName { return ProviderOpenAI }

func (p *openaiProvider) IsAvailable() bool {
	return p.cfg.LLMAPIKey != "" && p.cfg.LLMAPIKey != llmAPIKeyMock
}

func (p *openaiProvider) Priority() int { return PriorityPrimary }

func (p *openaiProvider) resolveModel(model string) string {
	if model == "" || ownerOf(model) != ProviderOpenAI {
		return defaultOpenAIModel
	}

	return model
}

// Chat implements Provider.
func (p *openaiProvider) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: openaiRole(m.Role), Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.resolveModel(model),
		Messages:  chat,
		MaxTokens: maxTokens(p.cfg),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: %w", coreerrors.ErrEmptyResponse)
	}

	p.logger.Debug().
		Str(logKeyModel, resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("openai completion")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func openaiRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func newRateLimiter(cfg *config.Config) *rate.Limiter {
	rps := cfg.LLMRateLimitRPS
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, rateLimiterBurst)
	}

	return rate.NewLimiter(rate.Limit(rps), rateLimiterBurst)
}

func maxTokens(cfg *config.Config) int {
	if cfg.LLMMaxTokens > 0 {
		return cfg.LLMMaxTokens
	}

	return defaultMaxTokens
}

// Ensure openaiProvider implements Provider interface.
var _ Provider = (*openaiProvider)(nil)
