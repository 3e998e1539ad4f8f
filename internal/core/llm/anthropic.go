package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/platform/config"
)

// anthropicProvider implements the Provider interface for Anthropic Claude.
type anthropicProvider struct {
	cfg         *config.Config
	client      anthropic.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewAnthropicProvider creates a new Anthropic LLM provider. Extra options
// are passed to the SDK client.
func NewAnthropicProvider(cfg *config.Config, logger *zerolog.Logger, opts ...option.RequestOption) *anthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}, opts...)

	return &anthropicProvider{
		cfg:         cfg,
		client:      anthropic.NewClient(opts...),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg),
	}
}

func (p *anthropicProvider) Name() ProviderName { return ProviderAnthropic }

func (p *anthropicProvider) IsAvailable() bool { return p.cfg.AnthropicAPIKey != "" }

func (p *anthropicProvider) Priority() int { return PriorityFallback }

func (p *anthropicProvider) resolveModel(model string) string {
	if ownerOf(model) == ProviderAnthropic {
		return model
	}

	return defaultAnthropicModel
}

// Chat implements Provider. System turns go to the dedicated system field.
func (p *anthropicProvider) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.resolveModel(model)),
		MaxTokens: int64(maxTokens(p.cfg)),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	text := strings.TrimSpace(extractTextFromResponse(resp))
	if text == "" {
		return "", fmt.Errorf("anthropic messages: %w", coreerrors.ErrEmptyResponse)
	}

	p.logger.Debug().
		Str(logKeyModel, string(resp.Model)).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Msg("anthropic completion")

	return text, nil
}

func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}

// Ensure anthropicProvider implements Provider interface.
var _ Provider = (*anthropicProvider)(nil)
