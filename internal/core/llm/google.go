package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/platform/config"
)

// Gemini calls the assistant side of a conversation "model".
const geminiRoleModel = "model"

// googleProvider implements the Provider interface for Google Gemini.
type googleProvider struct {
	cfg         *config.Config
	client      *genai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewGoogleProvider creates a new Google Gemini LLM provider.
func NewGoogleProvider(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, opts ...option.ClientOption) (*googleProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.GoogleAPIKey)}, opts...)

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &googleProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(cfg),
	}, nil
}

// Close closes the Google client.
func (p *googleProvider) Close() error {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("closing google genai client: %w", err)
		}
	}

	return nil
}

func (p *googleProvider) Name() ProviderName { return ProviderGoogle }

func (p *googleProvider) IsAvailable() bool { return p.cfg.GoogleAPIKey != "" }

func (p *googleProvider) Priority() int { return PrioritySecondFallback }

func (p *googleProvider) resolveModel(model string) string {
	if ownerOf(model) == ProviderGoogle {
		return model
	}

	return defaultGoogleModel
}

// Chat implements Provider. Earlier turns become the chat history and the
// last one is sent.
func (p *googleProvider) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("google genai: no user turn: %w", coreerrors.ErrInvalidInput)
	}

	genModel := p.client.GenerativeModel(p.resolveModel(model))
	genModel.SetMaxOutputTokens(int32(maxTokens(p.cfg))) //nolint:gosec // configured token budgets fit in int32

	if system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sanitizeUTF8(system))}}
	}

	session := genModel.StartChat()

	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = geminiRoleModel
		}

		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(sanitizeUTF8(m.Content))},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(sanitizeUTF8(turns[len(turns)-1].Content)))
	if err != nil {
		return "", fmt.Errorf("google genai completion: %w", err)
	}

	text := strings.TrimSpace(extractGoogleResponseText(resp))
	if text == "" {
		return "", fmt.Errorf("google genai completion: %w", coreerrors.ErrEmptyResponse)
	}

	return text, nil
}

// sanitizeUTF8 drops invalid byte sequences, which the API rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	return strings.ToValidUTF8(s, "")
}

// extractGoogleResponseText extracts text content from Google Gemini response.
func extractGoogleResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var result strings.Builder

	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.WriteString(string(text))
				}
			}
		}
	}

	return result.String()
}

// Ensure googleProvider implements Provider interface.
var _ Provider = (*googleProvider)(nil)
