// Package assistant turns filtered incident records into language-model
// requests: an analytical summary on the primary model and a general chat
// on the secondary one.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/core/llm"
	"github.com/safecity/dashboard/internal/platform/observability"
)

const (
	kindSummary = "summary"
	kindChat    = "chat"
)

// Config selects the models and the request budget.
type Config struct {
	PrimaryModel   string
	SecondaryModel string
	Timeout        time.Duration
	ContextLines   int
}

// Service answers assistant requests through an llm.Client.
type Service struct {
	client llm.Client
	cfg    Config
	logger *zerolog.Logger
}

// New creates a Service.
func New(client llm.Client, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.ContextLines == 0 {
		cfg.ContextLines = DefaultContextLines
	}

	return &Service{client: client, cfg: cfg, logger: logger}
}

// Summarize asks the primary model to explain the filtered records.
// A blank question falls back to a generic one. Empty input is rejected
// before any model call.
func (s *Service) Summarize(ctx context.Context, records []incidents.Record, question string) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("summary of an empty selection: %w", coreerrors.ErrInvalidInput)
	}

	question = strings.TrimSpace(question)
	if question == "" {
		question = FallbackSummaryQuestion
	}

	user := strings.NewReplacer(
		promptContextPlaceholder, ContextText(records, s.cfg.ContextLines),
		promptQuestionPlaceholder, question,
	).Replace(analystUserPrompt)

	return s.call(ctx, kindSummary, s.cfg.PrimaryModel, []llm.Message{
		llm.SystemMessage(analystSystemPrompt),
		llm.UserMessage(user),
	})
}

// Chat answers a free question on the secondary model. hint, when set, is
// appended to the system instruction.
func (s *Service) Chat(ctx context.Context, message, hint string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty chat message: %w", coreerrors.ErrInvalidInput)
	}

	system := chatSystemPrompt
	if hint != "" {
		system += chatHintPrefix + hint
	}

	return s.call(ctx, kindChat, s.cfg.SecondaryModel, []llm.Message{
		llm.SystemMessage(system),
		llm.UserMessage(message),
	})
}

func (s *Service) call(ctx context.Context, kind, model string, messages []llm.Message) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()

	answer, err := s.client.Chat(ctx, model, messages)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = coreerrors.ErrEmptyResponse
	}

	if err != nil {
		observability.AssistantRequests.WithLabelValues(kind, observability.StatusError).Inc()

		s.logger.Error().Err(err).Str("kind", kind).Str("model", model).Msg("assistant request failed")

		return "", fmt.Errorf("%s on %s: %w: %w", kind, model, coreerrors.ErrAssistantTransport, err)
	}

	observability.AssistantRequests.WithLabelValues(kind, observability.StatusSuccess).Inc()

	s.logger.Info().
		Str("kind", kind).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Int("answer_len", len(answer)).
		Msg("assistant answered")

	return answer, nil
}
