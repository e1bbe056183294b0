package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	"github.com/greasemonkey-ai/voicecore/internal/model/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
)

// Request carries one question with the context it should be answered in.
type Request struct {
	Question string
	Vehicle  *vehicle.Vehicle // nil when no vehicle is selected
	Units    vehicle.UnitPreferences
	History  []conversation.Message // newest first
}

// Service answers questions through the configured chat model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   zerolog.Logger
}

// NewService compiles the question-answering chain.
func NewService(ctx context.Context, cfg config.AIConfig, log zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ask chain: %w", err)
	}

	return &Service{
		chain: runnable,
		log:   log.With().Str("component", "ask").Logger(),
	}, nil
}

// Ask runs one question through the chain and returns the answer text.
func (s *Service) Ask(ctx context.Context, req Request) (string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", fmt.Errorf("question is empty")
	}

	input := map[string]any{
		"system":  buildSystemPrompt(req.Units),
		"history": buildHistoryMessages(req.History),
		"query":   buildQuery(question, req.Vehicle),
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run ask chain: %w", err)
	}

	event := s.log.Debug().Int("answer_length", len(response.Content))
	if req.Vehicle != nil {
		event = event.Str("vehicle", req.Vehicle.ID)
	}
	event.Msg("generated answer")
	return response.Content, nil
}
