package word

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/helpline/backend/internal/model/word"
)

// Service scores recognized caller words for sentiment and suggests an
// operator action (hold, end or intervene).
type Service struct {
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the assessment chain over the provided chat model.
func NewService(ctx context.Context, chatModel model.ChatModel, systemPrompt string) (*Service, error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{observations}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile assessment chain: %w", err)
	}

	return &Service{systemPrompt: systemPrompt, chain: runnable}, nil
}

// Assess submits one batch of observations and parses the model's JSON
// verdicts.
func (s *Service) Assess(ctx context.Context, observations []word.Observation) ([]word.Assessment, error) {
	payload, err := json.Marshal(observations)
	if err != nil {
		return nil, fmt.Errorf("marshal observations: %w", err)
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":       s.systemPrompt,
		"observations": string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("run assessment chain: %w", err)
	}

	log.Printf("[word] assessed %d observations, response length=%d", len(observations), len(response.Content))

	return parseAssessments(response.Content)
}

// parseAssessments extracts the JSON array from the model output,
// tolerating markdown code fences around it.
func parseAssessments(content string) ([]word.Assessment, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var assessments []word.Assessment
	if err := json.Unmarshal([]byte(trimmed), &assessments); err != nil {
		return nil, fmt.Errorf("parse assessment output: %w", err)
	}
	return assessments, nil
}
