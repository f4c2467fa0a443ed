package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	promptx "github.com/tanpawarit/clubhouse/agent/prompt"
)

// OpenAIUnderstander calls the chat completions API directly.
type OpenAIUnderstander struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewOpenAIUnderstander(client *openai.Client, model, systemPrompt string) (*OpenAIUnderstander, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: classifier", contractx.ErrPromptMissing)
	}
	return &OpenAIUnderstander{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: systemPrompt,
	}, nil
}

func (u *OpenAIUnderstander) Classify(ctx context.Context, req contractx.ClassifyRequest) ([]contractx.Candidate, error) {
	resp, err := u.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(u.systemPrompt),
			openai.UserMessage(promptx.ClassifierInput(req)),
		},
		Model: openai.ChatModel(u.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chat completion: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in chat completion", contractx.ErrSchemaViolation)
	}
	return parseContent(resp.Choices[0].Message.Content)
}
