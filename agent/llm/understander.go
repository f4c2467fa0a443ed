// Package llm provides language-understanding backends for free-text routing.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	promptx "github.com/tanpawarit/clubhouse/agent/prompt"
	openrouterx "github.com/tanpawarit/clubhouse/pkg/openrouter"
)

// classifierOutput is the JSON shape every backend asks the model for.
type classifierOutput struct {
	Candidates []contractx.Candidate `json:"candidates"`
}

// NewUnderstander builds the backend named by cfg. It returns nil for the
// none backend.
func NewUnderstander(ctx context.Context, cfg Config) (contractx.Understander, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prompts := promptx.LoadPromptSet()
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	switch cfg.backend() {
	case BackendNone:
		return nil, nil
	case BackendOpenAI:
		u, err := NewOpenAIUnderstander(openrouterx.NewClient(cfg.OpenRouter()), cfg.Model, prompts.Classifier)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		chatModel, err := openrouterx.NewChatModel(ctx, cfg.OpenRouter())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		u, err := NewEinoUnderstander(ctx, chatModel, prompts.Classifier)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
}

// normalize drops nameless candidates and those whose confidence is not a
// number, then clamps confidence into [0, 1].
func normalize(in []contractx.Candidate) []contractx.Candidate {
	out := make([]contractx.Candidate, 0, len(in))
	for _, c := range in {
		c.Operation = strings.TrimSpace(c.Operation)
		if c.Operation == "" || math.IsNaN(c.Confidence) {
			continue
		}
		c.Confidence = min(max(c.Confidence, 0), 1)
		out = append(out, c)
	}
	return out
}

// parseContent decodes a raw model reply, tolerating a fenced code block.
func parseContent(content string) ([]contractx.Candidate, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty classifier response", contractx.ErrSchemaViolation)
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: decode classifier response: %v", contractx.ErrSchemaViolation, err)
	}
	return normalize(out.Candidates), nil
}
