// Package prompt holds the prompts sent to language models.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

//go:embed template/classifier.txt
var classifierRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
	}
}

// Validate fails when a required prompt is empty.
func (p PromptSet) Validate() error {
	if strings.TrimSpace(p.Classifier) == "" {
		return fmt.Errorf("%w: classifier", contractx.ErrPromptMissing)
	}
	return nil
}

// ClassifierInput renders the user turn for a classification request.
func ClassifierInput(req contractx.ClassifyRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Channel: %s\nSender role: %s\n\nOperations:\n", req.Channel.Kind, req.Entity)
	for _, c := range req.Capabilities {
		fmt.Fprintf(&b, "- %s: %s", c.Operation, c.Description)
		if len(c.Params) > 0 {
			fmt.Fprintf(&b, " (params: %s)", strings.Join(c.Params, ", "))
		}
		b.WriteByte('\n')
	}

	if len(req.RecentMemory) > 0 {
		b.WriteString("\nRecent notes:\n")
		for _, note := range req.RecentMemory {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}

	fmt.Fprintf(&b, "\nMessage:\n%s\n", strings.TrimSpace(req.Text))
	return b.String()
}
