// Package analyst turns questions into answers: it gathers data through the
// engines or the uploaded files, builds the prompt and asks the model.
package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/mask"
	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

// Settings are the model parameters of one analyst.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// ContextTokens caps the data context placed in a prompt. It is clamped
	// to the model window when the model is in the catalog.
	ContextTokens int
}

// call is one model invocation.
type call struct {
	prompt  string
	images  []ai.Image
	onDelta func(string)
}

// generate sends a single user prompt. With onDelta set and a streaming
// runtime, deltas are forwarded as they arrive and the joined text is
// returned.
func generate(ctx context.Context, rt ai.Runtime, s Settings, c call) (string, ai.Usage, error) {
	req := ai.GenerateRequest{
		Model:       s.Model,
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: c.prompt}},
		Images:      c.images,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}
	if sr, ok := rt.(ai.StreamRuntime); ok && c.onDelta != nil {
		var b strings.Builder
		err := sr.GenerateStream(ctx, req, func(delta string) {
			b.WriteString(delta)
			c.onDelta(delta)
		})
		if err != nil {
			return "", ai.Usage{}, err
		}
		return b.String(), ai.Usage{}, nil
	}
	resp, err := rt.Generate(ctx, req)
	if err != nil {
		return "", ai.Usage{}, err
	}
	text := resp.Text()
	if text == "" {
		return "", resp.Usage, fmt.Errorf("empty response from model %s", s.Model)
	}
	if c.onDelta != nil {
		c.onDelta(text)
	}
	return text, resp.Usage, nil
}

// prepareContext masks personal data and trims the context to the token
// budget of the model.
func prepareContext(text string, s Settings) string {
	text = mask.Text(text)
	if budget := ai.ContextBudget(s.Model, s.ContextTokens); budget > 0 {
		text = utils.TruncateToTokenLimit(text, budget)
	}
	return text
}
