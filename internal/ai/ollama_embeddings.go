package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbClient calls Ollama's /api/embeddings endpoint.
type OllamaEmbClient struct {
	httpClient *http.Client
	host       string
}

func NewOllamaEmbClient(cfg RuntimeConfig) *OllamaEmbClient {
	cfg = cfg.withDefaults(60*time.Second, 1, 0, 0)
	return &OllamaEmbClient{httpClient: &http.Client{Timeout: cfg.HTTPTimeout}, host: ollamaHost(cfg.Host)}
}

// Embed requests one embedding per input. Ollama accepts a single prompt
// per call, so inputs are sent in sequence.
func (c *OllamaEmbClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	type reqBody struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	type respBody struct {
		Embedding []float64 `json:"embedding"`
	}
	client := &OllamaClient{httpClient: c.httpClient, host: c.host}
	out := make([][]float32, 0, len(inputs))
	for _, s := range inputs {
		b, err := json.Marshal(reqBody{Model: model, Prompt: s})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		resp, err := client.post(ctx, "/api/embeddings", b)
		if err != nil {
			return nil, &UnreachableError{Host: c.host, Err: err}
		}
		var rb respBody
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err = unwrapRetryable(ollamaError(resp))
		} else if decErr := json.NewDecoder(resp.Body).Decode(&rb); decErr != nil {
			err = fmt.Errorf("decode: %w", decErr)
		}
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, toFloat32(rb.Embedding))
	}
	return out, nil
}
