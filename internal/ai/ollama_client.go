package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
type OllamaClient struct {
	httpClient *http.Client
	host       string
	retry      backoff
}

// NewOllamaClient creates a client targeting cfg.Host (e.g. http://127.0.0.1:11434).
func NewOllamaClient(cfg RuntimeConfig) *OllamaClient {
	cfg = cfg.withDefaults(60*time.Second, 2, 200*time.Millisecond, time.Second)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		host:       ollamaHost(cfg.Host),
		retry:      backoff{attempts: cfg.RetryMax, base: cfg.BaseDelay, max: cfg.MaxDelay},
	}
}

func ollamaHost(h string) string {
	if h == "" {
		return defaultOllamaHost
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	return strings.TrimRight(h, "/")
}

// Structures aligned with Ollama /api/chat.
type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (c *OllamaClient) chatRequest(req GenerateRequest, stream bool) ([]byte, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	last := -1
	messages := make([]ollamaChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaChatMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == RoleUser {
			last = i
		}
	}
	if len(req.Images) > 0 && last >= 0 {
		for _, img := range req.Images {
			if !strings.HasPrefix(img.MIME, "image/") {
				return nil, fmt.Errorf("%s (%s): %w", img.Name, img.MIME, ErrImagesUnsupported)
			}
			messages[last].Images = append(messages[last].Images, base64.StdEncoding.EncodeToString(img.Data))
		}
	}
	oreq := ollamaChatRequest{Model: req.Model, Messages: messages, Stream: stream, Options: map[string]any{}}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payload, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(httpReq)
}

// Generate sends a chat request to Ollama and maps the response to GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	payload, err := c.chatRequest(req, false)
	if err != nil {
		return nil, err
	}
	var out GenerateResponse
	err = c.retry.do(ctx, func() error {
		resp, err := c.post(ctx, "/api/chat", payload)
		if err != nil {
			unreachable := &UnreachableError{Host: c.host, Err: err}
			if isRetryableNetErr(err) {
				return &retryable{err: unreachable}
			}
			return unreachable
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return ollamaError(resp)
		}
		var oresp ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		out.Choices = []Choice{{Message: Message{Role: RoleAssistant, Content: oresp.Message.Content}}}
		out.Usage = Usage{
			PromptTokens:     oresp.PromptEvalCount,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
		}
		// Ollama has no request ids; synthesize one for log correlation.
		out.RequestID = fmt.Sprintf("ollama_%d", time.Now().UnixNano())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateStream streams partial deltas from Ollama's NDJSON chat stream.
func (c *OllamaClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	payload, err := c.chatRequest(req, true)
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return &UnreachableError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapRetryable(ollamaError(resp))
	}
	dec := json.NewDecoder(resp.Body)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var oresp ollamaChatResponse
		if err := dec.Decode(&oresp); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode stream: %w", err)
		}
		if msg := oresp.Message.Content; msg != "" {
			onDelta(msg)
		}
		if oresp.Done {
			break
		}
	}
	return nil
}

// ollamaError classifies Ollama failures. A 404 almost always means the
// model has not been pulled.
func ollamaError(resp *http.Response) error {
	err := responseError(resp)
	if resp.StatusCode != http.StatusNotFound {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &ModelNotFoundError{APIError: apiErr}
	}
	return err
}
