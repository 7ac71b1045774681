package ai

import (
	"bufio"
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

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient talks to the OpenRouter chat completions API.
type OpenRouterClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	retry      backoff
}

// NewOpenRouterClient builds a client from the runtime config. Host, when
// set, replaces the public API base URL.
func NewOpenRouterClient(cfg RuntimeConfig) *OpenRouterClient {
	cfg = cfg.withDefaults(60*time.Second, 3, 500*time.Millisecond, 4*time.Second)
	base := openRouterBaseURL
	if cfg.Host != "" {
		base = strings.TrimRight(cfg.Host, "/")
	}
	return &OpenRouterClient{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		apiKey:     cfg.APIKey,
		baseURL:    base,
		retry:      backoff{attempts: cfg.RetryMax, base: cfg.BaseDelay, max: cfg.MaxDelay},
	}
}

type chatPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// payload converts the request. Images ride on the last user message as
// data URLs; anything that is not an image is rejected.
func (c *OpenRouterClient) payload(req GenerateRequest, stream bool) (chatPayload, error) {
	p := chatPayload{Model: req.Model, MaxTokens: req.MaxTokens, Temperature: req.Temperature, Stream: stream}
	last := -1
	for i, m := range req.Messages {
		if m.Role == RoleUser {
			last = i
		}
	}
	for i, m := range req.Messages {
		if i != last || len(req.Images) == 0 {
			p.Messages = append(p.Messages, chatMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []chatPart{{Type: "text", Text: m.Content}}
		for _, img := range req.Images {
			if !strings.HasPrefix(img.MIME, "image/") {
				return p, fmt.Errorf("%s (%s): %w", img.Name, img.MIME, ErrImagesUnsupported)
			}
			url := "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
			parts = append(parts, chatPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
		}
		p.Messages = append(p.Messages, chatMessage{Role: m.Role, Content: parts})
	}
	return p, nil
}

func (c *OpenRouterClient) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", "https://github.com/liszzmword/ai-data-analyst")
	httpReq.Header.Set("X-Title", "AI Data Analyst")
	return httpReq, nil
}

func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is missing")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p, err := c.payload(req, false)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out GenerateResponse
	err = c.retry.do(ctx, func() error {
		httpReq, err := c.newRequest(ctx, "/chat/completions", body)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) {
				return &retryable{err: fmt.Errorf("http request: %w", err)}
			}
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return responseError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		out.RequestID = extractRequestID(resp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateStream streams content using OpenRouter's SSE-compatible stream.
func (c *OpenRouterClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if c.apiKey == "" {
		return errors.New("OPENROUTER_API_KEY is missing")
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	p, err := c.payload(req, true)
	if err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapRetryable(responseError(resp))
	}
	type streamDelta struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var d streamDelta
		if err := json.Unmarshal([]byte(data), &d); err == nil && len(d.Choices) > 0 {
			onDelta(d.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

// Embed generates embeddings using the provider's embeddings endpoint.
func (c *OpenRouterClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is missing")
	}
	if model == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	if len(inputs) == 0 {
		return nil, errors.New("inputs cannot be empty")
	}
	body, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{model, inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	err = c.retry.do(ctx, func() error {
		httpReq, err := c.newRequest(ctx, "/embeddings", body)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return responseError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(inputs))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

// responseError decodes a non-2xx response into a typed error, marked
// retryable for 429 and 5xx.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: extractRequestID(resp)}
	switch v := raw["error"].(type) {
	case map[string]any:
		apiErr.Message, _ = v["message"].(string)
		apiErr.Code, _ = v["code"].(string)
	case string:
		apiErr.Message = v
	}
	if apiErr.Message == "" {
		apiErr.Message, _ = raw["message"].(string)
	}
	after, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
	err := classify(apiErr, after)
	if isRetryableStatus(resp.StatusCode) {
		return &retryable{err: err, after: after}
	}
	return err
}

func unwrapRetryable(err error) error {
	var r *retryable
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}
