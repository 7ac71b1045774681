package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient is the default runtime, backed by the Gemini API. It accepts
// image and PDF attachments.
type GeminiClient struct {
	client *genai.Client
	host   string
	retry  backoff
}

// NewGeminiClient builds a Gemini API client. Host, when set, replaces the
// API base URL.
func NewGeminiClient(ctx context.Context, cfg RuntimeConfig) (*GeminiClient, error) {
	cfg = cfg.withDefaults(120*time.Second, 3, 500*time.Millisecond, 4*time.Second)
	if cfg.APIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is missing")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	if cfg.Host != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Host}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		host:   cfg.Host,
		retry:  backoff{attempts: cfg.RetryMax, base: cfg.BaseDelay, max: cfg.MaxDelay},
	}, nil
}

// contents splits the conversation into a system instruction and turns.
// Attachments join the last user turn.
func geminiContents(req GenerateRequest) (*genai.Content, []*genai.Content) {
	last := -1
	for i, m := range req.Messages {
		if m.Role == RoleUser {
			last = i
		}
	}
	var (
		system   []string
		contents []*genai.Content
	)
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			parts := []*genai.Part{genai.NewPartFromText(m.Content)}
			if i == last {
				for _, img := range req.Images {
					parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIME))
				}
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func geminiConfig(req GenerateRequest, system *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	system, contents := geminiContents(req)
	cfg := geminiConfig(req, system)

	var out GenerateResponse
	err := c.retry.do(ctx, func() error {
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
		if err != nil {
			return c.mapError(err)
		}
		out = GenerateResponse{
			ID:        resp.ResponseID,
			Choices:   []Choice{{Message: Message{Role: RoleAssistant, Content: resp.Text()}}},
			RequestID: resp.ResponseID,
		}
		if u := resp.UsageMetadata; u != nil {
			out.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	system, contents := geminiContents(req)
	for resp, err := range c.client.Models.GenerateContentStream(ctx, req.Model, contents, geminiConfig(req, system)) {
		if err != nil {
			return unwrapRetryable(c.mapError(err))
		}
		if s := resp.Text(); s != "" {
			onDelta(s)
		}
	}
	return nil
}

// Embed returns one vector per input in a single batch call.
func (c *GeminiClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if model == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	if len(inputs) == 0 {
		return nil, errors.New("inputs cannot be empty")
	}
	contents := make([]*genai.Content, len(inputs))
	for i, s := range inputs {
		contents[i] = genai.NewContentFromText(s, genai.RoleUser)
	}
	var out [][]float32
	err := c.retry.do(ctx, func() error {
		res, err := c.client.Models.EmbedContent(ctx, model, contents, nil)
		if err != nil {
			return c.mapError(err)
		}
		out = make([][]float32, len(res.Embeddings))
		for i, e := range res.Embeddings {
			out[i] = e.Values
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) != len(inputs) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(out), len(inputs))
	}
	return out, nil
}

// mapError converts genai failures into this package's typed errors.
func (c *GeminiClient) mapError(err error) error {
	var (
		val genai.APIError
		ptr *genai.APIError
	)
	switch {
	case errors.As(err, &val):
	case errors.As(err, &ptr) && ptr != nil:
		val = *ptr
	default:
		if isRetryableNetErr(err) {
			return &retryable{err: &UnreachableError{Host: c.host, Err: err}}
		}
		return err
	}
	apiErr := &APIError{StatusCode: val.Code, Code: val.Status, Message: val.Message}
	typed := classify(apiErr, 0)
	if isRetryableStatus(val.Code) {
		return &retryable{err: typed}
	}
	return typed
}
