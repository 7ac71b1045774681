package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/retrieval"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
	"github.com/liszzmword/ai-data-analyst/internal/workspace"
)

// Swapped in tests to avoid network calls.
var (
	runtimeFactory  = buildRuntime
	embedderFactory = newEmbedder
)

func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func runtimeConfig(c *cfgpkg.Global) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 120 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
	if c == nil {
		return rc
	}
	if c.HTTPTimeoutSec > 0 {
		rc.HTTPTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	if c.RetryMaxAttempts > 0 {
		rc.RetryMax = c.RetryMaxAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}
	return rc
}

// normalizeProvider maps user spellings onto registered provider names.
func normalizeProvider(name string) string {
	switch p := strings.ToLower(strings.TrimSpace(name)); p {
	case "", "google", "gemini":
		return ai.ProviderGemini
	case "local", "ollama":
		return ai.ProviderOllama
	default:
		return p
	}
}

// providerCredentials fills the key or host the provider needs.
func providerCredentials(c *cfgpkg.Global, name string, rc ai.RuntimeConfig) ai.RuntimeConfig {
	if c == nil {
		return rc
	}
	switch name {
	case ai.ProviderOpenRouter:
		rc.APIKey = c.OpenRouterAPIKey
		if rc.APIKey == "" {
			rc.APIKey = c.APIKey
		}
	case ai.ProviderOllama:
		rc.Host = c.OllamaHost
	default:
		rc.APIKey = c.APIKey
	}
	return rc
}

func buildRuntime(c *cfgpkg.Global, providerFlag string) (ai.Runtime, string, error) {
	name := providerFlag
	if strings.TrimSpace(name) == "" && c != nil {
		name = c.Provider
	}
	name = normalizeProvider(name)
	rt, err := ai.NewRuntime(name, providerCredentials(c, name, runtimeConfig(c)))
	if err != nil {
		return nil, name, fmt.Errorf("init %s runtime: %w", name, err)
	}
	return rt, name, nil
}

func newEmbedder(c *cfgpkg.Global) (ai.Embedder, string, error) {
	name := normalizeProvider(c.EmbedProvider)
	emb, err := ai.NewEmbedder(name, providerCredentials(c, name, runtimeConfig(c)))
	if err != nil {
		return nil, name, fmt.Errorf("init %s embedder: %w", name, err)
	}
	return emb, name, nil
}

func settings(c *cfgpkg.Global, model string) analyst.Settings {
	return analyst.Settings{
		Model:         model,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		ContextTokens: c.ContextTokenLimit,
	}
}

func openWorkspace(ctx context.Context, c *cfgpkg.Global, opts ...workspace.Option) (*workspace.Live, error) {
	live, err := workspace.Open(ctx, workspace.PathsFrom(c), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("load data from %s: %w", c.DataDir, err)
	}
	if snap := live.Current(); len(snap.Missing) > 0 {
		logger.Sugar().Warnf("datasets not found: %s", strings.Join(snap.Missing, ", "))
	}
	return live, nil
}

func loadClassifier(c *cfgpkg.Global) (*router.Classifier, error) {
	rules, err := router.LoadRules(c.Path(c.RulesFile))
	if err != nil {
		return nil, err
	}
	return router.New(rules), nil
}

// openSearcher returns the semantic codebook searcher, or nil when no index
// has been built or the embedder cannot be created.
func openSearcher(c *cfgpkg.Global) engine.Searcher {
	emb, name, err := embedderFactory(c)
	if err != nil {
		logger.Sugar().Debugf("semantic search disabled: %v", err)
		return nil
	}
	s, err := retrieval.Open(c.IndexDir, emb, c.EmbedModel)
	if err != nil {
		logger.Sugar().Warnf("open %s codebook index: %v", name, err)
		return nil
	}
	if s == nil {
		return nil
	}
	return s
}

func newLoader(c *cfgpkg.Global, cb *codebook.Codebook) *upload.Loader {
	opts := []upload.Option{upload.WithLogger(logger)}
	if c.MaxUploadMB > 0 {
		opts = append(opts, upload.WithMaxBytes(int64(c.MaxUploadMB)<<20))
	}
	return upload.NewLoader(cb, opts...)
}

// optionalCodebook loads the codebook for renaming uploaded columns. Uploads
// work without it, so a failure only disables the renaming.
func optionalCodebook(c *cfgpkg.Global) *codebook.Codebook {
	path := c.Path(c.CodebookFile)
	if path == "" {
		return nil
	}
	cb, err := codebook.Load(path, logger)
	if err != nil {
		logger.Sugar().Debugf("codebook unavailable: %v", err)
		return nil
	}
	return cb
}

// printMarkdown writes md to w, rendered for the terminal unless raw is set.
func printMarkdown(w io.Writer, md string, raw bool) {
	if raw {
		fmt.Fprintln(w, md)
		return
	}
	fmt.Fprint(w, render.Terminal(md, 0))
}

// printFailure shows a model error with its hint without failing the command.
func printFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "⚠ %v\n", err)
	if h := ai.Hint(err); h != "" {
		fmt.Fprintf(w, "  %s\n", h)
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
