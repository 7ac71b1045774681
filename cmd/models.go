package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog used for context budgets and cost hints",
	Example: `  analyst models show
  analyst models sync --file ./models.json
  analyst models fetch --url https://example.com/models.json
  analyst models preset openrouter
  analyst models recommend --tier vision`,
}

var modelsJSON bool

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := cmd.OutOrStdout()
		if modelsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			mi := cat[k]
			vision := ""
			if mi.Vision {
				vision = "✓"
			}
			rows = append(rows, []string{
				k,
				mi.Provider,
				strconv.Itoa(mi.ContextTokens),
				strconv.FormatFloat(mi.InputPerK, 'f', -1, 64),
				strconv.FormatFloat(mi.OutputPerK, 'f', -1, 64),
				vision,
			})
		}
		render.Rows(out, []string{"model", "provider", "context", "$/1K in", "$/1K out", "vision"}, rows)
		return nil
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge model metadata from a JSON file into the saved catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return applyCatalog(cmd.OutOrStdout(), m, "file "+syncPath)
	},
}

var (
	fetchURL    string
	fetchOutput string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model metadata JSON from a URL and merge it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchURL == "" {
			return fmt.Errorf("--url is required")
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, fetchURL, nil)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		client := &http.Client{Timeout: 20 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
		}
		var m map[string]ai.ModelInfo
		if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if fetchOutput != "" {
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			if err := utils.SafeWriteFile(fetchOutput, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved fetched catalog to %s\n", fetchOutput)
		}
		return applyCatalog(cmd.OutOrStdout(), m, fetchURL)
	},
}

var modelsPresetCmd = &cobra.Command{
	Use:   "preset <provider>",
	Short: "Merge the built-in catalog of a provider (gemini, openrouter, ollama)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, ok := ai.PresetCatalog(normalizeProvider(args[0]))
		if !ok {
			return fmt.Errorf("no preset for provider %q (available: %v)", args[0], ai.Providers())
		}
		return applyCatalog(cmd.OutOrStdout(), m, "preset "+args[0])
	},
}

var recommendTier string

var modelsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Suggest a model for the active provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := provider
		if name == "" && cfg != nil {
			name = cfg.Provider
		}
		name = normalizeProvider(name)
		model, ok := ai.RecommendModel(name, recommendTier)
		if !ok {
			return fmt.Errorf("no recommendation for provider %q and tier %q (tiers: cheap, balanced, high-context, vision)", name, recommendTier)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", model, name, recommendTier)
		return nil
	},
}

// catalogPath is where merged catalog entries persist between runs.
func catalogPath() (string, error) {
	dir, err := cfgpkg.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "models.json"), nil
}

// loadSavedCatalog merges previously synced entries into the built-in catalog.
func loadSavedCatalog() error {
	path, err := catalogPath()
	if err != nil {
		return err
	}
	m, err := ai.LoadCatalogFromJSON(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	ai.MergeCatalog(m)
	return nil
}

// applyCatalog merges m into the catalog and saves the merged overrides.
func applyCatalog(w io.Writer, m map[string]ai.ModelInfo, source string) error {
	path, err := catalogPath()
	if err != nil {
		return err
	}
	saved, err := ai.LoadCatalogFromJSON(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if saved == nil {
		saved = map[string]ai.ModelInfo{}
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
		}
		saved[k] = v
	}
	ai.MergeCatalog(saved)
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, data); err != nil {
		return err
	}
	fmt.Fprintf(w, "Merged %d models from %s into %s\n", len(m), source, path)
	return nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)
	modelsCmd.AddCommand(modelsPresetCmd)
	modelsCmd.AddCommand(modelsRecommendCmd)

	modelsShowCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsRecommendCmd.Flags().StringVar(&recommendTier, "tier", "balanced", "cheap|balanced|high-context|vision")
}
