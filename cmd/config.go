package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set analyst configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		render.Pairs(out, [2]string{"key", "value"}, [][2]string{
			{"provider", cfg.Provider},
			{"model", cfg.Model},
			{"analyst_model", cfg.AnalystModel},
			{"api_key", mask(cfg.APIKey)},
			{"openrouter_api_key", mask(cfg.OpenRouterAPIKey)},
			{"embed_provider", cfg.EmbedProvider},
			{"embed_model", cfg.EmbedModel},
			{"ollama_host", cfg.OllamaHost},
			{"max_tokens", strconv.Itoa(cfg.MaxTokens)},
			{"temperature", strconv.FormatFloat(cfg.Temperature, 'f', 3, 64)},
			{"context_token_limit", strconv.Itoa(cfg.ContextTokenLimit)},
			{"data_dir", cfg.DataDir},
			{"codebook_file", cfg.CodebookFile},
			{"client_file", cfg.ClientFile},
			{"sales_file", cfg.SalesFile},
			{"journal_file", cfg.JournalFile},
			{"rules_file", cfg.RulesFile},
			{"index_dir", cfg.IndexDir},
			{"notebooks_dir", cfg.NotebooksDir},
			{"http_timeout_sec", strconv.Itoa(cfg.HTTPTimeoutSec)},
			{"retry_max", strconv.Itoa(cfg.RetryMaxAttempts)},
			{"retry_base_ms", strconv.Itoa(cfg.RetryBaseDelayMs)},
			{"retry_max_ms", strconv.Itoa(cfg.RetryMaxDelayMs)},
			{"server_addr", cfg.ServerAddr},
			{"session_secret", mask(cfg.SessionSecret)},
			{"max_upload_mb", strconv.Itoa(cfg.MaxUploadMB)},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	atoi := func(dst *int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*dst = i
		return nil
	}
	switch key {
	case "provider", "embed_provider":
		p := normalizeProvider(val)
		known := false
		for _, name := range ai.Providers() {
			known = known || name == p
		}
		if !known {
			return fmt.Errorf("invalid %s: %s (use %s)", key, val, strings.Join(ai.Providers(), ", "))
		}
		if key == "provider" {
			c.Provider = p
		} else {
			c.EmbedProvider = p
		}
	case "model":
		c.Model = val
	case "analyst_model":
		c.AnalystModel = val
	case "api_key":
		c.APIKey = val
	case "openrouter_api_key":
		c.OpenRouterAPIKey = val
	case "embed_model":
		c.EmbedModel = val
	case "ollama_host":
		c.OllamaHost = val
	case "max_tokens":
		return atoi(&c.MaxTokens)
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v", val)
		}
		c.Temperature = f
	case "context_token_limit":
		return atoi(&c.ContextTokenLimit)
	case "data_dir":
		c.DataDir = val
	case "codebook_file":
		c.CodebookFile = val
	case "client_file":
		c.ClientFile = val
	case "sales_file":
		c.SalesFile = val
	case "journal_file":
		c.JournalFile = val
	case "rules_file":
		c.RulesFile = val
	case "index_dir":
		c.IndexDir = val
	case "notebooks_dir":
		c.NotebooksDir = val
	case "http_timeout_sec":
		return atoi(&c.HTTPTimeoutSec)
	case "retry_max":
		return atoi(&c.RetryMaxAttempts)
	case "retry_base_ms":
		return atoi(&c.RetryBaseDelayMs)
	case "retry_max_ms":
		return atoi(&c.RetryMaxDelayMs)
	case "server_addr":
		c.ServerAddr = val
	case "session_secret":
		c.SessionSecret = val
	case "max_upload_mb":
		return atoi(&c.MaxUploadMB)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
