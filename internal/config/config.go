package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey means the active provider needs a credential and none is set.
var ErrMissingAPIKey = errors.New("missing API key: set GOOGLE_API_KEY or ANALYST_API_KEY")

// Global configuration structure.
type Global struct {
	Provider         string `mapstructure:"provider" yaml:"provider"`
	Model            string `mapstructure:"model" yaml:"model"`
	AnalystModel     string `mapstructure:"analyst_model" yaml:"analyst_model"`
	APIKey           string `mapstructure:"api_key" yaml:"api_key"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key"`
	EmbedProvider    string `mapstructure:"embed_provider" yaml:"embed_provider"`
	EmbedModel       string `mapstructure:"embed_model" yaml:"embed_model"`

	// Generation
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// Data files
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	CodebookFile string `mapstructure:"codebook_file" yaml:"codebook_file"`
	ClientFile   string `mapstructure:"client_file" yaml:"client_file"`
	SalesFile    string `mapstructure:"sales_file" yaml:"sales_file"`
	JournalFile  string `mapstructure:"journal_file" yaml:"journal_file"`
	RulesFile    string `mapstructure:"rules_file" yaml:"rules_file"`
	IndexDir     string `mapstructure:"index_dir" yaml:"index_dir"`
	NotebooksDir string `mapstructure:"notebooks_dir" yaml:"notebooks_dir"`

	// Context sent to the model
	ContextTokenLimit int `mapstructure:"context_token_limit" yaml:"context_token_limit"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max" yaml:"retry_max"`
	RetryBaseDelayMs int `mapstructure:"retry_base_ms" yaml:"retry_base_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_ms" yaml:"retry_max_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// HTTP server
	ServerAddr    string `mapstructure:"server_addr" yaml:"server_addr"`
	SessionSecret string `mapstructure:"session_secret" yaml:"session_secret"`
	MaxUploadMB   int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// Validate fails fast when the active provider cannot authenticate.
func (c *Global) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "ollama":
		return nil
	case "openrouter":
		if c.OpenRouterAPIKey == "" && c.APIKey == "" {
			return ErrMissingAPIKey
		}
	default:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	}
	return nil
}

// Path resolves a data file name against DataDir. Absolute names are kept.
func (c *Global) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".analyst"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.analyst/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from .env, file, env and defaults.
// Precedence: env > config file (cfgFile or ~/.analyst/config.yaml) > defaults.
func Load(cfgFile string) (*Global, error) {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", "ANALYST_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("openrouter_api_key", "ANALYST_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.NotebooksDir == "" || c.IndexDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		if c.NotebooksDir == "" {
			c.NotebooksDir = filepath.Join(dir, "notebooks")
		}
		if c.IndexDir == "" {
			c.IndexDir = filepath.Join(dir, "index")
		}
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "gemini-2.5-flash")
	v.SetDefault("analyst_model", "gemini-2.5-pro")
	v.SetDefault("embed_provider", "gemini")
	v.SetDefault("embed_model", "text-embedding-004")
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("temperature", 0.4)

	v.SetDefault("data_dir", "data")
	v.SetDefault("codebook_file", "데이터 db.csv")
	v.SetDefault("client_file", "거래처 데이터.csv")
	v.SetDefault("sales_file", "sales data.csv")
	v.SetDefault("journal_file", "영업일지.csv")
	v.SetDefault("rules_file", "")
	v.SetDefault("context_token_limit", 30000)

	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max", 3)
	v.SetDefault("retry_base_ms", 500)
	v.SetDefault("retry_max_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("session_secret", "")
	v.SetDefault("max_upload_mb", 200)
}
