package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("ANALYST_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("ANALYST_MODEL", "gemini-test")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Provider != "gemini" {
		t.Fatalf("provider = %q", c.Provider)
	}
	if c.APIKey != "g-key" {
		t.Fatalf("api key from GOOGLE_API_KEY not bound: %q", c.APIKey)
	}
	if c.Model != "gemini-test" {
		t.Fatalf("model = %q", c.Model)
	}
	if c.NotebooksDir != filepath.Join(dir, ".analyst", "notebooks") {
		t.Fatalf("notebooks dir = %q", c.NotebooksDir)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("ANALYST_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	os.Unsetenv("GOOGLE_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.APIKey != "from-dotenv" {
		t.Fatalf("api key = %q", c.APIKey)
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "cfg.yaml")
	in := &Global{Provider: "ollama", Model: "llama3", DataDir: "/srv/data", MaxTokens: 10}
	if err := Save(in, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Provider != "ollama" || out.Model != "llama3" || out.MaxTokens != 10 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if got := out.Path("sales.csv"); got != "/srv/data/sales.csv" {
		t.Fatalf("Path = %q", got)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
}

func TestValidateMissingKey(t *testing.T) {
	c := &Global{Provider: "gemini"}
	if err := c.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("want ErrMissingAPIKey, got %v", err)
	}
	c = &Global{Provider: "openrouter", OpenRouterAPIKey: "k"}
	if err := c.Validate(); err != nil {
		t.Fatalf("openrouter with key: %v", err)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
