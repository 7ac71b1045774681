package ai

import "testing"

func TestPresetCatalogGemini(t *testing.T) {
	m, ok := PresetCatalog("gemini")
	if !ok || len(m) == 0 {
		t.Fatalf("expected gemini preset to be available")
	}
	mi, exists := m["gemini-2.5-flash"]
	if !exists {
		t.Fatalf("expected gemini-2.5-flash in gemini preset")
	}
	if mi.Provider != ProviderGemini || !mi.Vision {
		t.Fatalf("unexpected metadata: %+v", mi)
	}
	if _, ok := PresetCatalog("anthropic"); ok {
		t.Fatalf("expected no preset for an unregistered provider")
	}
}

func TestRecommendModel(t *testing.T) {
	if name, ok := RecommendModel("", "balanced"); !ok || name != "gemini-2.5-flash" {
		t.Fatalf("unexpected recommendation for default/balanced: %s", name)
	}
	if name, ok := RecommendModel("openrouter", "cheap"); !ok || name != "deepseek/deepseek-r1:free" {
		t.Fatalf("unexpected recommendation for openrouter/cheap: %s", name)
	}
	if name, ok := RecommendModel("ollama", "vision"); !ok || name != "gemma3:12b" {
		t.Fatalf("unexpected recommendation for ollama/vision: %s", name)
	}
	if _, ok := RecommendModel("", "unknown"); ok {
		t.Fatalf("expected unknown tier to be false")
	}
}

func TestCatalogAndBudget(t *testing.T) {
	if _, ok := LookupModel("gemini-2.5-pro"); !ok {
		t.Fatalf("default catalog should include gemini presets")
	}
	if got := ContextBudget("llava:7b", 30000); got != 4096 {
		t.Fatalf("budget should clamp to the model window, got %d", got)
	}
	if got := ContextBudget("unknown-model", 30000); got != 30000 {
		t.Fatalf("unknown model keeps the configured limit, got %d", got)
	}
	cost, ok := EstimateCostUSD("gemini-2.5-flash", 1000, 1000)
	if !ok || cost <= 0 {
		t.Fatalf("expected a positive cost estimate, got %v", cost)
	}
	MergeCatalog(map[string]ModelInfo{"custom:1b": {Name: "custom:1b", ContextTokens: 2048}})
	if _, ok := Catalog()["custom:1b"]; !ok {
		t.Fatalf("merged model missing from catalog")
	}
}
