package ai

// PresetCatalog returns a built-in curated catalog for a known provider.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	var list []ModelInfo
	switch provider {
	case ProviderGemini, "google":
		list = []ModelInfo{
			{Name: "gemini-2.5-flash", ContextTokens: 1048576, InputPerK: 0.0003, OutputPerK: 0.0025, Vision: true},
			{Name: "gemini-2.5-pro", ContextTokens: 1048576, InputPerK: 0.00125, OutputPerK: 0.01, Vision: true},
			{Name: "gemini-2.5-flash-lite", ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004, Vision: true},
			{Name: "gemini-2.0-flash", ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004, Vision: true},
		}
		provider = ProviderGemini
	case ProviderOpenRouter:
		list = []ModelInfo{
			{Name: "google/gemini-2.5-flash", ContextTokens: 1048576, InputPerK: 0.0003, OutputPerK: 0.0025, Vision: true},
			{Name: "google/gemini-2.5-pro", ContextTokens: 1048576, InputPerK: 0.00125, OutputPerK: 0.01, Vision: true},
			{Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006, Vision: true},
			{Name: "openai/gpt-4o", ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01, Vision: true},
			{Name: "anthropic/claude-3.5-sonnet", ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015, Vision: true},
			{Name: "deepseek/deepseek-r1:free", ContextTokens: 128000},
		}
	case ProviderOllama, "local":
		list = []ModelInfo{
			{Name: "llama3.1:8b", ContextTokens: 131072},
			{Name: "qwen2.5:7b", ContextTokens: 32768},
			{Name: "gemma3:12b", ContextTokens: 131072, Vision: true},
			{Name: "llava:7b", ContextTokens: 4096, Vision: true},
			{Name: "nomic-embed-text", ContextTokens: 8192},
		}
		provider = ProviderOllama
	default:
		return nil, false
	}
	out := make(map[string]ModelInfo, len(list))
	for _, mi := range list {
		mi.Provider = provider
		out[mi.Name] = mi
	}
	return out, true
}

// RecommendModel returns a recommended model for a provider and tier.
// An empty provider means Gemini. Tiers: cheap|balanced|high-context|vision.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderGemini
	}
	picks := map[string]map[string]string{
		ProviderGemini: {
			"cheap":        "gemini-2.5-flash-lite",
			"balanced":     "gemini-2.5-flash",
			"high-context": "gemini-2.5-pro",
			"vision":       "gemini-2.5-flash",
		},
		ProviderOpenRouter: {
			"cheap":        "deepseek/deepseek-r1:free",
			"balanced":     "google/gemini-2.5-flash",
			"high-context": "google/gemini-2.5-pro",
			"vision":       "openai/gpt-4o-mini",
		},
		ProviderOllama: {
			"cheap":        "qwen2.5:7b",
			"balanced":     "llama3.1:8b",
			"high-context": "llama3.1:8b",
			"vision":       "gemma3:12b",
		},
	}
	if provider == "google" {
		provider = ProviderGemini
	}
	name, ok := picks[provider][tier]
	return name, ok
}
