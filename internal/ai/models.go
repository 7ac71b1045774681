package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ModelInfo is catalog metadata used for context budgeting and cost hints.
// Prices are illustrative.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
	Vision        bool    // accepts image attachments
}

var (
	catalogMu sync.RWMutex
	models    = defaultCatalog()
)

func defaultCatalog() map[string]ModelInfo {
	m := map[string]ModelInfo{}
	for _, p := range []string{ProviderGemini, ProviderOpenRouter, ProviderOllama} {
		preset, _ := PresetCatalog(p)
		for k, v := range preset {
			m[k] = v
		}
	}
	return m
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for the given token counts.
// Unknown models return ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// ContextBudget returns the token budget for a prompt: the configured limit,
// clamped to the model's window when the model is known.
func ContextBudget(model string, limit int) int {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= 0 {
		return limit
	}
	if limit <= 0 || limit > mi.ContextTokens {
		return mi.ContextTokens
	}
	return limit
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "gemini-2.5-flash": {"Name":"gemini-2.5-flash","ContextTokens":1048576,"InputPerK":0.0003,"OutputPerK":0.0025} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
