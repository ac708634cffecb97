package embed

// ModelInfo describes a known embedding model.
type ModelInfo struct {
	Name       string
	Provider   ProviderType
	Dimensions int
	MaxTokens  int
}

// SupportedModels returns the embedding models known to this tool.
func SupportedModels() []ModelInfo {
	return []ModelInfo{
		{Name: "nomic-embed-text", Provider: ProviderOllama, Dimensions: 768, MaxTokens: 8192},
		{Name: "mxbai-embed-large", Provider: ProviderOllama, Dimensions: 1024, MaxTokens: 512},
		{Name: "all-minilm", Provider: ProviderOllama, Dimensions: 384, MaxTokens: 256},
		{Name: "text-embedding-3-small", Provider: ProviderOpenAI, Dimensions: 1536, MaxTokens: 8191},
		{Name: "text-embedding-3-large", Provider: ProviderOpenAI, Dimensions: 3072, MaxTokens: 8191},
	}
}

// ModelDimensions returns the embedding dimensions for a known model,
// or 0 if the model is unknown.
func ModelDimensions(model string) int {
	for _, m := range SupportedModels() {
		if m.Name == model {
			return m.Dimensions
		}
	}
	return 0
}
