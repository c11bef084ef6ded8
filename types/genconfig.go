package types

// GenerationConfig carries the provider-agnostic sampling parameters for one
// model call. TopK is forwarded only to providers that support it.
type GenerationConfig struct {
	ModelName       string  `json:"model_name,omitempty"`
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// DefaultGenerationConfig matches the service-wide defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     1.0,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

// OnboardingGenerationConfig is the tighter profile the dialogue steps use.
func OnboardingGenerationConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = 0.7
	cfg.MaxOutputTokens = 4096
	return cfg
}
