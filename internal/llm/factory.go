package llm

import (
	"fmt"

	"github.com/scrypster/secretary/internal/config"
)

// NewTextGenerator creates the backend named by cfg.Provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewGatewayFromConfig builds the configured backend and wraps it in a Gateway.
func NewGatewayFromConfig(cfg config.LLMConfig, opts ...GatewayOption) (*Gateway, error) {
	gen, err := NewTextGenerator(cfg)
	if err != nil {
		return nil, err
	}
	backend := cfg.Provider
	if backend == "" {
		backend = "ollama"
	}

	base := []GatewayOption{
		WithBackendName(backend),
		WithSampling(cfg.Temperature, cfg.MaxTokens),
		WithRateLimit(cfg.RequestsPerMinute),
	}
	return NewGateway(gen, append(base, opts...)...), nil
}
