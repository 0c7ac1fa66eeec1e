package llm

import (
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// NewProvider creates a provider from one entry of the providers configuration
func NewProvider(kind string, config Config) (Provider, error) {
	switch strings.ToLower(kind) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown provider kind: %s (supported: openai, anthropic, ollama)", kind)
	}
}

// BuildProviders constructs all configured providers, preserving configuration
// order. That order doubles as provider priority for consensus tie-breaks.
func BuildProviders(configs []model.ProviderConfig) ([]Provider, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no evidence providers configured")
	}

	providers := make([]Provider, 0, len(configs))
	for _, pc := range configs {
		p, err := NewProvider(pc.Kind, ConfigFromModel(pc))
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// ConfigFromModel converts model.ProviderConfig to llm.Config
func ConfigFromModel(pc model.ProviderConfig) Config {
	cfg := DefaultConfig()
	cfg.Name = pc.Name
	cfg.Model = pc.Model
	cfg.APIKey = pc.APIKey
	cfg.BaseURL = pc.BaseURL
	if pc.Timeout > 0 {
		cfg.Timeout = pc.Timeout
	}
	if pc.MaxTokens > 0 {
		cfg.MaxTokens = pc.MaxTokens
	}
	return cfg
}
