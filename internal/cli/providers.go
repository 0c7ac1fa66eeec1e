package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/consensus"
	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/worker"
)

// providerConfigs returns the configured provider set, filling API keys
// from the environment. With no providers configured, the set is detected
// from the environment: every backend with credentials available joins.
func providerConfigs(cfg *model.Config) ([]model.ProviderConfig, error) {
	configs := cfg.Providers
	if len(configs) == 0 {
		configs = detectProviders()
	}

	for i := range configs {
		if configs[i].APIKey != "" {
			continue
		}
		switch configs[i].Kind {
		case "openai":
			configs[i].APIKey = os.Getenv("OPENAI_API_KEY")
			if configs[i].APIKey == "" {
				return nil, fmt.Errorf("provider %s: OPENAI_API_KEY environment variable not set", configs[i].Name)
			}
		case "anthropic", "claude":
			configs[i].APIKey = os.Getenv("ANTHROPIC_API_KEY")
			if configs[i].APIKey == "" {
				return nil, fmt.Errorf("provider %s: ANTHROPIC_API_KEY environment variable not set", configs[i].Name)
			}
		case "ollama":
			if configs[i].BaseURL == "" {
				configs[i].BaseURL = os.Getenv("OLLAMA_BASE_URL")
			}
		}
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("no providers configured: set OPENAI_API_KEY, ANTHROPIC_API_KEY, or OLLAMA_BASE_URL, or run 'veridex config init'")
	}
	return configs, nil
}

// detectProviders builds a provider list from ambient credentials
func detectProviders() []model.ProviderConfig {
	var configs []model.ProviderConfig
	if os.Getenv("OPENAI_API_KEY") != "" {
		configs = append(configs, model.ProviderConfig{
			Name: "openai", Kind: "openai", Model: "gpt-4o-mini", Timeout: 30, MaxTokens: 1000,
		})
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		configs = append(configs, model.ProviderConfig{
			Name: "anthropic", Kind: "anthropic", Model: "claude-3-5-sonnet-20241022", Timeout: 30, MaxTokens: 1000,
		})
	}
	if os.Getenv("OLLAMA_BASE_URL") != "" {
		configs = append(configs, model.ProviderConfig{
			Name: "ollama", Kind: "ollama", Model: "llama3.2", Timeout: 30, MaxTokens: 1000,
		})
	}
	return configs
}

// buildEngine assembles the consensus engine from configuration
func buildEngine(cfg *model.Config, logger *zap.Logger) (*consensus.Engine, error) {
	configs, err := providerConfigs(cfg)
	if err != nil {
		return nil, err
	}

	providers, err := llm.BuildProviders(configs)
	if err != nil {
		return nil, fmt.Errorf("building providers: %w", err)
	}

	opts := []consensus.Option{
		consensus.WithLogger(logger),
		consensus.WithLimiter(worker.NewLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)),
	}
	if cfg.Cache.Enabled {
		store, err := verdictCache(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, consensus.WithCache(store, cfg.Cache.MemoryTTL))
	}

	return consensus.NewEngine(providers, opts...)
}

// verdictCache builds the layered verdict store. The disk layer carries
// verdicts across restarts.
func verdictCache(cfg *model.Config) (cache.Cache, error) {
	dir := cfg.Cache.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("error finding home directory: %w", err)
		}
		dir = home + "/.veridex/cache"
	}
	return cache.NewLayeredCache(cfg.Cache.MemoryTTL, dir, cfg.Cache.DiskTTL), nil
}
