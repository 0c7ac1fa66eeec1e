package model

import "time"

// Config is the complete Veridex configuration.
// Hierarchy (highest to lowest priority): CLI flags, VERIDEX_* environment
// variables, config file (~/.veridex/config.yaml), defaults.
type Config struct {
	Providers    []ProviderConfig   `yaml:"providers" json:"providers" mapstructure:"providers"`
	Chain        ChainConfig        `yaml:"chain" json:"chain" mapstructure:"chain"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator" mapstructure:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache" json:"cache" mapstructure:"cache"`
	Rate         RateConfig         `yaml:"rate" json:"rate" mapstructure:"rate"`
	Output       OutputConfig       `yaml:"output" json:"output" mapstructure:"output"`
}

// ProviderConfig describes one evidence provider backend.
type ProviderConfig struct {
	// Name identifies the provider in logs and audit trails
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Kind selects the backend: "openai", "anthropic", "ollama"
	Kind string `yaml:"kind" json:"kind" mapstructure:"kind"`

	// Model name (provider-specific)
	Model string `yaml:"model" json:"model" mapstructure:"model"`

	// APIKey for OpenAI/Anthropic (prefer env vars)
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout per provider call, in seconds
	Timeout int `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// MaxTokens limits response length
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" mapstructure:"max_tokens"`
}

// ChainConfig holds the on-ledger parameters.
type ChainConfig struct {
	// ProposerBond escrowed with every proposal, in minor units
	ProposerBond uint64 `yaml:"proposer_bond" json:"proposer_bond" mapstructure:"proposer_bond"`

	// DisputerBond escrowed with every dispute; must strictly exceed ProposerBond
	DisputerBond uint64 `yaml:"disputer_bond" json:"disputer_bond" mapstructure:"disputer_bond"`

	// LivenessPeriod is the challenge window granted to disputers
	LivenessPeriod time.Duration `yaml:"liveness_period" json:"liveness_period" mapstructure:"liveness_period"`

	// Arbitrator is the identity allowed to resolve disputes
	Arbitrator string `yaml:"arbitrator" json:"arbitrator" mapstructure:"arbitrator"`

	// Signer is the orchestrator's submitting identity
	Signer string `yaml:"signer" json:"signer" mapstructure:"signer"`
}

// OrchestratorConfig tunes the watch/dispatch/retry loop.
type OrchestratorConfig struct {
	// PollInterval between ledger re-scans (backstop for a dropped subscription)
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" mapstructure:"poll_interval"`

	// PollBlockRange is how many recent blocks each re-scan covers
	PollBlockRange uint64 `yaml:"poll_block_range" json:"poll_block_range" mapstructure:"poll_block_range"`

	// QueueSize bounds the dispatch channel fed by both producers
	QueueSize int `yaml:"queue_size" json:"queue_size" mapstructure:"queue_size"`

	// MaxAttempts bounds submission retries
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`

	// RetryBaseDelay is the first backoff delay; doubles per attempt
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" mapstructure:"retry_base_delay"`

	// RetryMaxDelay caps the backoff growth
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" mapstructure:"retry_max_delay"`

	// SubmitTimeout bounds waiting for a submission receipt
	SubmitTimeout time.Duration `yaml:"submit_timeout" json:"submit_timeout" mapstructure:"submit_timeout"`
}

// CacheConfig controls verdict memoization.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" json:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateConfig is the per-provider request rate limit.
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst" mapstructure:"burst"`
}

// OutputConfig controls CLI output behavior.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" json:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: []ProviderConfig{},
		Chain: ChainConfig{
			ProposerBond:   1_000_000,
			DisputerBond:   2_000_000,
			LivenessPeriod: 2 * time.Hour,
			Arbitrator:     "arbitrator",
			Signer:         "orchestrator",
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:   30 * time.Second,
			PollBlockRange: 256,
			QueueSize:      64,
			MaxAttempts:    5,
			RetryBaseDelay: 2 * time.Second,
			RetryMaxDelay:  60 * time.Second,
			SubmitTimeout:  90 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Rate: RateConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
	}
}
