package llm

import (
	"context"
	"fmt"

	"github.com/veridex/veridex/internal/model"
)

// Provider defines the interface for evidence providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Research answers a factual question with a structured evidence verdict
	Research(ctx context.Context, question string) (*model.EvidenceVerdict, error)

	// Reconstruct asks the provider to restate the original question using
	// nothing but its own verdict. Used for self-verification.
	Reconstruct(ctx context.Context, verdict *model.EvidenceVerdict) (string, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds one provider's configuration
type Config struct {
	// Name identifies this provider instance in logs and outcomes
	Name string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:   30,
		MaxTokens: 1000,
	}
}

const researchSystemPrompt = "You are a careful research assistant. You answer factual questions " +
	"strictly from verifiable evidence, respond only with JSON, and never speculate."

// BuildResearchPrompt constructs the evidence-request prompt for a question
func BuildResearchPrompt(question string) string {
	return fmt.Sprintf(`Research the following factual question and respond with a JSON object only.

Question: %s

Respond with exactly this JSON structure:
{
  "verdict": "supported" | "refuted" | "unclear",
  "summary": "2-3 sentence summary of the evidence",
  "confidence": 0-100,
  "sources": [
    {"title": "source title", "url": "source locator", "quote": "short supporting excerpt"}
  ]
}

RULES:
1. "supported" only if evidence clearly confirms the premise; "refuted" only if it clearly contradicts it.
2. If evidence is missing, dated, or conflicting, answer "unclear" - never guess.
3. Cite at most %d sources.
4. Output raw JSON. No prose before or after.`, question, model.MaxCitations)
}

// BuildReconstructPrompt constructs the self-verification prompt: the provider
// must recover the original question from its own answer alone.
func BuildReconstructPrompt(verdict *model.EvidenceVerdict) string {
	sources := ""
	for _, c := range verdict.Citations {
		sources += fmt.Sprintf("\n- %s (%s)", c.Title, c.URL)
	}
	if sources == "" {
		sources = "\n(none)"
	}

	return fmt.Sprintf(`Below is an answer you previously gave. Reconstruct, in one sentence,
the exact question it answers. Use only the answer itself - do not add new facts.

Verdict: %s
Summary: %s
Sources:%s

Respond with the reconstructed question text only.`, verdict.Label, verdict.Summary, sources)
}
