package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/veridex/veridex/internal/model"
)

func newOpenAIMock(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Index:        0,
					Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 100},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_Research_Success(t *testing.T) {
	server := newOpenAIMock(t, `{"verdict": "supported", "summary": "Confirmed by two outlets.",
		"confidence": 90, "sources": [{"title": "AP", "url": "https://example.com/ap", "quote": "confirmed"}]}`)
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	v, err := provider.Research(context.Background(), "Did the thing happen?")
	if err != nil {
		t.Fatalf("Research failed: %v", err)
	}
	if v.Label != model.VerdictSupported {
		t.Errorf("Expected supported, got %s", v.Label)
	}
	if v.ConfidenceOrZero() != 90 {
		t.Errorf("Expected confidence 90, got %d", v.ConfidenceOrZero())
	}
}

func TestOpenAIProvider_Research_MalformedDegrades(t *testing.T) {
	server := newOpenAIMock(t, "The answer is probably yes, I believe.")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	v, err := provider.Research(context.Background(), "Did the thing happen?")
	if err != nil {
		t.Fatalf("Malformed content must degrade, not error: %v", err)
	}
	if v.Label != model.VerdictUnclear {
		t.Errorf("Expected unclear fallback, got %s", v.Label)
	}
}

func TestOpenAIProvider_Reconstruct(t *testing.T) {
	server := newOpenAIMock(t, "Did the thing happen by March 2026?")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	got, err := provider.Reconstruct(context.Background(), &model.EvidenceVerdict{
		Label:   model.VerdictSupported,
		Summary: "It happened in February 2026.",
	})
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if got != "Did the thing happen by March 2026?" {
		t.Errorf("Unexpected reconstruction: %s", got)
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}
