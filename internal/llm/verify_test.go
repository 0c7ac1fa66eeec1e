package llm

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/veridex/veridex/internal/model"
)

// stubProvider returns canned responses for verifier tests
type stubProvider struct {
	name           string
	reconstruction string
	reconstructErr error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Research(ctx context.Context, question string) (*model.EvidenceVerdict, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubProvider) Reconstruct(ctx context.Context, verdict *model.EvidenceVerdict) (string, error) {
	return s.reconstruction, s.reconstructErr
}

func (s *stubProvider) IsAvailable(ctx context.Context) bool { return true }

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "did the eiffel tower open in 1889", "did the eiffel tower open in 1889", 1},
		{"case and punctuation ignored", "Did the Eiffel Tower open in 1889?", "did the eiffel tower open in 1889", 1},
		{"disjoint", "alpha beta gamma", "delta epsilon zeta", 0},
		{"both empty", "", "", 1},
		{"one empty", "alpha", "", 0},
		{"half overlap", "a b c d", "a b e f", 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaccardSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("JaccardSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVerifier_Check_Verified(t *testing.T) {
	question := "Will the Olympics be held in Los Angeles in 2028?"
	p := &stubProvider{
		name:           "stub",
		reconstruction: "Will the Olympics be held in Los Angeles in 2028",
	}

	v := NewVerifier().Check(context.Background(), p, question, &model.EvidenceVerdict{Label: model.VerdictSupported})
	if !v.Verified {
		t.Errorf("Expected verified, similarity %v", v.Similarity)
	}
	if v.Reconstructed == "" {
		t.Error("Expected reconstruction to be kept for audit")
	}
}

func TestVerifier_Check_Drifted(t *testing.T) {
	question := "Will the Olympics be held in Los Angeles in 2028?"
	p := &stubProvider{
		name:           "stub",
		reconstruction: "What is the population of France?",
	}

	v := NewVerifier().Check(context.Background(), p, question, &model.EvidenceVerdict{Label: model.VerdictSupported})
	if v.Verified {
		t.Errorf("Expected unverified for drifted reconstruction, similarity %v", v.Similarity)
	}
}

func TestVerifier_Check_FailsClosed(t *testing.T) {
	p := &stubProvider{
		name:           "stub",
		reconstructErr: fmt.Errorf("rate limited"),
	}

	v := NewVerifier().Check(context.Background(), p, "any question", &model.EvidenceVerdict{Label: model.VerdictSupported})
	if v.Verified {
		t.Error("Transport failure during verification must fail closed")
	}
}

func TestVerifier_Check_EmptyReconstruction(t *testing.T) {
	p := &stubProvider{name: "stub", reconstruction: "   "}

	v := NewVerifier().Check(context.Background(), p, "any question", &model.EvidenceVerdict{Label: model.VerdictSupported})
	if v.Verified {
		t.Error("Empty reconstruction must fail closed")
	}
}
