package llm

import (
	"context"
	"strings"
	"unicode"

	"github.com/veridex/veridex/internal/model"
)

// SimilarityThreshold is the minimum token-set similarity between the original
// question and its reconstruction for a verdict to count as verified.
const SimilarityThreshold = 0.7

// Verification is the outcome of one self-verification check.
type Verification struct {
	Verified   bool
	Similarity float64

	// Reconstructed is the provider's restatement of the question, kept for audit
	Reconstructed string
}

// Verifier gates provider verdicts by asking the provider to reconstruct the
// original question from its own answer. A verdict whose reconstruction drifts
// too far from the question is treated as confabulated and excluded.
type Verifier struct {
	threshold float64
}

// NewVerifier creates a verifier with the standard threshold
func NewVerifier() *Verifier {
	return &Verifier{threshold: SimilarityThreshold}
}

// Check runs self-verification for one verdict. Transport or empty-response
// failures mark the verdict unverified; admitting an unverifiable answer into
// consensus is worse than excluding it.
func (v *Verifier) Check(ctx context.Context, p Provider, question string, verdict *model.EvidenceVerdict) Verification {
	reconstructed, err := p.Reconstruct(ctx, verdict)
	if err != nil {
		return Verification{Verified: false}
	}

	reconstructed = strings.TrimSpace(reconstructed)
	if reconstructed == "" {
		return Verification{Verified: false}
	}

	sim := JaccardSimilarity(question, reconstructed)
	return Verification{
		Verified:      sim > v.threshold,
		Similarity:    sim,
		Reconstructed: reconstructed,
	}
}

// JaccardSimilarity computes token-set similarity between two texts.
// Tokens are lowercased and stripped of punctuation; duplicates collapse.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}
