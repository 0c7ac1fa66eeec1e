package model

// VerdictLabel categorizes a provider's answer to a question.
type VerdictLabel string

const (
	VerdictSupported VerdictLabel = "supported" // Evidence supports the question's premise
	VerdictRefuted   VerdictLabel = "refuted"   // Evidence contradicts the premise
	VerdictUnclear   VerdictLabel = "unclear"   // Evidence insufficient or conflicting
)

// Valid reports whether the label is one of the three known values.
func (l VerdictLabel) Valid() bool {
	switch l {
	case VerdictSupported, VerdictRefuted, VerdictUnclear:
		return true
	}
	return false
}

// Field length caps applied before a verdict leaves the provider client.
// Oversized fields are truncated off-ledger; the on-ledger payload cap is
// enforced separately and rejects rather than truncates.
const (
	MaxCitations    = 3
	MaxTitleRunes   = 200
	MaxLocatorRunes = 500
	MaxExcerptRunes = 300
	MaxSummaryRunes = 1000
)

// Citation is a single source reference backing a verdict.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Quote string `json:"quote,omitempty"`
}

// EvidenceVerdict is one provider's structured answer.
type EvidenceVerdict struct {
	Label     VerdictLabel `json:"verdict"`
	Summary   string       `json:"summary"`
	Citations []Citation   `json:"sources"`

	// Confidence is the provider's self-reported confidence in [0,100].
	// Nil when the provider omitted it.
	Confidence *int `json:"confidence,omitempty"`
}

// ConfidenceOrZero returns the reported confidence, or 0 when absent.
func (v *EvidenceVerdict) ConfidenceOrZero() int {
	if v.Confidence == nil {
		return 0
	}
	return *v.Confidence
}

// Clamp truncates oversized fields and drops citations beyond the cap.
func (v *EvidenceVerdict) Clamp() {
	v.Summary = truncateRunes(v.Summary, MaxSummaryRunes)
	if len(v.Citations) > MaxCitations {
		v.Citations = v.Citations[:MaxCitations]
	}
	for i := range v.Citations {
		v.Citations[i].Title = truncateRunes(v.Citations[i].Title, MaxTitleRunes)
		v.Citations[i].URL = truncateRunes(v.Citations[i].URL, MaxLocatorRunes)
		v.Citations[i].Quote = truncateRunes(v.Citations[i].Quote, MaxExcerptRunes)
	}
	if v.Confidence != nil {
		c := *v.Confidence
		if c < 0 {
			c = 0
		}
		if c > 100 {
			c = 100
		}
		v.Confidence = &c
	}
}

// InsufficientEvidence is the graceful fallback for a malformed or
// unparsable provider response: an Unclear verdict with a synthetic citation
// instead of a hard error, so one bad response degrades rather than aborts.
func InsufficientEvidence(reason string) *EvidenceVerdict {
	return &EvidenceVerdict{
		Label:   VerdictUnclear,
		Summary: "Insufficient evidence: " + reason,
		Citations: []Citation{
			{Title: "No verifiable sources", URL: "about:blank", Quote: reason},
		},
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
