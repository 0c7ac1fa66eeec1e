package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// wireVerdict is the raw JSON shape providers are prompted to produce.
type wireVerdict struct {
	Verdict    string `json:"verdict"`
	Summary    string `json:"summary"`
	Confidence *int   `json:"confidence,omitempty"`
	Sources    []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Quote string `json:"quote"`
	} `json:"sources"`
}

// ParseVerdict decodes a provider's raw text response into a validated
// EvidenceVerdict. Accepts content optionally wrapped in a fenced code block.
// Returns a typed error when the response is missing required fields or
// carries an unknown verdict label.
func ParseVerdict(raw string) (*model.EvidenceVerdict, error) {
	body := stripFences(raw)

	var wire wireVerdict
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, fmt.Errorf("decode verdict JSON: %w", err)
	}

	label := model.VerdictLabel(strings.ToLower(strings.TrimSpace(wire.Verdict)))
	if !label.Valid() {
		return nil, fmt.Errorf("unknown verdict label %q", wire.Verdict)
	}
	if strings.TrimSpace(wire.Summary) == "" {
		return nil, fmt.Errorf("verdict summary is empty")
	}
	if wire.Sources == nil {
		return nil, fmt.Errorf("verdict sources are missing")
	}

	verdict := &model.EvidenceVerdict{
		Label:      label,
		Summary:    strings.TrimSpace(wire.Summary),
		Confidence: wire.Confidence,
	}
	for _, s := range wire.Sources {
		verdict.Citations = append(verdict.Citations, model.Citation{
			Title: strings.TrimSpace(s.Title),
			URL:   strings.TrimSpace(s.URL),
			Quote: strings.TrimSpace(s.Quote),
		})
	}

	verdict.Clamp()
	return verdict, nil
}

// VerdictOrFallback parses a raw response, degrading a malformed one to an
// Unclear verdict with a synthetic citation instead of propagating the error.
func VerdictOrFallback(raw string) *model.EvidenceVerdict {
	verdict, err := ParseVerdict(raw)
	if err != nil {
		return model.InsufficientEvidence(err.Error())
	}
	return verdict
}

// stripFences unwraps ```json ... ``` (or plain ```) fencing around a response.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop the language tag line (e.g. "json")
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			s = s[i+1:]
		}
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
