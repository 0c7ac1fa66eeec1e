// Package cache memoizes per-provider evidence verdicts so a retried
// orchestration run never re-spends provider tokens on a question it has
// already researched.
package cache

import (
	"encoding/json"
	"time"

	"github.com/veridex/veridex/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// VerdictKey generates the cache key for one provider's answer to a question
func VerdictKey(provider string, qid model.QuestionID) string {
	return "veridex:v1:" + provider + ":" + qid.String()
}

// GetVerdict retrieves a memoized verdict, if present and still decodable
func GetVerdict(c Cache, provider string, qid model.QuestionID) (*model.EvidenceVerdict, bool) {
	if c == nil {
		return nil, false
	}
	data, found := c.Get(VerdictKey(provider, qid))
	if !found {
		return nil, false
	}

	var v model.EvidenceVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		// Stale or corrupt entry; drop it
		_ = c.Delete(VerdictKey(provider, qid))
		return nil, false
	}
	return &v, true
}

// PutVerdict memoizes a provider's verdict for a question
func PutVerdict(c Cache, provider string, qid model.QuestionID, v *model.EvidenceVerdict, ttl time.Duration) {
	if c == nil || v == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(VerdictKey(provider, qid), data, ttl)
}
