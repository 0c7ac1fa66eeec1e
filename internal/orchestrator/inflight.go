package orchestrator

import (
	"sync"

	"github.com/veridex/veridex/internal/model"
)

// inflightSet is the idempotency ledger: question ids already submitted or
// being worked on. Ids are reserved optimistically before submission and
// released on definitive failure so a later external re-submission of the
// same question can be reattempted. Safe under concurrent dispatch.
type inflightSet struct {
	mu  sync.Mutex
	ids map[model.QuestionID]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{ids: make(map[model.QuestionID]struct{})}
}

// Add reserves an id. Returns false if it is already tracked.
func (s *inflightSet) Add(id model.QuestionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[id]; exists {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove releases an id so the question can be picked up again
func (s *inflightSet) Remove(id model.QuestionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports whether an id is tracked
func (s *inflightSet) Has(id model.QuestionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.ids[id]
	return exists
}
