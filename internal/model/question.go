package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxQuestionBytes caps the length of a question's canonical text.
// Over-limit questions are rejected at submission, never truncated.
const MaxQuestionBytes = 1024

// QuestionID is the fixed-width hash that keys every assertion.
type QuestionID [32]byte

// ComputeQuestionID derives the deterministic id for a question.
// The salt keeps repeated submissions of identical text from colliding.
func ComputeQuestionID(text, salt string) QuestionID {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0x00})
	h.Write([]byte(salt))

	var id QuestionID
	copy(id[:], h.Sum(nil))
	return id
}

// ParseQuestionID decodes a hex-encoded question id.
func ParseQuestionID(s string) (QuestionID, error) {
	var id QuestionID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode question id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("question id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id QuestionID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns an abbreviated id for log lines.
func (id QuestionID) Short() string {
	return hex.EncodeToString(id[:4])
}

// Question is an immutable natural-language question recorded on the ledger.
type Question struct {
	ID          QuestionID `json:"id"`
	Text        string     `json:"text"`
	Requester   string     `json:"requester"`
	Salt        string     `json:"salt"`
	Block       uint64     `json:"block"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// ValidateQuestionText checks the length bound before a question reaches the ledger.
func ValidateQuestionText(text string) error {
	if text == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(text) > MaxQuestionBytes {
		return fmt.Errorf("question text is %d bytes, limit is %d", len(text), MaxQuestionBytes)
	}
	return nil
}
