package model

import (
	"encoding/json"
	"fmt"
)

// MaxPayloadBytes caps the encoded answer payload accepted on-ledger.
const MaxPayloadBytes = 8192

// ProviderOutcome records what happened with a single provider during one
// consensus round. Kept for audit and logging; never persisted on-ledger.
type ProviderOutcome struct {
	Provider   string           `json:"provider"`
	Verdict    *EvidenceVerdict `json:"verdict,omitempty"`
	Verified   bool             `json:"verified"`
	Similarity float64          `json:"similarity,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ConsensusResult is the derived outcome of one consensus round.
// It lives only for the orchestration run that produced it.
type ConsensusResult struct {
	IsClear        bool              `json:"is_clear"`
	Answer         *EvidenceVerdict  `json:"answer,omitempty"`
	ConsensusCount int               `json:"consensus_count"`
	TotalModels    int               `json:"total_models"`
	Outcomes       []ProviderOutcome `json:"outcomes"`
}

// EncodeAnswerPayload serializes the winning verdict into the opaque bundle
// submitted with a proposal. Rejects payloads over the on-ledger cap.
func EncodeAnswerPayload(v *EvidenceVerdict) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("no answer to encode")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal answer payload: %w", err)
	}
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("answer payload is %d bytes, limit is %d", len(data), MaxPayloadBytes)
	}
	return data, nil
}

// DecodeAnswerPayload recovers a verdict from an on-ledger payload.
func DecodeAnswerPayload(data []byte) (*EvidenceVerdict, error) {
	var v EvidenceVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal answer payload: %w", err)
	}
	return &v, nil
}
