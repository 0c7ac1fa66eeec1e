// Package chain abstracts the distributed ledger the assertion machine runs
// on. The orchestrator consumes three primitives: transaction submission,
// question-event subscription/range-query, and read-only assertion lookups.
package chain

import (
	"context"
	"errors"

	"github.com/veridex/veridex/internal/assertion"
	"github.com/veridex/veridex/internal/model"
)

var (
	// ErrInsufficientFunds means the submitting account cannot cover the bond
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnconfirmed means a submission was sent but no receipt arrived in
	// time. The transaction may or may not have landed; the assertion
	// machine's own idempotency checks make a duplicate retry cheap.
	ErrUnconfirmed = errors.New("submission unconfirmed")
)

// Receipt confirms an accepted transaction
type Receipt struct {
	TxHash  string
	Block   uint64
	GasUsed uint64
}

// Ledger is the orchestrator's view of the chain
type Ledger interface {
	// RequestQuestion records a new question and returns it with its id
	RequestQuestion(ctx context.Context, requester, text string) (model.Question, error)

	// Propose submits a bonded answer proposal for a question
	Propose(ctx context.Context, caller string, qid model.QuestionID, payload []byte, bond uint64) (*Receipt, error)

	// GetAssertion reads the current assertion for a question id
	GetAssertion(ctx context.Context, qid model.QuestionID) (assertion.Assertion, bool, error)

	// QueryQuestions returns questions recorded in [fromBlock, toBlock]
	QueryQuestions(ctx context.Context, fromBlock, toBlock uint64) ([]model.Question, error)

	// SubscribeQuestions streams newly recorded questions. The returned
	// cancel func releases the subscription. Delivery is best-effort; a
	// periodic QueryQuestions re-scan is the backstop.
	SubscribeQuestions(ctx context.Context) (<-chan model.Question, func())

	// CurrentBlock returns the latest block number
	CurrentBlock(ctx context.Context) (uint64, error)
}
