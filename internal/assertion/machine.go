// Package assertion implements the bonded, time-windowed claim machine that
// lives on the ledger. One assertion per question id moves through
// Unproposed -> Proposed -> {Disputed -> Resolved, Finalized}; Resolved and
// Finalized are terminal. Every transition is atomic: a failed escrow or
// payout leaves no partial state behind.
package assertion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veridex/veridex/internal/model"
)

// Status enumerates the assertion lifecycle states
type Status uint8

const (
	StatusUnproposed Status = iota
	StatusProposed
	StatusDisputed
	StatusResolved
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusUnproposed:
		return "unproposed"
	case StatusProposed:
		return "proposed"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFinalized
}

// Input-rejection errors. Each failure mode carries a distinguishable reason;
// none of them leave any state change behind.
var (
	ErrUnknownQuestion  = errors.New("unknown question id")
	ErrAlreadyProposed  = errors.New("a live assertion already exists for this question")
	ErrAlreadyDisputed  = errors.New("assertion already disputed")
	ErrAlreadyResolved  = errors.New("assertion already resolved")
	ErrAlreadyFinalized = errors.New("assertion already finalized")
	ErrNotDisputed      = errors.New("assertion is not disputed")
	ErrWindowExpired    = errors.New("challenge window has expired")
	ErrWindowOpen       = errors.New("challenge window has not yet closed")
	ErrWrongBond        = errors.New("wrong bond amount attached")
	ErrNotArbitrator    = errors.New("caller is not the arbitrator")
	ErrPayloadTooLarge  = errors.New("answer payload exceeds the on-ledger limit")
	ErrEmptyPayload     = errors.New("answer payload is empty")
)

// Bank moves funds between accounts in the ledger's minor unit.
// Implemented by the ledger substrate; transfers are all-or-nothing.
type Bank interface {
	Transfer(from, to string, amount uint64) error
}

// Assertion is the mutable record attached to a question id
type Assertion struct {
	QuestionID         model.QuestionID
	Payload            []byte
	Proposer           string
	Disputer           string
	ProposerBond       uint64
	DisputerBond       uint64
	ChallengeWindowEnd time.Time
	Status             Status
}

// Params fixes the machine's economic and timing constants
type Params struct {
	// ProposerBond is the exact value every proposal must attach
	ProposerBond uint64

	// DisputerBond is the exact value every dispute must attach.
	// Must strictly exceed ProposerBond to deter spam disputes.
	DisputerBond uint64

	// LivenessPeriod is the challenge window granted on proposal
	LivenessPeriod time.Duration

	// Arbitrator is the only identity allowed to resolve disputes
	Arbitrator string
}

// EscrowAccount holds all bonds while assertions are live
const EscrowAccount = "assertion-escrow"

// Machine holds one assertion per question id and enforces the transition
// rules. Bonds are escrowed by the machine itself, never by callers.
type Machine struct {
	mu         sync.Mutex
	params     Params
	bank       Bank
	now        func() time.Time
	assertions map[model.QuestionID]*Assertion
}

// Option customizes machine construction
type Option func(*Machine)

// WithClock injects a time source (used by tests to cross the window boundary)
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates an assertion machine with the given parameters
func NewMachine(params Params, bank Bank, opts ...Option) (*Machine, error) {
	if params.DisputerBond <= params.ProposerBond {
		return nil, fmt.Errorf("disputer bond (%d) must strictly exceed proposer bond (%d)",
			params.DisputerBond, params.ProposerBond)
	}
	if params.LivenessPeriod <= 0 {
		return nil, fmt.Errorf("liveness period must be positive")
	}
	if params.Arbitrator == "" {
		return nil, fmt.Errorf("arbitrator identity is required")
	}

	m := &Machine{
		params:     params,
		bank:       bank,
		now:        time.Now,
		assertions: make(map[model.QuestionID]*Assertion),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Params returns the machine's constants
func (m *Machine) Params() Params {
	return m.params
}

// Propose records a bonded answer for a question and opens the challenge
// window. The attached bond must equal exactly ProposerBond; it is escrowed
// before any state is written. A question id that already carries a live or
// terminal assertion is rejected; re-asking requires a fresh id.
func (m *Machine) Propose(caller string, qid model.QuestionID, payload []byte, bond uint64) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > model.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	if bond != m.params.ProposerBond {
		return fmt.Errorf("%w: attached %d, required %d", ErrWrongBond, bond, m.params.ProposerBond)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.assertions[qid]; ok {
		switch existing.Status {
		case StatusResolved:
			return ErrAlreadyResolved
		case StatusFinalized:
			return ErrAlreadyFinalized
		default:
			return ErrAlreadyProposed
		}
	}

	// Escrow before recording: a failed transfer must leave no assertion
	if err := m.bank.Transfer(caller, EscrowAccount, bond); err != nil {
		return fmt.Errorf("escrow proposer bond: %w", err)
	}

	m.assertions[qid] = &Assertion{
		QuestionID:         qid,
		Payload:            append([]byte(nil), payload...),
		Proposer:           caller,
		ProposerBond:       bond,
		ChallengeWindowEnd: m.now().Add(m.params.LivenessPeriod),
		Status:             StatusProposed,
	}
	return nil
}

// Dispute challenges a proposed assertion while the window is open.
// The attached bond must equal exactly DisputerBond.
func (m *Machine) Dispute(caller string, qid model.QuestionID, bond uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assertions[qid]
	if !ok {
		return ErrUnknownQuestion
	}
	switch a.Status {
	case StatusDisputed:
		return ErrAlreadyDisputed
	case StatusResolved:
		return ErrAlreadyResolved
	case StatusFinalized:
		return ErrAlreadyFinalized
	}
	if !m.now().Before(a.ChallengeWindowEnd) {
		return ErrWindowExpired
	}
	if bond != m.params.DisputerBond {
		return fmt.Errorf("%w: attached %d, required %d", ErrWrongBond, bond, m.params.DisputerBond)
	}

	if err := m.bank.Transfer(caller, EscrowAccount, bond); err != nil {
		return fmt.Errorf("escrow disputer bond: %w", err)
	}

	a.Disputer = caller
	a.DisputerBond = bond
	a.Status = StatusDisputed
	return nil
}

// ResolveDispute pays the combined bond pot to the winning side and closes
// the assertion. Arbitrator-only. A failed payout reverts the whole
// transition; the assertion stays Disputed.
func (m *Machine) ResolveDispute(caller string, qid model.QuestionID, outcomeFavorsProposer bool) error {
	if caller != m.params.Arbitrator {
		return ErrNotArbitrator
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assertions[qid]
	if !ok {
		return ErrUnknownQuestion
	}
	switch a.Status {
	case StatusResolved:
		return ErrAlreadyResolved
	case StatusFinalized:
		return ErrAlreadyFinalized
	}
	if a.Status != StatusDisputed {
		return ErrNotDisputed
	}

	winner := a.Disputer
	if outcomeFavorsProposer {
		winner = a.Proposer
	}
	pot := a.ProposerBond + a.DisputerBond

	if err := m.bank.Transfer(EscrowAccount, winner, pot); err != nil {
		return fmt.Errorf("pay bond pot: %w", err)
	}

	a.Status = StatusResolved
	return nil
}

// Finalize closes an undisputed assertion once the challenge window has
// passed and returns the proposer's bond. Callable by anyone.
func (m *Machine) Finalize(qid model.QuestionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assertions[qid]
	if !ok {
		return ErrUnknownQuestion
	}
	switch a.Status {
	case StatusFinalized:
		return ErrAlreadyFinalized
	case StatusResolved:
		return ErrAlreadyResolved
	case StatusDisputed:
		return ErrAlreadyDisputed
	}
	if m.now().Before(a.ChallengeWindowEnd) {
		return ErrWindowOpen
	}

	if err := m.bank.Transfer(EscrowAccount, a.Proposer, a.ProposerBond); err != nil {
		return fmt.Errorf("return proposer bond: %w", err)
	}

	a.Status = StatusFinalized
	return nil
}

// Get returns a copy of the assertion for a question id
func (m *Machine) Get(qid model.QuestionID) (Assertion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assertions[qid]
	if !ok {
		return Assertion{}, false
	}
	cp := *a
	cp.Payload = append([]byte(nil), a.Payload...)
	return cp, true
}

// CanDispute reports whether a dispute would currently be accepted
func (m *Machine) CanDispute(qid model.QuestionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assertions[qid]
	return ok && a.Status == StatusProposed && m.now().Before(a.ChallengeWindowEnd)
}
