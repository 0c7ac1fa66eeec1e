package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridex/veridex/internal/assertion"
	"github.com/veridex/veridex/internal/model"
)

// Gas accounting for the simulated ledger: a flat base per transaction plus a
// per-byte charge for proposal payloads.
const (
	gasBase    = 21_000
	gasPerByte = 16
)

const subscriberBuffer = 32

// SimLedger is an in-process ledger: account balances in minor units, an
// append-only question log with monotonic block numbers, and the assertion
// machine registered as its single contract. It acts as the machine's Bank,
// so bonds are escrowed and paid inside the same substrate.
type SimLedger struct {
	mu          sync.Mutex
	accounts    map[string]uint64
	questions   []model.Question
	byID        map[model.QuestionID]struct{}
	machine     *assertion.Machine
	block       uint64
	txSeq       uint64
	subscribers map[int]chan model.Question
	nextSubID   int
	logger      *zap.Logger
}

// SimOption customizes the simulated ledger
type SimOption func(*simOptions)

type simOptions struct {
	clock  func() time.Time
	logger *zap.Logger
}

// WithClock injects the time source used for challenge windows
func WithClock(now func() time.Time) SimOption {
	return func(o *simOptions) { o.clock = now }
}

// WithLogger attaches a structured logger
func WithLogger(logger *zap.Logger) SimOption {
	return func(o *simOptions) { o.logger = logger }
}

// NewSimLedger creates a simulated ledger and registers the assertion machine
func NewSimLedger(cfg model.ChainConfig, opts ...SimOption) (*SimLedger, error) {
	options := simOptions{
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	l := &SimLedger{
		accounts:    make(map[string]uint64),
		byID:        make(map[model.QuestionID]struct{}),
		subscribers: make(map[int]chan model.Question),
		logger:      options.logger,
	}

	machine, err := assertion.NewMachine(assertion.Params{
		ProposerBond:   cfg.ProposerBond,
		DisputerBond:   cfg.DisputerBond,
		LivenessPeriod: cfg.LivenessPeriod,
		Arbitrator:     cfg.Arbitrator,
	}, l, assertion.WithClock(options.clock))
	if err != nil {
		return nil, fmt.Errorf("create assertion machine: %w", err)
	}
	l.machine = machine
	return l, nil
}

// Fund credits an account. Stand-in for the real chain's faucet/genesis.
func (l *SimLedger) Fund(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account] += amount
}

// Balance returns an account's balance in minor units
func (l *SimLedger) Balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account]
}

// Transfer implements assertion.Bank. All-or-nothing.
func (l *SimLedger) Transfer(from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.accounts[from] < amount {
		return fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientFunds, from, l.accounts[from], amount)
	}
	l.accounts[from] -= amount
	l.accounts[to] += amount
	return nil
}

// RequestQuestion records an immutable question and returns it with its
// deterministic id: hash of the canonical text plus a per-submission salt,
// so identical text submitted twice yields two distinct ids.
func (l *SimLedger) RequestQuestion(ctx context.Context, requester, text string) (model.Question, error) {
	if err := ctx.Err(); err != nil {
		return model.Question{}, err
	}
	if err := model.ValidateQuestionText(text); err != nil {
		return model.Question{}, err
	}

	salt := uuid.NewString()
	id := model.ComputeQuestionID(text, salt)

	l.mu.Lock()
	if _, dup := l.byID[id]; dup {
		l.mu.Unlock()
		return model.Question{}, fmt.Errorf("question id collision for %s", id.Short())
	}

	l.block++
	q := model.Question{
		ID:          id,
		Text:        text,
		Requester:   requester,
		Salt:        salt,
		Block:       l.block,
		SubmittedAt: time.Now().UTC(),
	}
	l.questions = append(l.questions, q)
	l.byID[id] = struct{}{}

	// Best-effort push under the lock, so a concurrent cancel cannot close
	// a channel mid-send. A full subscriber is skipped and picked up by the
	// poller's range re-scan.
	for _, ch := range l.subscribers {
		select {
		case ch <- q:
		default:
			l.logger.Warn("subscriber queue full, dropping question event",
				zap.String("question", id.Short()))
		}
	}
	l.mu.Unlock()

	l.logger.Info("question recorded",
		zap.String("question", id.Short()),
		zap.String("requester", requester),
		zap.Uint64("block", q.Block))
	return q, nil
}

// Propose submits a bonded proposal through the assertion machine
func (l *SimLedger) Propose(ctx context.Context, caller string, qid model.QuestionID, payload []byte, bond uint64) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.machine.Propose(caller, qid, payload, bond); err != nil {
		return nil, err
	}
	return l.seal("propose", uint64(len(payload))), nil
}

// Dispute submits a bonded dispute through the assertion machine
func (l *SimLedger) Dispute(ctx context.Context, caller string, qid model.QuestionID, bond uint64) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.machine.Dispute(caller, qid, bond); err != nil {
		return nil, err
	}
	return l.seal("dispute", 0), nil
}

// ResolveDispute routes an arbitrator ruling through the assertion machine
func (l *SimLedger) ResolveDispute(ctx context.Context, caller string, qid model.QuestionID, outcomeFavorsProposer bool) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.machine.ResolveDispute(caller, qid, outcomeFavorsProposer); err != nil {
		return nil, err
	}
	return l.seal("resolve", 0), nil
}

// Finalize closes an undisputed assertion after its window
func (l *SimLedger) Finalize(ctx context.Context, qid model.QuestionID) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.machine.Finalize(qid); err != nil {
		return nil, err
	}
	return l.seal("finalize", 0), nil
}

// GetAssertion reads the current assertion state for a question id
func (l *SimLedger) GetAssertion(ctx context.Context, qid model.QuestionID) (assertion.Assertion, bool, error) {
	if err := ctx.Err(); err != nil {
		return assertion.Assertion{}, false, err
	}
	a, ok := l.machine.Get(qid)
	return a, ok, nil
}

// CanDispute reports whether a dispute would currently be accepted
func (l *SimLedger) CanDispute(ctx context.Context, qid model.QuestionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.machine.CanDispute(qid), nil
}

// QueryQuestions returns questions recorded in [fromBlock, toBlock]
func (l *SimLedger) QueryQuestions(ctx context.Context, fromBlock, toBlock uint64) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Question
	for _, q := range l.questions {
		if q.Block >= fromBlock && q.Block <= toBlock {
			out = append(out, q)
		}
	}
	return out, nil
}

// SubscribeQuestions registers a best-effort push subscription
func (l *SimLedger) SubscribeQuestions(ctx context.Context) (<-chan model.Question, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	ch := make(chan model.Question, subscriberBuffer)
	l.subscribers[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// CurrentBlock returns the latest block number
func (l *SimLedger) CurrentBlock(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

// seal mints a receipt for an accepted transaction
func (l *SimLedger) seal(op string, payloadBytes uint64) *Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.block++
	l.txSeq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", op, l.block, l.txSeq)))
	return &Receipt{
		TxHash:  "0x" + hex.EncodeToString(sum[:]),
		Block:   l.block,
		GasUsed: gasBase + gasPerByte*payloadBytes,
	}
}
