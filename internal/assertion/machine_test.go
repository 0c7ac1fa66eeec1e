package assertion

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/veridex/veridex/internal/model"
)

// testBank is an in-memory Bank with programmable failures
type testBank struct {
	mu       sync.Mutex
	balances map[string]uint64
	failNext error
}

func newTestBank(seed map[string]uint64) *testBank {
	b := &testBank{balances: make(map[string]uint64)}
	for acct, amt := range seed {
		b.balances[acct] = amt
	}
	return b
}

func (b *testBank) Transfer(from, to string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	if b.balances[from] < amount {
		return fmt.Errorf("insufficient funds in %s: have %d, need %d", from, b.balances[from], amount)
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

func (b *testBank) balance(acct string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[acct]
}

const (
	proposerBond = uint64(1_000_000)
	disputerBond = uint64(2_000_000)
)

type fixture struct {
	machine *Machine
	bank    *testBank
	clock   *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bank := newTestBank(map[string]uint64{
		"proposer": 10_000_000,
		"disputer": 10_000_000,
	})
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	machine, err := NewMachine(Params{
		ProposerBond:   proposerBond,
		DisputerBond:   disputerBond,
		LivenessPeriod: time.Hour,
		Arbitrator:     "arbitrator",
	}, bank, WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}

	return &fixture{machine: machine, bank: bank, clock: clock}
}

func qid(n byte) model.QuestionID {
	var id model.QuestionID
	id[0] = n
	return id
}

func TestNewMachine_RejectsWeakDisputerBond(t *testing.T) {
	_, err := NewMachine(Params{
		ProposerBond:   100,
		DisputerBond:   100,
		LivenessPeriod: time.Hour,
		Arbitrator:     "arbitrator",
	}, newTestBank(nil))
	if err == nil {
		t.Error("Expected error when disputer bond does not exceed proposer bond")
	}
}

func TestPropose_EscrowsExactBond(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte(`{"verdict":"supported"}`), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	if got := f.bank.balance(EscrowAccount); got != proposerBond {
		t.Errorf("Escrow holds %d, want %d", got, proposerBond)
	}
	if got := f.bank.balance("proposer"); got != 10_000_000-proposerBond {
		t.Errorf("Proposer balance %d, want %d", got, 10_000_000-proposerBond)
	}

	a, ok := f.machine.Get(qid(1))
	if !ok || a.Status != StatusProposed {
		t.Fatalf("Assertion not proposed: %+v", a)
	}
}

func TestPropose_WrongBondRejected(t *testing.T) {
	f := newFixture(t)

	err := f.machine.Propose("proposer", qid(1), []byte("x"), proposerBond+1)
	if !errors.Is(err, ErrWrongBond) {
		t.Errorf("Expected ErrWrongBond, got %v", err)
	}
	if f.bank.balance(EscrowAccount) != 0 {
		t.Error("Rejected proposal must not escrow funds")
	}
	if _, ok := f.machine.Get(qid(1)); ok {
		t.Error("Rejected proposal must not create an assertion")
	}
}

func TestPropose_AtMostOneLiveAssertion(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.Propose("proposer", qid(1), []byte("b"), proposerBond); !errors.Is(err, ErrAlreadyProposed) {
		t.Errorf("Expected ErrAlreadyProposed, got %v", err)
	}

	// Terminal assertions also block re-proposal under the same id
	f.clock.advance(2 * time.Hour)
	if err := f.machine.Finalize(qid(1)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := f.machine.Propose("proposer", qid(1), []byte("c"), proposerBond); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestPropose_PayloadBounds(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), nil, proposerBond); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload, got %v", err)
	}

	big := make([]byte, model.MaxPayloadBytes+1)
	if err := f.machine.Propose("proposer", qid(2), big, proposerBond); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDispute_Success(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if !f.machine.CanDispute(qid(1)) {
		t.Error("CanDispute should be true inside the window")
	}
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}

	if got := f.bank.balance(EscrowAccount); got != proposerBond+disputerBond {
		t.Errorf("Escrow holds %d, want %d", got, proposerBond+disputerBond)
	}

	a, _ := f.machine.Get(qid(1))
	if a.Status != StatusDisputed || a.Disputer != "disputer" {
		t.Errorf("Unexpected assertion state: %+v", a)
	}

	// Double-dispute is rejected
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); !errors.Is(err, ErrAlreadyDisputed) {
		t.Errorf("Expected ErrAlreadyDisputed, got %v", err)
	}
}

func TestDispute_WindowBoundary(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	// Exactly at the boundary instant the window is closed: dispute requires
	// now < challengeWindowEnd.
	f.clock.advance(time.Hour)
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); !errors.Is(err, ErrWindowExpired) {
		t.Errorf("Expected ErrWindowExpired at boundary, got %v", err)
	}
	if f.machine.CanDispute(qid(1)) {
		t.Error("CanDispute should be false at the boundary instant")
	}

	// Finalize is allowed at the same instant: now >= challengeWindowEnd.
	if err := f.machine.Finalize(qid(1)); err != nil {
		t.Errorf("Finalize at boundary failed: %v", err)
	}
}

func TestDispute_WrongBond(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.Dispute("disputer", qid(1), proposerBond); !errors.Is(err, ErrWrongBond) {
		t.Errorf("Expected ErrWrongBond, got %v", err)
	}
}

func TestResolveDispute_PaysPotToWinner(t *testing.T) {
	tests := []struct {
		name           string
		favorsProposer bool
		winner         string
	}{
		{"proposer wins", true, "proposer"},
		{"disputer wins", false, "disputer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
				t.Fatalf("Propose failed: %v", err)
			}
			if err := f.machine.Dispute("disputer", qid(1), disputerBond); err != nil {
				t.Fatalf("Dispute failed: %v", err)
			}

			before := f.bank.balance(tt.winner)
			if err := f.machine.ResolveDispute("arbitrator", qid(1), tt.favorsProposer); err != nil {
				t.Fatalf("ResolveDispute failed: %v", err)
			}

			pot := proposerBond + disputerBond
			if got := f.bank.balance(tt.winner); got != before+pot {
				t.Errorf("Winner received %d, want %d", got-before, pot)
			}
			if f.bank.balance(EscrowAccount) != 0 {
				t.Error("Escrow must be empty after resolution")
			}

			a, _ := f.machine.Get(qid(1))
			if a.Status != StatusResolved {
				t.Errorf("Expected resolved, got %s", a.Status)
			}
		})
	}
}

func TestResolveDispute_ArbitratorOnly(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}

	if err := f.machine.ResolveDispute("mallory", qid(1), true); !errors.Is(err, ErrNotArbitrator) {
		t.Errorf("Expected ErrNotArbitrator, got %v", err)
	}
}

func TestResolveDispute_RequiresDispute(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.ResolveDispute("arbitrator", qid(1), true); !errors.Is(err, ErrNotDisputed) {
		t.Errorf("Expected ErrNotDisputed, got %v", err)
	}
}

func TestResolveDispute_FailedPayoutRevertsTransition(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}

	f.bank.failNext = fmt.Errorf("transfer gas exhausted")
	if err := f.machine.ResolveDispute("arbitrator", qid(1), true); err == nil {
		t.Fatal("Expected payout failure to propagate")
	}

	// No partial state: still disputed, escrow untouched, retry succeeds
	a, _ := f.machine.Get(qid(1))
	if a.Status != StatusDisputed {
		t.Errorf("Failed payout must leave assertion disputed, got %s", a.Status)
	}
	if got := f.bank.balance(EscrowAccount); got != proposerBond+disputerBond {
		t.Errorf("Escrow holds %d after failed payout, want %d", got, proposerBond+disputerBond)
	}
	if err := f.machine.ResolveDispute("arbitrator", qid(1), true); err != nil {
		t.Errorf("Retry after failed payout should succeed: %v", err)
	}
}

func TestFinalize_IdempotenceAndBondReturn(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	// Too early
	if err := f.machine.Finalize(qid(1)); !errors.Is(err, ErrWindowOpen) {
		t.Errorf("Expected ErrWindowOpen, got %v", err)
	}

	f.clock.advance(2 * time.Hour)
	if err := f.machine.Finalize(qid(1)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Bond returned exactly once
	if got := f.bank.balance("proposer"); got != 10_000_000 {
		t.Errorf("Proposer balance %d after finalize, want %d", got, 10_000_000)
	}

	// Second finalize fails with a distinguishable reason
	if err := f.machine.Finalize(qid(1)); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Expected ErrAlreadyFinalized, got %v", err)
	}
	if got := f.bank.balance("proposer"); got != 10_000_000 {
		t.Errorf("Bond must transfer exactly once, proposer balance %d", got)
	}
}

func TestFinalize_RejectedAfterDispute(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("proposer", qid(1), []byte("a"), proposerBond); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if err := f.machine.Dispute("disputer", qid(1), disputerBond); err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}

	f.clock.advance(2 * time.Hour)
	if err := f.machine.Finalize(qid(1)); !errors.Is(err, ErrAlreadyDisputed) {
		t.Errorf("Expected ErrAlreadyDisputed, got %v", err)
	}

	// An un-arbitrated dispute stays disputed indefinitely
	a, _ := f.machine.Get(qid(1))
	if a.Status != StatusDisputed {
		t.Errorf("Expected disputed, got %s", a.Status)
	}
}

func TestOperations_UnknownQuestion(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Dispute("disputer", qid(9), disputerBond); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Dispute: expected ErrUnknownQuestion, got %v", err)
	}
	if err := f.machine.Finalize(qid(9)); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Finalize: expected ErrUnknownQuestion, got %v", err)
	}
	if err := f.machine.ResolveDispute("arbitrator", qid(9), true); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("ResolveDispute: expected ErrUnknownQuestion, got %v", err)
	}
	if f.machine.CanDispute(qid(9)) {
		t.Error("CanDispute must be false for unknown id")
	}
}

func TestPropose_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	if err := f.machine.Propose("pauper", qid(1), []byte("a"), proposerBond); err == nil {
		t.Fatal("Expected escrow failure for unfunded account")
	}
	if _, ok := f.machine.Get(qid(1)); ok {
		t.Error("Failed escrow must not create an assertion")
	}
}
