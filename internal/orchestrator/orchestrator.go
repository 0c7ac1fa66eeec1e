// Package orchestrator watches the ledger for new questions, resolves each
// one off-ledger through the consensus engine, and submits exactly one
// bonded proposal per question id. Two producers (a push subscription and a
// periodic block-range re-scan) feed one bounded queue; deduplication
// happens at dispatch, so a question seen by both producers is still
// processed once.
package orchestrator

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridex/veridex/internal/assertion"
	"github.com/veridex/veridex/internal/chain"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/worker"
)

// Resolver produces a consensus result for a question.
// Implemented by consensus.Engine.
type Resolver interface {
	Resolve(ctx context.Context, q model.Question) (*model.ConsensusResult, error)
}

// Config tunes one orchestrator instance
type Config struct {
	// Signer is the identity submitting proposals
	Signer string

	// Bond attached to every proposal; must match the machine's ProposerBond
	Bond uint64

	// PollInterval between block-range re-scans
	PollInterval time.Duration

	// PollBlockRange is how many recent blocks each re-scan covers
	PollBlockRange uint64

	// QueueSize bounds the dispatch queue
	QueueSize int

	// Retry is the submission retry policy
	Retry worker.RetryPolicy

	// SubmitTimeout bounds one submission attempt, receipt included
	SubmitTimeout time.Duration
}

// Orchestrator drives the assertion machine forward once per question.
// Its signing identity and idempotency ledger are instance state, injected
// at construction and never ambient.
type Orchestrator struct {
	ledger   chain.Ledger
	resolver Resolver
	cfg      Config
	inflight *inflightSet
	logger   *zap.Logger
}

// Option customizes orchestrator construction
type Option func(*Orchestrator)

// WithLogger attaches a structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator
func New(ledger chain.Ledger, resolver Resolver, cfg Config, opts ...Option) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PollBlockRange == 0 {
		cfg.PollBlockRange = 256
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 90 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = worker.DefaultRetryPolicy()
	}

	o := &Orchestrator{
		ledger:   ledger,
		resolver: resolver,
		cfg:      cfg,
		inflight: newInflightSet(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run watches the ledger and processes questions until the context is
// cancelled. Shutdown is cooperative: intake stops immediately, in-flight
// tasks finish or time out on their own.
func (o *Orchestrator) Run(ctx context.Context) error {
	queue := make(chan model.Question, o.cfg.QueueSize)

	subCh, cancelSub := o.ledger.SubscribeQuestions(ctx)
	defer cancelSub()

	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		o.subscribeLoop(ctx, subCh, queue)
	}()
	go func() {
		defer producers.Done()
		o.pollLoop(ctx, queue)
	}()
	go func() {
		producers.Wait()
		close(queue)
	}()

	o.logger.Info("orchestrator started",
		zap.String("signer", o.cfg.Signer),
		zap.Duration("poll_interval", o.cfg.PollInterval))

	var tasks sync.WaitGroup
	for q := range queue {
		o.tryDispatch(ctx, &tasks, q)
	}
	tasks.Wait()

	o.logger.Info("orchestrator stopped")
	return ctx.Err()
}

// subscribeLoop forwards pushed question events into the dispatch queue
func (o *Orchestrator) subscribeLoop(ctx context.Context, subCh <-chan model.Question, queue chan<- model.Question) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-subCh:
			if !ok {
				return
			}
			o.enqueue(ctx, queue, q)
		}
	}
}

// pollLoop periodically re-scans a bounded recent block range. It is the
// backstop for events the subscription dropped.
func (o *Orchestrator) pollLoop(ctx context.Context, queue chan<- model.Question) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := o.ledger.CurrentBlock(ctx)
		if err != nil {
			o.logger.Warn("poll: current block lookup failed", zap.Error(err))
			continue
		}
		from := uint64(1)
		if head > o.cfg.PollBlockRange {
			from = head - o.cfg.PollBlockRange
		}

		questions, err := o.ledger.QueryQuestions(ctx, from, head)
		if err != nil {
			o.logger.Warn("poll: question scan failed", zap.Error(err))
			continue
		}
		for _, q := range questions {
			// Cheap pre-filter; the authoritative dedupe is at dispatch
			if o.inflight.Has(q.ID) {
				continue
			}
			o.enqueue(ctx, queue, q)
		}
	}
}

func (o *Orchestrator) enqueue(ctx context.Context, queue chan<- model.Question, q model.Question) {
	select {
	case <-ctx.Done():
	case queue <- q:
	}
}

// tryDispatch reserves the question in the idempotency ledger and spawns its
// task. A question already reserved (submitted or in-flight) is skipped, so
// replaying the same observed event yields exactly one proposal.
func (o *Orchestrator) tryDispatch(ctx context.Context, tasks *sync.WaitGroup, q model.Question) bool {
	if !o.inflight.Add(q.ID) {
		o.logger.Debug("duplicate question event skipped", zap.String("question", q.ID.Short()))
		return false
	}

	tasks.Add(1)
	go func() {
		defer tasks.Done()
		o.process(ctx, q)
	}()
	return true
}

// process runs one question through its lifecycle: resolve off-ledger, then
// submit the proposal with retries. Definitive failure releases the id so an
// external re-submission can be reattempted.
func (o *Orchestrator) process(ctx context.Context, q model.Question) {
	logger := o.logger.With(zap.String("question", q.ID.Short()))
	logger.Info("question dispatched", zap.String("text", q.Text))

	result, err := o.resolver.Resolve(ctx, q)
	if err != nil {
		logger.Error("evidence gathering failed", zap.Error(err))
		o.inflight.Remove(q.ID)
		return
	}
	if !result.IsClear {
		logger.Warn("no consensus: requires manual resolution",
			zap.Int("consensus_count", result.ConsensusCount),
			zap.Int("total_models", result.TotalModels))
		o.inflight.Remove(q.ID)
		return
	}

	payload, err := model.EncodeAnswerPayload(result.Answer)
	if err != nil {
		logger.Error("answer payload rejected", zap.Error(err))
		o.inflight.Remove(q.ID)
		return
	}

	submit := func(ctx context.Context) error {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
		defer cancel()

		// Time has passed since dispatch; re-check before spending the bond
		if _, exists, err := o.ledger.GetAssertion(sctx, q.ID); err == nil && exists {
			logger.Info("assertion already exists, skipping submission")
			return nil
		}

		receipt, err := o.ledger.Propose(sctx, o.cfg.Signer, q.ID, payload, o.cfg.Bond)
		if err != nil {
			return err
		}
		logger.Info("proposal accepted",
			zap.String("tx", receipt.TxHash),
			zap.Uint64("block", receipt.Block),
			zap.Uint64("gas", receipt.GasUsed))
		return nil
	}

	if err := o.cfg.Retry.Do(ctx, logger, "propose", retryableSubmitError, submit); err != nil {
		logger.Error("submission failed, question released for re-submission", zap.Error(err))
		o.inflight.Remove(q.ID)
		return
	}

	logger.Info("question done",
		zap.String("label", string(result.Answer.Label)),
		zap.Int("consensus_count", result.ConsensusCount),
		zap.Int("total_models", result.TotalModels))
}

// retryableSubmitError separates transient submission failures (network,
// timeout, unconfirmed) from deterministic ones that retrying can never fix.
func retryableSubmitError(err error) bool {
	switch {
	case errors.Is(err, assertion.ErrAlreadyProposed),
		errors.Is(err, assertion.ErrAlreadyDisputed),
		errors.Is(err, assertion.ErrAlreadyResolved),
		errors.Is(err, assertion.ErrAlreadyFinalized),
		errors.Is(err, assertion.ErrWrongBond),
		errors.Is(err, assertion.ErrPayloadTooLarge),
		errors.Is(err, assertion.ErrEmptyPayload),
		errors.Is(err, chain.ErrInsufficientFunds):
		return false
	case errors.Is(err, chain.ErrUnconfirmed),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown failures are assumed transient; the attempt budget bounds them
	return true
}
