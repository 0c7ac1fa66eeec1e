// Package consensus fans a question out to every configured evidence
// provider, gates each answer through self-verification, and computes a
// majority verdict. A split or empty round reports no consensus; the engine
// never guesses.
package consensus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/worker"
)

// Engine runs consensus rounds over a fixed provider set.
// Provider order doubles as priority for deterministic tie-breaks.
type Engine struct {
	providers []llm.Provider
	verifier  *llm.Verifier
	store     cache.Cache
	cacheTTL  time.Duration
	limiter   *worker.Limiter
	retry     worker.RetryPolicy
	logger    *zap.Logger
}

// Option customizes engine construction
type Option func(*Engine)

// WithCache memoizes research calls so retries never re-spend tokens
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.store = c
		e.cacheTTL = ttl
	}
}

// WithLimiter throttles provider calls
func WithLimiter(l *worker.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithRetry overrides the per-provider call retry policy
func WithRetry(p worker.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithLogger attaches a structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a consensus engine over the given providers
func NewEngine(providers []llm.Provider, opts ...Option) (*Engine, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("consensus engine requires at least one provider")
	}

	e := &Engine{
		providers: providers,
		verifier:  llm.NewVerifier(),
		cacheTTL:  15 * time.Minute,
		retry: worker.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// researchJob queries one provider and runs self-verification on its answer
type researchJob struct {
	engine   *Engine
	index    int
	provider llm.Provider
	question model.Question
}

// researchResult carries one provider's outcome back through the pool
type researchResult struct {
	index   int
	outcome model.ProviderOutcome
	err     error
}

func (r *researchResult) GetError() error { return r.err }

func (j *researchJob) Execute(ctx context.Context) worker.Result {
	e := j.engine
	name := j.provider.Name()
	res := &researchResult{index: j.index, outcome: model.ProviderOutcome{Provider: name}}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, name); err != nil {
			res.err = fmt.Errorf("rate limit wait: %w", err)
			res.outcome.Error = res.err.Error()
			return res
		}
	}

	verdict, hit := cache.GetVerdict(e.store, name, j.question.ID)
	if !hit {
		// Transient transport failures get a short retry before the
		// provider is excluded from the round; deterministic failures
		// such as a rejected API key are not repeated
		err := e.retry.Do(ctx, e.logger, "research "+name,
			llm.IsRetryable,
			func(ctx context.Context) error {
				v, rerr := j.provider.Research(ctx, j.question.Text)
				if rerr != nil {
					return rerr
				}
				verdict = v
				return nil
			})
		if err != nil {
			res.err = err
			res.outcome.Error = err.Error()
			e.logger.Warn("provider excluded from round",
				zap.String("provider", name),
				zap.String("question", j.question.ID.Short()),
				zap.Error(err))
			return res
		}
		cache.PutVerdict(e.store, name, j.question.ID, verdict, e.cacheTTL)
	}
	res.outcome.Verdict = verdict

	// Self-verification gate: an unverifiable answer stays in the audit
	// trail but never in the vote count.
	check := e.verifier.Check(ctx, j.provider, j.question.Text, verdict)
	res.outcome.Verified = check.Verified
	res.outcome.Similarity = check.Similarity

	e.logger.Debug("provider answered",
		zap.String("provider", name),
		zap.String("question", j.question.ID.Short()),
		zap.String("label", string(verdict.Label)),
		zap.Bool("verified", check.Verified),
		zap.Float64("similarity", check.Similarity))
	return res
}

// Resolve runs one consensus round for a question. Individual provider
// failures degrade to exclusion; an error is returned only when every
// provider failed outright.
func (e *Engine) Resolve(ctx context.Context, q model.Question) (*model.ConsensusResult, error) {
	pool := worker.NewPoolContext(ctx, len(e.providers))
	pool.Start()

	for i, p := range e.providers {
		pool.Submit(&researchJob{engine: e, index: i, provider: p, question: q})
	}
	raw := pool.Wait()

	// A cancelled round reports the cancellation, not a provider tally
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Restore provider priority order; the pool yields completion order
	outcomes := make([]model.ProviderOutcome, len(e.providers))
	for _, r := range raw {
		rr := r.(*researchResult)
		outcomes[rr.index] = rr.outcome
	}

	result := &model.ConsensusResult{
		TotalModels: len(e.providers),
		Outcomes:    outcomes,
	}

	answered := 0
	var verified []model.ProviderOutcome
	for _, o := range outcomes {
		if o.Verdict != nil {
			answered++
		}
		if o.Verified {
			verified = append(verified, o)
		}
	}
	if answered == 0 {
		return nil, fmt.Errorf("all %d providers failed", len(e.providers))
	}

	winner, count := majority(verified)
	result.ConsensusCount = count
	if winner == nil {
		e.logger.Info("no consensus reached",
			zap.String("question", q.ID.Short()),
			zap.Int("verified", len(verified)),
			zap.Int("total", len(e.providers)))
		return result, nil
	}

	result.IsClear = true
	result.Answer = winner
	e.logger.Info("consensus reached",
		zap.String("question", q.ID.Short()),
		zap.String("label", string(winner.Label)),
		zap.Int("consensus", count),
		zap.Int("total", len(e.providers)))
	return result, nil
}

// majority applies the vote rule over verified outcomes: the winning label
// must reach ceil(n/2) votes and be the unique maximum, so an even split is
// never resolved by guessing. Among verdicts carrying the winning label the
// highest confidence wins, with provider priority order breaking exact ties.
func majority(verified []model.ProviderOutcome) (*model.EvidenceVerdict, int) {
	if len(verified) == 0 {
		return nil, 0
	}

	counts := make(map[model.VerdictLabel]int)
	for _, o := range verified {
		counts[o.Verdict.Label]++
	}

	var winning model.VerdictLabel
	best, unique := 0, false
	for label, n := range counts {
		switch {
		case n > best:
			winning, best, unique = label, n, true
		case n == best:
			unique = false
		}
	}

	threshold := (len(verified) + 1) / 2
	if !unique || best < threshold {
		return nil, 0
	}

	var answer *model.EvidenceVerdict
	for _, o := range verified {
		if o.Verdict.Label != winning {
			continue
		}
		if answer == nil || o.Verdict.ConfidenceOrZero() > answer.ConfidenceOrZero() {
			answer = o.Verdict
		}
	}
	return answer, best
}
