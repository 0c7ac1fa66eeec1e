package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridex/veridex/internal/chain"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/orchestrator"
	"github.com/veridex/veridex/internal/worker"
)

var (
	questionsFile string
	fundAmount    uint64
	runRequester  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator against a simulated ledger",
	Long: `Run starts the full assertion loop on an in-process simulated ledger:
questions are recorded on the ledger, the orchestrator picks them up,
resolves each one through multi-provider consensus, and submits a bonded
proposal for every clear verdict.

Questions are read from a file (one per line, '#' comments ignored) or
from stdin. The process keeps watching until interrupted, then prints
the final assertion state of every question.

Example:
  veridex run --questions questions.txt
  echo "Did the Apollo 11 land in 1969?" | veridex run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&questionsFile, "questions", "", "file of questions, one per line (default: stdin)")
	runCmd.Flags().Uint64Var(&fundAmount, "fund", 100_000_000, "initial signer balance on the simulated ledger, in minor units")
	runCmd.Flags().StringVar(&runRequester, "requester", "requester", "identity recorded as the question requester")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ledger, err := chain.NewSimLedger(cfg.Chain, chain.WithLogger(logger))
	if err != nil {
		return err
	}
	ledger.Fund(cfg.Chain.Signer, fundAmount)

	orch := orchestrator.New(ledger, engine, orchestrator.Config{
		Signer:         cfg.Chain.Signer,
		Bond:           cfg.Chain.ProposerBond,
		PollInterval:   cfg.Orchestrator.PollInterval,
		PollBlockRange: cfg.Orchestrator.PollBlockRange,
		QueueSize:      cfg.Orchestrator.QueueSize,
		SubmitTimeout:  cfg.Orchestrator.SubmitTimeout,
		Retry: worker.RetryPolicy{
			MaxAttempts: cfg.Orchestrator.MaxAttempts,
			BaseDelay:   cfg.Orchestrator.RetryBaseDelay,
			MaxDelay:    cfg.Orchestrator.RetryMaxDelay,
		},
	}, orchestrator.WithLogger(logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(ctx)
	}()

	questions, err := feedQuestions(ctx, ledger, logger)
	if err != nil {
		stop()
		<-done
		return err
	}
	if len(questions) == 0 {
		stop()
		<-done
		return fmt.Errorf("no questions to process")
	}

	fmt.Fprintf(os.Stderr, "Watching %d question(s); press Ctrl-C to stop\n", len(questions))
	<-ctx.Done()
	<-done

	printAssertions(ledger, questions)
	return nil
}

// feedQuestions records each input question on the ledger
func feedQuestions(ctx context.Context, ledger *chain.SimLedger, logger *zap.Logger) ([]model.Question, error) {
	input := os.Stdin
	if questionsFile != "" {
		f, err := os.Open(questionsFile)
		if err != nil {
			return nil, fmt.Errorf("opening questions file: %w", err)
		}
		defer func() { _ = f.Close() }()
		input = f
	}

	var questions []model.Question
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		q, err := ledger.RequestQuestion(ctx, runRequester, text)
		if err != nil {
			logger.Warn("question rejected", zap.String("text", text), zap.Error(err))
			continue
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return questions, fmt.Errorf("reading questions: %w", err)
	}
	return questions, nil
}

// printAssertions reports the final on-ledger state of every question
func printAssertions(ledger *chain.SimLedger, questions []model.Question) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  Final Ledger State")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()

	for _, q := range questions {
		a, ok, err := ledger.GetAssertion(context.Background(), q.ID)
		if err != nil || !ok {
			fmt.Printf("  %s  unproposed   %s\n", q.ID.Short(), q.Text)
			continue
		}
		label := "?"
		if verdict, err := model.DecodeAnswerPayload(a.Payload); err == nil {
			label = string(verdict.Label)
		}
		fmt.Printf("  %s  %-11s  %s\n      answer: %s  window ends: %s\n",
			q.ID.Short(), a.Status, q.Text, label,
			a.ChallengeWindowEnd.Format(time.RFC3339))
	}
	fmt.Println()
}
