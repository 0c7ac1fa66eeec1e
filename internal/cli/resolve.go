package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/validate"
)

var (
	resolveTimeout time.Duration
	resolveJSON    string
	checkCitations bool
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <question>",
	Short: "Resolve one question off-ledger and print the consensus verdict",
	Long: `Resolve sends a factual question to every configured evidence provider,
self-verifies each answer by reconstructing the question from the verdict
alone, and reports whether a majority of verified providers agree.

Nothing is submitted to a ledger. Use this to preview what the
orchestrator would propose, or as a standalone fact checker.

Example:
  veridex resolve "Did the Berlin Wall fall in 1989?"
  veridex resolve "Is the Great Wall visible from orbit?" --json verdict.json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 3*time.Minute, "overall resolution timeout")
	resolveCmd.Flags().StringVar(&resolveJSON, "json", "", "write the full result to a JSON file")
	resolveCmd.Flags().BoolVar(&checkCitations, "check-citations", false, "probe citation URLs for reachability (advisory)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	text := args[0]
	if err := model.ValidateQuestionText(text); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

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

	salt := uuid.NewString()
	q := model.Question{
		ID:          model.ComputeQuestionID(text, salt),
		Text:        text,
		Requester:   "cli",
		Salt:        salt,
		SubmittedAt: time.Now(),
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Question: %s\n", text)
		fmt.Fprintf(os.Stderr, "ID:       %s\n\n", q.ID)
	}

	result, err := engine.Resolve(ctx, q)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	printResult(result)

	if checkCitations && result.Answer != nil {
		fmt.Println("Citation checks:")
		for _, check := range validate.CheckVerdict(ctx, result.Answer) {
			switch {
			case check.Synthetic:
				fmt.Printf("  ~ %s (not probeable)\n", check.URL)
			case check.Reachable:
				fmt.Printf("  ✓ %s\n", check.URL)
			default:
				fmt.Printf("  ✗ %s (status %d) %s\n", check.URL, check.StatusCode, check.Error)
			}
		}
	}

	if resolveJSON != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if err := os.WriteFile(resolveJSON, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "\n✓ Full result written to %s\n", resolveJSON)
	}

	if !result.IsClear {
		os.Exit(2)
	}
	return nil
}

func printResult(result *model.ConsensusResult) {
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  Consensus Result")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()

	for _, outcome := range result.Outcomes {
		status := "✗ failed"
		detail := outcome.Error
		switch {
		case outcome.Verdict != nil && outcome.Verified:
			status = "✓ verified"
			detail = fmt.Sprintf("%s (similarity %.2f)", outcome.Verdict.Label, outcome.Similarity)
		case outcome.Verdict != nil:
			status = "✗ drifted"
			detail = fmt.Sprintf("%s (similarity %.2f)", outcome.Verdict.Label, outcome.Similarity)
		}
		fmt.Printf("  %-12s %-11s %s\n", outcome.Provider, status, detail)
	}
	fmt.Println()

	if !result.IsClear {
		fmt.Printf("Verdict: NO CONSENSUS (%d/%d agreed) - requires manual resolution\n",
			result.ConsensusCount, result.TotalModels)
		return
	}

	answer := result.Answer
	fmt.Printf("Verdict:    %s (%d/%d providers agree, confidence %d)\n",
		answer.Label, result.ConsensusCount, result.TotalModels, answer.ConfidenceOrZero())
	fmt.Printf("Summary:    %s\n", answer.Summary)
	fmt.Println("Sources:")
	for _, c := range answer.Citations {
		fmt.Printf("  - %s\n    %s\n", c.Title, c.URL)
	}
}
