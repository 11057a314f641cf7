package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/evaluation"
	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/storage"
)

var (
	evaluateJSON    bool
	evaluateVerbose bool
	pruneOlderThan  time.Duration
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure held-out recognition accuracy of the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluate()
	},
}

var evaluateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored evaluation summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluateList()
	},
}

var evaluatePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete stored evaluation summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluatePrune(pruneOlderThan)
	},
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Print the full report as JSON")
	evaluateCmd.Flags().BoolVarP(&evaluateVerbose, "verbose", "v", false, "Print every test prediction")
	evaluatePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Only delete summaries older than this (0 deletes all)")

	evaluateCmd.AddCommand(evaluateListCmd)
	evaluateCmd.AddCommand(evaluatePruneCmd)
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate() error {
	p, err := newPipeline(false)
	if err != nil {
		return err
	}

	report, err := p.cache.Report(p.corpus)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if evaluateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(p.corpus.Fingerprint(), report)
	return nil
}

func printReport(fingerprint string, report *evaluation.Report) {
	fmt.Println("Evaluation")
	fmt.Println("==========")
	fmt.Printf("  Corpus:     %s\n", short(fingerprint))
	fmt.Printf("  Rank:       %d\n", report.Rank)
	fmt.Printf("  Train/Test: %d/%d\n", report.TrainSize, report.TestSize)
	fmt.Printf("  Accuracy:   %.2f%%\n", report.Accuracy*100)

	if !evaluateVerbose {
		return
	}

	fmt.Println()
	for _, pr := range report.Predictions {
		mark := "ok"
		if !pr.Correct() {
			mark = "MISS"
		}
		fmt.Printf("  #%-4d %-16s -> %-16s %10.2f  %s\n", pr.Index, pr.Truth, pr.Predicted, pr.Distance, mark)
	}
}

// short abbreviates a fingerprint for display.
func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

// openSummaryStore opens the store regardless of the persist setting.
func openSummaryStore() (*storage.FileStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
}

func runEvaluateList() error {
	store, err := openSummaryStore()
	if err != nil {
		return err
	}

	summaries, err := store.ListSummaries()
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No stored evaluations.")
		return nil
	}

	fmt.Println("Stored evaluations:")
	for _, s := range summaries {
		fmt.Printf("  %s  %-12s rank %-4d %6.2f%%  (%d/%d)\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04"), short(s.Fingerprint), s.Rank,
			s.Accuracy*100, s.TrainSize, s.TestSize)
	}
	fmt.Printf("\nTotal: %d evaluation(s)\n", len(summaries))
	return nil
}

func runEvaluatePrune(olderThan time.Duration) error {
	store, err := openSummaryStore()
	if err != nil {
		return err
	}

	summaries, err := store.ListSummaries()
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, s := range summaries {
		if olderThan > 0 && s.CreatedAt.After(cutoff) {
			continue
		}
		if err := store.DeleteSummary(s.Key); err != nil {
			return fmt.Errorf("failed to delete summary %s: %w", s.Key, err)
		}
		removed++
	}

	logging.Infof("Pruned %d evaluation summaries", removed)
	fmt.Printf("Removed %d evaluation(s).\n", removed)
	return nil
}
