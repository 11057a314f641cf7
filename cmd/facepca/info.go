package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/detect"
	"github.com/MrCodeEU/facepca/pkg/eigenface"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the people of the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLabels()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printConfig()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runLabels() error {
	logging.Debugf("Listing corpus labels in %s", cfg.Corpus.Dir)

	c, err := loadCorpus()
	if err != nil {
		return err
	}

	names, counts := c.Distinct()
	fmt.Printf("Corpus %s (%dx%d, fingerprint %s)\n\n", cfg.Corpus.Dir, c.Width(), c.Height(), short(c.Fingerprint()))
	for _, name := range names {
		fmt.Printf("  %-24s %d face(s)\n", name, counts[name])
	}
	fmt.Printf("\nTotal: %d label(s), %d face(s), max rank %d\n",
		len(names), c.Len(), eigenface.MaxRank(c.Len(), c.Pixels()))
	return nil
}

func printConfig() {
	logging.Debugf("Showing configuration")

	size := "from first image"
	if cfg.Corpus.Width > 0 {
		size = fmt.Sprintf("%dx%d", cfg.Corpus.Width, cfg.Corpus.Height)
	}

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Corpus]")
	fmt.Printf("  Dir:             %s\n", cfg.Corpus.Dir)
	fmt.Printf("  Size:            %s\n", size)
	fmt.Println()
	fmt.Println("[PCA]")
	fmt.Printf("  Rank:            %d\n", cfg.PCA.Rank)
	fmt.Println()
	fmt.Println("[Evaluation]")
	fmt.Printf("  Test Fraction:   %.2f\n", cfg.Evaluation.TestFraction)
	fmt.Printf("  Seed:            %d\n", cfg.Evaluation.Seed)
	fmt.Printf("  Stratify:        %t\n", cfg.Evaluation.Stratify)
	fmt.Printf("  Cache:           %t\n", cfg.Evaluation.Cache)
	fmt.Printf("  Persist:         %t\n", cfg.Evaluation.Persist)
	fmt.Println()
	fmt.Println("[Detector]")
	fmt.Printf("  Backend:         %s\n", cfg.Detector.Backend)
	fmt.Printf("  Cascade File:    %s\n", cfg.Detector.CascadeFile)
	fmt.Printf("  Model Path:      %s\n", cfg.Detector.ModelPath)
	fmt.Printf("  Face Size:       %d..%d px\n", cfg.Detector.MinSize, cfg.Detector.MaxSize)
	fmt.Printf("  Scale/Shift:     %.2f / %.2f\n", cfg.Detector.ScaleFactor, cfg.Detector.ShiftFactor)
	fmt.Printf("  IoU Threshold:   %.2f\n", cfg.Detector.IoUThreshold)
	fmt.Printf("  Min Quality:     %.2f\n", cfg.Detector.MinQuality)
	fmt.Println()
	fmt.Println("[Annotation]")
	fmt.Printf("  Min Thickness:   %d\n", cfg.Annotation.MinThickness)
	fmt.Printf("  Label Offset:    %d\n", cfg.Annotation.LabelOffset)
	fmt.Println()
	fmt.Println("[Server]")
	fmt.Printf("  Address:         %s\n", cfg.Addr())
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Data Dir:        %s\n", cfg.Storage.DataDir)
	fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  File:            %s\n", cfg.Logging.File)
	fmt.Printf("  Format:          %s\n", cfg.Logging.Format)
	fmt.Println()
	fmt.Println("Configuration Locations:")
	fmt.Println("  System: /etc/facepca/facepca.yaml")
	fmt.Println("  User:   ~/.config/facepca/facepca.yaml")
}

func printVersion() {
	fmt.Printf("facepca v%s\n", version)
	fmt.Println("Eigenface face recognition")
	fmt.Println()
	fmt.Println("Build Information:")
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Detectors:  %v\n", detect.Backends())
}
