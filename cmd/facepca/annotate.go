package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/recognition"
)

var (
	annotateOutput string
	recognizeJSON  bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <image>",
	Short: "Draw a box and label on every face of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnnotate(args[0], annotateOutput)
	},
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Print the nearest corpus label for every face of the given images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecognize(args)
	},
}

func init() {
	annotateCmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output image path (default: <image>_annotated.png)")
	recognizeCmd.Flags().BoolVar(&recognizeJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(recognizeCmd)
}

// annotatedPath derives the default output path for input.
func annotatedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_annotated.png"
}

func runAnnotate(input, output string) error {
	if output == "" {
		output = annotatedPath(input)
	}

	p, err := newPipeline(true)
	if err != nil {
		return err
	}

	img, err := imaging.Open(input, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}

	out, detections, err := p.annotator.Annotate(img)
	if err != nil {
		return fmt.Errorf("failed to annotate %s: %w", input, err)
	}

	if err := imaging.Save(out, output); err != nil {
		return fmt.Errorf("failed to save %s: %w", output, err)
	}

	logging.WithFields(logging.Fields{
		"input":  input,
		"output": output,
		"faces":  len(detections),
	}).Info("Image annotated")

	if len(detections) == 0 {
		fmt.Println("No faces found.")
	}
	for _, d := range detections {
		fmt.Printf("  %-24s at %v\n", d.Label(), d.Region.Rect())
	}
	fmt.Printf("Saved %s\n", output)
	return nil
}

type recognizeResult struct {
	RunID      string                  `json:"run_id"`
	Image      string                  `json:"image"`
	Detections []recognition.Detection `json:"detections"`
}

func runRecognize(inputs []string) error {
	p, err := newPipeline(true)
	if err != nil {
		return err
	}

	results := make([]recognizeResult, 0, len(inputs))
	for _, input := range inputs {
		img, err := imaging.Open(input, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", input, err)
		}

		detections, err := p.annotator.Detect(img)
		if err != nil {
			return fmt.Errorf("failed to recognize %s: %w", input, err)
		}
		if detections == nil {
			detections = []recognition.Detection{}
		}
		results = append(results, recognizeResult{
			RunID:      uuid.New().String(),
			Image:      input,
			Detections: detections,
		})
	}

	if recognizeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		fmt.Printf("%s: %d face(s)\n", r.Image, len(r.Detections))
		for _, d := range r.Detections {
			fmt.Printf("  %-10s distance %-12.2f at %v\n", d.Result.Label, d.Result.Distance, d.Region.Rect())
		}
	}
	return nil
}
