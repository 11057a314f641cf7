package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/camera"
	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/recognition"
)

type streamOptions struct {
	Dir       string
	Device    string
	Width     int
	Height    int
	Mirror    bool
	Output    string
	MaxFrames int
}

var streamOpts streamOptions

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Annotate a live camera feed or a directory of frames",
	Long: `Reads frames in order from a V4L2 camera (through ffmpeg) or from a
directory of images, annotates every face and writes the annotated frames to
the output directory. Accuracy is computed once and reused for every frame.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStream(cmd.Context(), streamOpts)
	},
}

func init() {
	streamCmd.Flags().StringVar(&streamOpts.Dir, "dir", "", "Directory of frames to replay in name order")
	streamCmd.Flags().StringVar(&streamOpts.Device, "device", "/dev/video0", "V4L2 camera device (used when --dir is not set)")
	streamCmd.Flags().IntVar(&streamOpts.Width, "width", 640, "Camera capture width")
	streamCmd.Flags().IntVar(&streamOpts.Height, "height", 480, "Camera capture height")
	streamCmd.Flags().BoolVar(&streamOpts.Mirror, "mirror", true, "Flip frames horizontally")
	streamCmd.Flags().StringVarP(&streamOpts.Output, "output", "o", "annotated", "Directory for annotated frames")
	streamCmd.Flags().IntVarP(&streamOpts.MaxFrames, "max-frames", "n", 0, "Stop after this many frames (0 = until the source ends)")

	rootCmd.AddCommand(streamCmd)
}

// openSource opens the frame directory or the camera and returns the frame
// count, or -1 when it is unknown.
func openSource(opts streamOptions) (camera.Source, int, error) {
	if opts.Dir != "" {
		src, err := camera.OpenDirectory(opts.Dir, opts.Mirror)
		if err != nil {
			return nil, 0, err
		}
		return src, src.Len(), nil
	}

	cam := camera.NewCamera()
	if err := cam.SetResolution(opts.Width, opts.Height); err != nil {
		return nil, 0, err
	}
	cam.SetMirror(opts.Mirror)
	if err := cam.Open(opts.Device); err != nil {
		return nil, 0, err
	}

	info := cam.GetDeviceInfo()
	fmt.Fprintf(os.Stderr, "Streaming from %s (%s)\n", info.Name, info.Path)
	return cam, -1, nil
}

func runStream(ctx context.Context, opts streamOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline(true)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.Output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	src, total, err := openSource(opts)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if opts.MaxFrames > 0 && (total < 0 || opts.MaxFrames < total) {
		total = opts.MaxFrames
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Annotating frames"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	frames, faces, err := streamFrames(ctx, src, p.annotator, opts, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	logging.WithFields(logging.Fields{
		"frames": frames,
		"faces":  faces,
		"output": opts.Output,
	}).Info("Stream finished")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Printf("Annotated %d frame(s), %d face(s), written to %s\n", frames, faces, opts.Output)
	return nil
}

// streamFrames annotates frames from src until it ends, ctx is cancelled or
// opts.MaxFrames is reached.
func streamFrames(ctx context.Context, src camera.Source, annotator *recognition.Annotator, opts streamOptions, tick func()) (frames, faces int, err error) {
	log := logging.Component("stream")

	for opts.MaxFrames <= 0 || frames < opts.MaxFrames {
		select {
		case <-ctx.Done():
			return frames, faces, ctx.Err()
		default:
		}

		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return frames, faces, nil
		}
		if err != nil {
			return frames, faces, fmt.Errorf("failed to read frame %d: %w", frames, err)
		}

		out, detections, err := annotator.Annotate(frame.Image)
		if err != nil {
			return frames, faces, fmt.Errorf("failed to annotate frame %d: %w", frame.Index, err)
		}

		path := filepath.Join(opts.Output, fmt.Sprintf("frame_%05d.png", frame.Index))
		if err := imaging.Save(out, path); err != nil {
			return frames, faces, fmt.Errorf("failed to save %s: %w", path, err)
		}

		log.WithFields(logging.Fields{
			"frame":  frame.Index,
			"source": frame.Source,
			"faces":  len(detections),
		}).Debug("Frame annotated")

		frames++
		faces += len(detections)
		tick()
	}
	return frames, faces, nil
}
