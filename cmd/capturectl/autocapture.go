package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/analyzer"
	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/factory"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/preview"
)

type autoCaptureOptions struct {
	interval       time.Duration
	stableFrames   int
	pixelThreshold int
	changeLimit    int
	detector       string
	confidence     float64
	language       string
	keywords       []string
	quality        int
	output         string
}

func newAutoCaptureCmd() *cobra.Command {
	opts := autoCaptureOptions{}

	cmd := &cobra.Command{
		Use:   "autocapture <frames-dir>",
		Short: "Replay a directory of frames through the auto-capture loop",
		Long: `Autocapture feeds still frames, in file name order, through motion
stability and subject detection exactly as a live camera would, and writes the
frame that triggered the capture.

Examples:
  capturectl autocapture ./frames
  capturectl autocapture ./frames --detector tesseract --keywords republic,identification`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutoCapture(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.interval, "interval", 10*time.Millisecond, "delay between analysis cycles")
	cmd.Flags().IntVar(&opts.stableFrames, "stable-frames", acquire.DefaultStableFrames, "consecutive stable detections required")
	cmd.Flags().IntVar(&opts.pixelThreshold, "pixel-threshold", acquire.DefaultPixelThreshold, "per-pixel difference counted as motion")
	cmd.Flags().IntVar(&opts.changeLimit, "change-limit", acquire.DefaultChangeLimit, "changed sampled pixels tolerated as stable")
	cmd.Flags().StringVar(&opts.detector, "detector", string(factory.NoDetector), "subject detector (none, tesseract)")
	cmd.Flags().Float64Var(&opts.confidence, "confidence", 0.6, "minimum word confidence for tesseract (0-1)")
	cmd.Flags().StringVar(&opts.language, "language", "eng", "tesseract language")
	cmd.Flags().StringSliceVar(&opts.keywords, "keywords", nil, "keywords, one of which must be recognized")
	cmd.Flags().IntVar(&opts.quality, "quality", imageio.DefaultJPEGQuality, "JPEG quality")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default <dir>_capture_<unix>.jpg)")
	return cmd
}

func runAutoCapture(ctx context.Context, out io.Writer, dir string, opts autoCaptureOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stream, err := acquire.NewFileSequenceStream(dir)
	if err != nil {
		return err
	}

	detector, err := factory.NewDetectorFactory(&config.Config{
		DetectorConfidence: opts.confidence,
		DetectorLanguage:   opts.language,
		DetectorKeywords:   opts.keywords,
	}).CreateDetector(factory.DetectorType(opts.detector))
	if err != nil {
		_ = stream.Close()
		return err
	}
	if closer, ok := detector.(io.Closer); ok {
		defer closer.Close()
	}

	var degraded int
	src := acquire.NewCameraSource(stream, acquire.CameraConfig{
		Interval:             opts.interval,
		StableFramesRequired: opts.stableFrames,
		MotionPixelThreshold: opts.pixelThreshold,
		MotionChangeLimit:    opts.changeLimit,
		JPEGQuality:          opts.quality,
		Detector:             detector,
		Analyzer:             analyzer.NewQualityAnalyzer(analyzer.DefaultOptions()),
		Previews:             preview.NewRegistry(""),
		OnEvent: func(name string, fields map[string]any) {
			if name == acquire.EventDetectorDegraded {
				degraded++
			}
		},
	})
	defer src.Close()

	if _, err := src.Run(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("no stable capture in %d frames (best streak %d of %d)",
				stream.Len(), src.StableCount(), src.Required())
		}
		return err
	}
	img, err := src.Accept()
	if err != nil {
		return err
	}
	defer img.Release()

	dest := opts.output
	if dest == "" {
		dest = defaultOutput(filepath.Clean(dir), "", "capture")
	}
	if err := os.WriteFile(dest, img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	fmt.Fprintf(out, "wrote %s (%dx%d, %d bytes)\n", dest, img.Width, img.Height, len(img.Data))
	if degraded > 0 {
		fmt.Fprintf(out, "detector failed on %d frames; they were treated as detected\n", degraded)
	}
	printQuality(out, img.Quality)
	return nil
}
