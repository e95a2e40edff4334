package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/analyzer"
	"github.com/anime-shed/id-capture-go/internal/crop"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

type cropOptions struct {
	profile  string
	slot     string
	ratio    float64
	width    int
	zoom     float64
	rotation float64
	panX     float64
	panY     float64
	quality  int
	output   string
}

func newCropCmd(profilesFile *string) *cobra.Command {
	opts := cropOptions{}

	cmd := &cobra.Command{
		Use:   "crop <image>",
		Short: "Crop an image to a profile's aspect ratio",
		Long: `Crop loads an image the way an upload does, applies zoom, rotation and
pan to the crop frame, and writes the confirmed JPEG.

Examples:
  capturectl crop scan.png --profile prc_id --zoom 1.3 --rotation -4
  capturectl crop slip.jpg --ratio 0.7727 --width 1275 -o slip_cropped.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("ratio") {
				p, err := loadProfile(*profilesFile, opts.profile)
				if err != nil {
					return err
				}
				opts.ratio = p.AspectRatio
				if !cmd.Flags().Changed("width") {
					opts.width = p.OutputWidth
				}
				if opts.slot == "" {
					opts.slot = p.Slots[0]
				}
			}
			return runCrop(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "document", "capture profile supplying ratio and width")
	cmd.Flags().StringVar(&opts.slot, "slot", "", "slot name used in the output filename")
	cmd.Flags().Float64Var(&opts.ratio, "ratio", 0, "crop aspect ratio (width/height), overrides the profile")
	cmd.Flags().IntVar(&opts.width, "width", 1200, "output width in pixels")
	cmd.Flags().Float64Var(&opts.zoom, "zoom", crop.MinZoom, "zoom factor")
	cmd.Flags().Float64Var(&opts.rotation, "rotation", 0, "rotation in degrees")
	cmd.Flags().Float64Var(&opts.panX, "pan-x", 0, "horizontal pan of the crop frame in canvas pixels")
	cmd.Flags().Float64Var(&opts.panY, "pan-y", 0, "vertical pan of the crop frame in canvas pixels")
	cmd.Flags().IntVar(&opts.quality, "quality", imageio.DefaultJPEGQuality, "JPEG quality")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default <input>_<slot>_cropped.jpg)")
	return cmd
}

func runCrop(ctx context.Context, out io.Writer, input string, opts cropOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	previews := preview.NewRegistry("")
	engine, err := crop.NewEngine(opts.ratio, opts.width, previews,
		crop.WithJPEGQuality(opts.quality),
		crop.WithAnalyzer(analyzer.NewQualityAnalyzer(analyzer.DefaultOptions())),
	)
	if err != nil {
		return err
	}
	src := acquire.NewUploadSource(engine, previews, 0)
	defer src.Close()

	if err := src.PickFile(ctx, filepath.Base(input), f); err != nil {
		return err
	}
	engine.SetZoom(opts.zoom)
	engine.SetRotation(opts.rotation)
	if opts.panX != 0 || opts.panY != 0 {
		engine.Pan(opts.panX, opts.panY)
	}

	st := engine.State()
	img, err := src.Confirm(ctx)
	if err != nil {
		return err
	}
	defer img.Release()

	dest := opts.output
	if dest == "" {
		dest = defaultOutput(input, opts.slot, "cropped")
	}
	if err := os.WriteFile(dest, img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	fmt.Fprintf(out, "wrote %s (%dx%d, %d bytes)\n", dest, img.Width, img.Height, len(img.Data))
	fmt.Fprintf(out, "crop: zoom=%.2f rotation=%d° region=%.0f,%.0f %.0fx%.0f\n",
		st.Zoom, engine.RotationLabel(), st.Region.X, st.Region.Y, st.Region.W, st.Region.H)
	printQuality(out, img.Quality)
	return nil
}

func defaultOutput(input, slot, suffix string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	if slot != "" {
		base += "_" + slot
	}
	return fmt.Sprintf("%s_%s_%d.jpg", base, suffix, time.Now().Unix())
}

func printQuality(out io.Writer, q *models.QualityReport) {
	if q == nil {
		return
	}
	fmt.Fprintf(out, "quality: sharpness=%.1f brightness=%.2f\n", q.LaplacianVariance, q.Brightness)
	for _, issue := range q.Issues {
		fmt.Fprintf(out, "  [%s] %s\n", issue.Severity, issue.Message)
	}
}
