package service

import (
	"context"
	"io"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/capture"
	"github.com/anime-shed/id-capture-go/internal/crop"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/imageio"
)

// sourceFactory builds the acquisition source for one slot of e. Camera
// sources read frames pushed by the client.
func (s *captureService) sourceFactory(e *sessionEntry) capture.SourceFactory {
	p := e.session
	return capture.SourceFactoryFunc(func(ctx context.Context, mode capture.Mode, slot string) (capture.Source, error) {
		prof := p.Profile()
		switch mode {
		case capture.ModeUpload:
			opts := []crop.Option{crop.WithJPEGQuality(s.cfg.Camera.JPEGQuality)}
			if s.cfg.Analyzer != nil {
				opts = append(opts, crop.WithAnalyzer(s.cfg.Analyzer))
			}
			engine, err := crop.NewEngine(prof.AspectRatio, prof.OutputWidth, s.cfg.Previews, opts...)
			if err != nil {
				return nil, apperrors.NewProcessingError("failed to create crop editor", err)
			}
			return acquire.NewUploadSource(engine, s.cfg.Previews, s.cfg.MaxUploadBytes), nil

		case capture.ModeCamera:
			cfg := s.cfg.Camera
			cfg.Detector = s.cfg.Detector
			cfg.Analyzer = s.cfg.Analyzer
			cfg.Previews = s.cfg.Previews
			cfg.OnEvent = s.cameraListener(e, slot)

			declared := e.declared
			cam := acquire.CameraFunc(func(ctx context.Context, c acquire.Constraints) (acquire.Stream, error) {
				return acquire.NewPushStream(declared), nil
			})
			src, err := acquire.OpenCamera(ctx, cam, acquire.DefaultConstraints(), cfg)
			if err != nil {
				return nil, err
			}
			return src, nil

		default:
			return nil, apperrors.NewValidationError("unknown capture mode", nil)
		}
	})
}

func decodeFrame(r io.Reader, limit int64) (*imageio.Decoded, []byte, error) {
	if r == nil {
		return nil, nil, apperrors.NewValidationError("frame body is required", nil)
	}
	return imageio.ReadAndDecode(r, limit)
}
