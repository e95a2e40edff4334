//go:build cgo

package factory

import (
	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/detect"
	"github.com/anime-shed/id-capture-go/internal/detect/ocr"
)

func newTesseractDetector(cfg *config.Config) (detect.Detector, error) {
	tc := ocr.DefaultTextConfig()
	tc.Language = cfg.DetectorLanguage
	tc.Keywords = cfg.DetectorKeywords
	if cfg.DetectorConfidence > 0 {
		tc.MinConfidence = cfg.DetectorConfidence * 100
	}
	d, err := ocr.NewTextPresenceDetector(tc)
	if err != nil {
		return nil, err
	}
	return d, nil
}
