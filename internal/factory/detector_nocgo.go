//go:build !cgo

package factory

import (
	"fmt"

	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/detect"
)

func newTesseractDetector(*config.Config) (detect.Detector, error) {
	return nil, fmt.Errorf("tesseract detector requires a cgo build")
}
