//go:build no_cgo

package chessboard

import (
	"go.viam.com/stereocal/logging"
)

// OpenCVDetector is unavailable without cgo and falls back to the saddle detector.
type OpenCVDetector struct {
	*SaddleDetector
}

// NewOpenCVDetector returns a saddle detector refining corners with opts.
func NewOpenCVDetector(opts RefineOptions, logger logging.Logger) *OpenCVDetector {
	cfg := DefaultDetectionConf
	cfg.Refine = opts
	logger.Warn("OpenCV is not available in this build, using the saddle point detector")
	return &OpenCVDetector{NewSaddleDetector(cfg, logger)}
}
