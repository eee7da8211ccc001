package calibration

import (
	"image"

	"github.com/golang/geo/r2"

	"go.viam.com/stereocal/display"
	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
)

// Display surfaces of the two cameras.
const (
	SurfaceLeft  = "Left"
	SurfaceRight = "Right"
)

// A PatternDetector finds the inner corners of a chessboard.
type PatternDetector interface {
	// FindCorners returns pattern.X*pattern.Y corners in row order, or false.
	FindCorners(img *image.Gray, pattern image.Point) ([]r2.Point, bool)
	// RefineCorners returns a subpixel refined copy of corners.
	RefineCorners(img *image.Gray, corners []r2.Point) []r2.Point
}

// CornerDetector converts images to gray, runs a PatternDetector and optionally shows what it found.
type CornerDetector struct {
	detector PatternDetector
	sink     display.Sink
	showing  bool
	logger   logging.Logger
}

// NewCornerDetector returns a CornerDetector. Only WithDisplay applies to it.
func NewCornerDetector(detector PatternDetector, logger logging.Logger, opts ...Option) *CornerDetector {
	o := newOptions(opts)
	return &CornerDetector{detector: detector, sink: o.sink, showing: display.Enabled(o.sink), logger: logger}
}

// Detect returns the unrefined corners of pattern in img, or false. Color images are converted by
// luminance unless isGrayscale says they already hold one intensity channel. The refined corners
// are drawn on surface when display is enabled; displaying never changes the outcome.
func (cd *CornerDetector) Detect(img image.Image, isGrayscale bool, pattern image.Point, surface string) ([]r2.Point, bool) {
	gray := rimage.ToGray(img, isGrayscale)
	corners, found := cd.detector.FindCorners(gray, pattern)
	if found && len(corners) != pattern.X*pattern.Y {
		cd.logger.Debugw("detector returned a partial pattern",
			"surface", surface, "corners", len(corners), "expected", pattern.X*pattern.Y)
		found = false
	}
	cd.show(gray, pattern, corners, found, surface)
	if !found {
		return nil, false
	}
	return corners, true
}

func (cd *CornerDetector) show(gray *image.Gray, pattern image.Point, corners []r2.Point, found bool, surface string) {
	if !cd.showing {
		return
	}
	shown := corners
	if found {
		shown = cd.detector.RefineCorners(gray, corners)
	}
	cd.sink.Show(surface, rimage.DrawChessboardCorners(gray, pattern, shown, found))
}
