// Package chessboard finds the inner corners of a chessboard calibration pattern.
package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
)

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Saddle SaddleConfiguration `json:"saddle"`
	Refine RefineOptions       `json:"refine"`
}

// DefaultDetectionConf is the default chessboard detection configuration.
var DefaultDetectionConf = DetectionConfiguration{
	Saddle: DefaultSaddleConf,
	Refine: DefaultRefineOptions,
}

// SaddleDetector finds chessboard corners as saddle points of the image intensity: the strongest
// pattern.X*pattern.Y saddle points are kept and must form a grid.
type SaddleDetector struct {
	cfg    DetectionConfiguration
	logger logging.Logger
}

// NewSaddleDetector returns a SaddleDetector.
func NewSaddleDetector(cfg DetectionConfiguration, logger logging.Logger) *SaddleDetector {
	return &SaddleDetector{cfg: cfg, logger: logger}
}

// FindChessboard returns the grid of inner corners of the chessboard with the given pattern, or
// false when the image does not show it.
func (sd *SaddleDetector) FindChessboard(img *image.Gray, pattern image.Point) (*ChessGrid, bool) {
	n := pattern.X * pattern.Y
	if pattern.X < 2 || pattern.Y < 2 {
		return nil, false
	}
	im := rimage.ConvertGrayToLuminanceFloat(img)
	_, saddles := GetSaddlePoints(im, &sd.cfg.Saddle)
	if len(saddles) < n {
		sd.logger.Debugw("not enough saddle points", "found", len(saddles), "needed", n)
		return nil, false
	}
	points := lo.Map(saddles[:n], func(s SaddlePoint, _ int) r2.Point { return s.Pos })
	grid, err := orderGrid(points, pattern)
	if err != nil {
		sd.logger.Debugw("saddle points rejected", "error", err)
		return nil, false
	}
	return grid, true
}

// FindCorners returns the inner corners in row order, or false when the pattern is not found.
func (sd *SaddleDetector) FindCorners(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	grid, ok := sd.FindChessboard(img, pattern)
	if !ok {
		return nil, false
	}
	return grid.Corners, true
}

// RefineCorners returns a refined copy of corners.
func (sd *SaddleDetector) RefineCorners(img *image.Gray, corners []r2.Point) []r2.Point {
	return RefineCorners(img, corners, sd.cfg.Refine)
}
