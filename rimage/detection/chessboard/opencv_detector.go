//go:build !no_cgo

package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"go.viam.com/stereocal/logging"
)

// OpenCVDetector finds chessboard corners with OpenCV using adaptive thresholding and quad
// filtering.
type OpenCVDetector struct {
	refine RefineOptions
	logger logging.Logger
}

// NewOpenCVDetector returns an OpenCVDetector refining corners with opts.
func NewOpenCVDetector(opts RefineOptions, logger logging.Logger) *OpenCVDetector {
	return &OpenCVDetector{refine: opts, logger: logger}
}

// FindCorners returns the inner corners in OpenCV order, or false when the pattern is not found.
func (od *OpenCVDetector) FindCorners(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		od.logger.Warnw("cannot convert image", "error", err)
		return nil, false
	}
	defer src.Close()
	corners := gocv.NewMat()
	defer corners.Close()
	if !gocv.FindChessboardCorners(src, pattern, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBFilterQuads) {
		return nil, false
	}
	return fromCornerMat(corners), true
}

// RefineCorners returns a copy of corners refined with cornerSubPix.
func (od *OpenCVDetector) RefineCorners(img *image.Gray, corners []r2.Point) []r2.Point {
	if len(corners) == 0 {
		return nil
	}
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		od.logger.Warnw("cannot convert image", "error", err)
		return append([]r2.Point(nil), corners...)
	}
	defer src.Close()
	flat := gocv.NewMatWithSize(len(corners), 2, gocv.MatTypeCV32F)
	defer flat.Close()
	for i, c := range corners {
		flat.SetFloatAt(i, 0, float32(c.X))
		flat.SetFloatAt(i, 1, float32(c.Y))
	}
	pts := flat.Reshape(2, len(corners))
	defer pts.Close()
	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, od.refine.MaxIterations, od.refine.Epsilon)
	gocv.CornerSubPix(src, &pts, od.refine.HalfWindow, image.Pt(-1, -1), criteria)
	return fromCornerMat(pts)
}

// fromCornerMat reads an N x 1 two channel float matrix of points.
func fromCornerMat(m gocv.Mat) []r2.Point {
	out := make([]r2.Point, m.Rows())
	for i := range out {
		v := m.GetVecfAt(i, 0)
		out[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return out
}
