// Package testutils provides synthetic scenes and helpers for tests.
package testutils

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
)

// StereoRig is a pair of simulated cameras looking at a planar chessboard. Object points use
// unit grid steps: corner i sits at (i / nx, i % nx, 0).
type StereoRig struct {
	ImageSize image.Point
	// Pattern is the number of inner corners along x and y.
	Pattern image.Point
	K1, K2  *mat.Dense
	D1, D2  []float64
	R       *mat.Dense
	T       r3.Vector
}

// NewStereoRig returns a 640x480 rig looking at a 7x5 corner pattern. Both cameras share the
// focal length and have mild barrel distortion; the second camera sits two squares to the right.
func NewStereoRig() *StereoRig {
	return &StereoRig{
		ImageSize: image.Point{640, 480},
		Pattern:   image.Point{7, 5},
		K1:        mat.NewDense(3, 3, []float64{520, 0, 318, 0, 522, 242, 0, 0, 1}),
		K2:        mat.NewDense(3, 3, []float64{520, 0, 323, 0, 522, 236, 0, 0, 1}),
		D1:        []float64{-0.12, 0.05, 0, 0, 0},
		D2:        []float64{-0.09, 0.03, 0, 0, 0},
		R:         transform.Rodrigues(r3.Vector{X: 0.01, Y: -0.03, Z: 0.005}),
		T:         r3.Vector{X: -2, Y: 0.05, Z: 0.02},
	}
}

// ObjectPoints returns the corners of the board in row-major order.
func (rig *StereoRig) ObjectPoints() []r3.Vector {
	n := rig.Pattern.X * rig.Pattern.Y
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: float64(i / rig.Pattern.X), Y: float64(i % rig.Pattern.X)}
	}
	return pts
}

// BoardPose is the deterministic pose of the board in the camera-1 frame for a view.
func (rig *StereoRig) BoardPose(view int) *transform.CamPose {
	v := float64(view)
	om := r3.Vector{
		X: 0.35 * math.Sin(1.3*v+0.4),
		Y: 0.35 * math.Cos(0.9*v+0.2),
		Z: 0.15 * math.Sin(0.7*v),
	}
	rot := transform.Rodrigues(om)
	// keep the board centered in front of the rig
	center := r3.Vector{X: float64(rig.Pattern.Y-1) / 2, Y: float64(rig.Pattern.X-1) / 2}
	rc := r3.Vector{
		X: rot.At(0, 0)*center.X + rot.At(0, 1)*center.Y,
		Y: rot.At(1, 0)*center.X + rot.At(1, 1)*center.Y,
		Z: rot.At(2, 0)*center.X + rot.At(2, 1)*center.Y,
	}
	target := r3.Vector{X: -1 + 0.8*math.Sin(0.6*v), Y: 0.6 * math.Cos(1.1*v), Z: 12 + 2*math.Sin(0.5*v)}
	return transform.NewCamPose(rot, target.Sub(rc))
}

// Extrinsics returns the camera-2 pose relative to camera 1.
func (rig *StereoRig) Extrinsics() *transform.CamPose {
	return transform.NewCamPose(rig.R, rig.T)
}

// Corners returns the projected corners of a view in both cameras.
func (rig *StereoRig) Corners(view int) ([]r2.Point, []r2.Point) {
	obj := rig.ObjectPoints()
	pose1 := rig.BoardPose(view)
	pose2 := pose1.Compose(rig.Extrinsics())
	return transform.ProjectPoints(obj, pose1, rig.K1, rig.D1), transform.ProjectPoints(obj, pose2, rig.K2, rig.D2)
}

// Views returns the observation sequences of n views.
func (rig *StereoRig) Views(n int) ([][]r3.Vector, [][]r2.Point, [][]r2.Point) {
	obj := make([][]r3.Vector, n)
	ip1 := make([][]r2.Point, n)
	ip2 := make([][]r2.Point, n)
	for i := 0; i < n; i++ {
		obj[i] = rig.ObjectPoints()
		ip1[i], ip2[i] = rig.Corners(i)
	}
	return obj, ip1, ip2
}

// RenderBoard draws the chessboard of pattern (inner corners) seen through the homography that
// maps board coordinates in squares to pixels. The board has a white margin of one square.
func RenderBoard(size image.Point, pattern image.Point, boardToImage *transform.Homography) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	imageToBoard, err := boardToImage.Inverse()
	if err != nil {
		return img
	}
	const samples = 4
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			sum := 0.
			for sy := 0; sy < samples; sy++ {
				for sx := 0; sx < samples; sx++ {
					p := imageToBoard.Apply(r2.Point{
						X: float64(x) + (float64(sx)+0.5)/samples - 0.5,
						Y: float64(y) + (float64(sy)+0.5)/samples - 0.5,
					})
					sum += boardIntensity(p, pattern)
				}
			}
			img.SetGray(x, y, color.Gray{uint8(math.Round(sum / samples / samples))})
		}
	}
	return img
}

// boardIntensity is the color of the board at p, where inner corner (c, r) sits at (c, r).
func boardIntensity(p r2.Point, pattern image.Point) float64 {
	const background = 128
	// squares span [-1, pattern.X] x [-1, pattern.Y], plus a white margin
	if p.X < -2 || p.Y < -2 || p.X > float64(pattern.X)+1 || p.Y > float64(pattern.Y)+1 {
		return background
	}
	if p.X < -1 || p.Y < -1 || p.X > float64(pattern.X) || p.Y > float64(pattern.Y) {
		return 255
	}
	cx := int(math.Floor(p.X)) + 1
	cy := int(math.Floor(p.Y)) + 1
	if (cx+cy)%2 == 0 {
		return 20
	}
	return 235
}

// BoardHomography maps board coordinates (corner column, corner row) to pixels for a simple
// fronto-parallel view with square pixels of the given size, offset to origin, and an optional
// perspective tilt.
func BoardHomography(origin r2.Point, squarePx, tilt float64) *transform.Homography {
	return &transform.Homography{
		{squarePx, 0, origin.X},
		{0, squarePx, origin.Y},
		{tilt, tilt / 2, 1},
	}
}

// ChessboardCorners returns the true corner positions for a board rendered with h, in row-major
// order.
func ChessboardCorners(pattern image.Point, h *transform.Homography) []r2.Point {
	pts := make([]r2.Point, 0, pattern.X*pattern.Y)
	for r := 0; r < pattern.Y; r++ {
		for c := 0; c < pattern.X; c++ {
			pts = append(pts, h.Apply(r2.Point{X: float64(c), Y: float64(r)}))
		}
	}
	return pts
}
