package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// RefineOptions controls subpixel corner refinement.
type RefineOptions struct {
	// HalfWindow is the half size of the search window; (11, 11) searches a 23x23 window.
	HalfWindow    image.Point
	MaxIterations int
	// Epsilon stops the iterations once a corner moves less than this many pixels.
	Epsilon float64
}

// DefaultRefineOptions are the settings used to refine detected corners.
var DefaultRefineOptions = RefineOptions{
	HalfWindow:    image.Point{11, 11},
	MaxIterations: 30,
	Epsilon:       0.1,
}

// RefineCorners moves each corner to the point where the image gradients of its window are
// orthogonal to the vector from the point, which for a chessboard corner is the saddle point
// where the square edges meet. Corners that would leave their window keep their position. The
// input slice is not modified.
func RefineCorners(img *image.Gray, corners []r2.Point, opts RefineOptions) []r2.Point {
	out := make([]r2.Point, len(corners))
	for i, c := range corners {
		out[i] = refineCorner(img, c, opts)
	}
	return out
}

func refineCorner(img *image.Gray, start r2.Point, opts RefineOptions) r2.Point {
	wx, wy := opts.HalfWindow.X, opts.HalfWindow.Y
	sigmaX, sigmaY := float64(max(wx, 1)), float64(max(wy, 1))
	c := start
	for iter := 0; iter < opts.MaxIterations; iter++ {
		var a11, a12, a22, b1, b2 float64
		for dy := -wy; dy <= wy; dy++ {
			for dx := -wx; dx <= wx; dx++ {
				p := r2.Point{X: c.X + float64(dx), Y: c.Y + float64(dy)}
				gx := (sampleGray(img, p.X+1, p.Y) - sampleGray(img, p.X-1, p.Y)) / 2
				gy := (sampleGray(img, p.X, p.Y+1) - sampleGray(img, p.X, p.Y-1)) / 2
				w := math.Exp(-float64(dx*dx)/(sigmaX*sigmaX) - float64(dy*dy)/(sigmaY*sigmaY))
				gxx, gxy, gyy := w*gx*gx, w*gx*gy, w*gy*gy
				a11 += gxx
				a12 += gxy
				a22 += gyy
				b1 += gxx*p.X + gxy*p.Y
				b2 += gxy*p.X + gyy*p.Y
			}
		}
		det := a11*a22 - a12*a12
		if math.Abs(det) < 1e-12 {
			break
		}
		next := r2.Point{
			X: (a22*b1 - a12*b2) / det,
			Y: (a11*b2 - a12*b1) / det,
		}
		moved := next.Sub(c).Norm()
		c = next
		if moved < opts.Epsilon {
			break
		}
	}
	if math.Abs(c.X-start.X) > float64(wx) || math.Abs(c.Y-start.Y) > float64(wy) {
		return start
	}
	return c
}

// sampleGray bilinearly interpolates img at (x, y), replicating border pixels.
func sampleGray(img *image.Gray, x, y float64) float64 {
	b := img.Bounds()
	x = math.Max(float64(b.Min.X), math.Min(x, float64(b.Max.X-1)))
	y = math.Max(float64(b.Min.Y), math.Min(y, float64(b.Max.Y-1)))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, b.Max.X-1), min(y0+1, b.Max.Y-1)
	fx, fy := x-float64(x0), y-float64(y0)
	at := func(px, py int) float64 {
		return float64(img.Pix[img.PixOffset(px, py)])
	}
	top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
	bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx
	return top*(1-fy) + bottom*fy
}
