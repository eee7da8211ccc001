package chessboard

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
)

// SaddleConfiguration stores the parameters to process the Hessian determinant image into saddle points.
type SaddleConfiguration struct {
	BlurPasses        int     `json:"blur"`      // number of 3x3 box blurs before differentiation
	RelativeThreshold float64 `json:"score-min"` // saddle score, relative to the strongest, below which points are dropped
	NMSWindowSize     int     `json:"win-size"`  // half window size for non-maximum suppression
}

// DefaultSaddleConf stores the default parameters for saddle detection.
var DefaultSaddleConf = SaddleConfiguration{
	BlurPasses:        1,
	RelativeThreshold: 0.05,
	NMSWindowSize:     5,
}

// SaddlePoint is a local maximum of the saddle map with its score.
type SaddlePoint struct {
	Pos   r2.Point
	Score float64
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) *mat.Dense {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX := rimage.ConvolveGrayFloat64(img, &sobelX)
	gY := rimage.ConvolveGrayFloat64(img, &sobelY)
	gXX := rimage.ConvolveGrayFloat64(gX, &sobelX)
	gYY := rimage.ConvolveGrayFloat64(gY, &sobelY)
	gXY := rimage.ConvolveGrayFloat64(gX, &sobelY)
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out
}

// SaddleMap returns the negated determinant of the Hessian of img, with non-saddle pixels set to 0.
func SaddleMap(img *mat.Dense, cfg *SaddleConfiguration) *mat.Dense {
	blur := rimage.GetBlur3()
	for i := 0; i < cfg.BlurPasses; i++ {
		img = rimage.ConvolveGrayFloat64(img, &blur)
	}
	saddle := computePixelWiseHessianDeterminant(img)
	// saddle points are points where determinant of hessian is <0
	saddle.Apply(func(r, c int, v float64) float64 {
		if v >= 0 {
			return 0
		}
		return -v
	}, saddle)
	return saddle
}

// NonMaxSuppression returns the local maxima of img within a window of half size winSize. Among
// equal values the first in row-major order wins.
func NonMaxSuppression(img *mat.Dense, winSize int) []image.Point {
	h, w := img.Dims()
	var peaks []image.Point
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			v := img.At(i, j)
			if v <= 0 || !isLocalMax(img, i, j, winSize) {
				continue
			}
			peaks = append(peaks, image.Point{j, i})
		}
	}
	return peaks
}

func isLocalMax(img *mat.Dense, i, j, winSize int) bool {
	h, w := img.Dims()
	v := img.At(i, j)
	for r := max(0, i-winSize); r < min(h, i+winSize+1); r++ {
		for c := max(0, j-winSize); c < min(w, j+winSize+1); c++ {
			o := img.At(r, c)
			if o > v {
				return false
			}
			if o == v && (r < i || (r == i && c < j)) {
				return false
			}
		}
	}
	return true
}

// GetSaddlePoints returns the saddle points of img sorted by decreasing score, located to
// subpixel accuracy by a parabola fit of the saddle map.
func GetSaddlePoints(img *mat.Dense, conf *SaddleConfiguration) (*mat.Dense, []SaddlePoint) {
	saddleMap := SaddleMap(img, conf)
	top := mat.Max(saddleMap)
	if top <= 0 {
		return saddleMap, nil
	}
	h, w := saddleMap.Dims()
	var points []SaddlePoint
	for _, p := range NonMaxSuppression(saddleMap, conf.NMSWindowSize) {
		score := saddleMap.At(p.Y, p.X)
		if score < conf.RelativeThreshold*top {
			continue
		}
		pos := r2.Point{X: float64(p.X), Y: float64(p.Y)}
		if p.X > 0 && p.X < w-1 {
			pos.X += parabolaPeak(saddleMap.At(p.Y, p.X-1), score, saddleMap.At(p.Y, p.X+1))
		}
		if p.Y > 0 && p.Y < h-1 {
			pos.Y += parabolaPeak(saddleMap.At(p.Y-1, p.X), score, saddleMap.At(p.Y+1, p.X))
		}
		points = append(points, SaddlePoint{Pos: pos, Score: score})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Score > points[j].Score })
	return saddleMap, points
}

// parabolaPeak returns the offset in [-0.5, 0.5] of the vertex of the parabola through three samples.
func parabolaPeak(left, center, right float64) float64 {
	den := left - 2*center + right
	if den == 0 {
		return 0
	}
	return math.Max(-0.5, math.Min(0.5, 0.5*(left-right)/den))
}

// PlotSaddleMap draws the saddle points over a normalized rendering of the saddle map.
func PlotSaddleMap(saddleMap *mat.Dense, points []r2.Point) image.Image {
	h, w := saddleMap.Dims()
	dc := gg.NewContext(w, h)
	top := mat.Max(saddleMap)
	if top > 0 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// square root brings out the weaker responses
				img.Pix[y*img.Stride+x] = uint8(255 * math.Sqrt(saddleMap.At(y, x)/top))
			}
		}
		dc.DrawImage(img, 0, 0)
	}
	dc.SetColor(color.RGBA{R: 255, A: 255})
	for _, pt := range points {
		dc.DrawPoint(pt.X, pt.Y, 2.5)
		dc.Fill()
	}
	return dc.Image()
}
