package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column].
type Homography [3][3]float64

// NewHomographyFromDense copies a 3x3 matrix into a Homography.
func NewHomographyFromDense(m mat.Matrix) (*Homography, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("homography must be 3x3, got %dx%d", r, c)
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return &h, nil
}

// At returns the value of the homography at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply will transform the given point according to the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// Inverse returns the inverse homography.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return NewHomographyFromDense(&inv)
}

// EstimateHomography fits the homography that maps src onto dst with the normalized direct linear
// transform. At least 4 correspondences are required. The result is scaled so that H(2,2) = 1
// when that entry is not zero.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.Errorf("at least 4 correspondences are needed, got %d", len(src))
	}
	srcN, T1 := normalizePoints(src)
	dstN, T2 := normalizePoints(dst)
	if T1 == nil || T2 == nil {
		return nil, errors.New("points are degenerate")
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize homography system")
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)
	// a rank below 8 means the points do not pin down a unique homography
	if values[7] <= 1e-12*values[0] {
		return nil, errors.New("points are degenerate")
	}
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// denormalize: inv(T2) * Hn * T1
	var t2inv, hd mat.Dense
	if err := t2inv.Inverse(T2); err != nil {
		return nil, errors.Wrap(err, "points are degenerate")
	}
	hd.Mul(&t2inv, hn)
	hd.Mul(&hd, T1)
	if s := hd.At(2, 2); math.Abs(s) > 1e-15 {
		hd.Scale(1/s, &hd)
	}
	return NewHomographyFromDense(&hd)
}
