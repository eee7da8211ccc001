package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EssentialMatrix returns E = [T]x * R for the extrinsics that map camera-1 points into camera 2.
func EssentialMatrix(rot mat.Matrix, t r3.Vector) *mat.Dense {
	var e mat.Dense
	e.Mul(skew(t), rot)
	return &e
}

// FundamentalMatrix returns F = K2^-T * E * K1^-1, scaled so that F(2,2) = 1 when that entry is
// not zero.
func FundamentalMatrix(k1, k2, essMat mat.Matrix) (*mat.Dense, error) {
	var k1inv, k2inv, f mat.Dense
	if err := k1inv.Inverse(k1); err != nil {
		return nil, errors.Wrap(err, "camera matrix 1 is singular")
	}
	if err := k2inv.Inverse(k2); err != nil {
		return nil, errors.Wrap(err, "camera matrix 2 is singular")
	}
	f.Mul(k2inv.T(), essMat)
	f.Mul(&f, &k1inv)
	if s := f.At(2, 2); math.Abs(s) > 1e-15 {
		f.Scale(1/s, &f)
	}
	return &f, nil
}

// Convert2DPointsToHomogeneousPoints converts float64 image coordinates to homogeneous float64 coordinates.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// EpipolarError returns the mean distance, in pixels, between each point and the epipolar line of
// its match, measured in both images. F maps points of the first image to lines of the second.
func EpipolarError(f mat.Matrix, pts1, pts2 []r2.Point) (float64, error) {
	if len(pts1) != len(pts2) {
		return 0, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) == 0 {
		return 0, nil
	}
	h1 := Convert2DPointsToHomogeneousPoints(pts1)
	h2 := Convert2DPointsToHomogeneousPoints(pts2)
	var ft mat.Dense
	ft.CloneFrom(f.T())
	total := 0.
	for i := range h1 {
		line2 := mulVec(f, h1[i])
		line1 := mulVec(&ft, h2[i])
		total += lineDistance(line2, h2[i]) + lineDistance(line1, h1[i])
	}
	return total / float64(2*len(h1)), nil
}

// lineDistance returns the distance from the homogeneous point p to the line l.
func lineDistance(l, p r3.Vector) float64 {
	n := math.Hypot(l.X, l.Y)
	if n == 0 {
		return 0
	}
	return math.Abs(l.Dot(p)) / n
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	// computer centroid of points
	mu := r2.Point{X: 0, Y: 0}

	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	if d == 0 {
		return pts, nil
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	// firstly create diag matrix. Next fill new sigma matrix with zeros
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}
