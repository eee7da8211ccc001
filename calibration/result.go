package calibration

import (
	"image"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/transform"
)

// Result is a complete stereo calibration: both camera models, the transform from camera 1 to
// camera 2, the rectification and the remap tables of both cameras. A published Result is never
// modified.
type Result struct {
	CM1, CM2 *mat.Dense
	// D1 and D2 hold (k1, k2, p1, p2, k3).
	D1, D2 []float64
	R      *mat.Dense
	T      *mat.VecDense
	E, F   *mat.Dense

	R1, R2 *mat.Dense
	P1, P2 *mat.Dense
	Q      *mat.Dense

	ImageSize image.Point
	// MX1 and MY1 give, for every rectified camera-1 pixel, the source pixel to sample. MX2 and
	// MY2 do the same for camera 2.
	MX1, MY1, MX2, MY2 *rimage.RemapTable
}

func checkDims(name string, m mat.Matrix, rows, cols int) error {
	if r, c := m.Dims(); r != rows || c != cols {
		return errors.Errorf("%s must be %dx%d, got %dx%d", name, rows, cols, r, c)
	}
	return nil
}

// Validate checks that every field is present with the expected shape.
func (r *Result) Validate() error {
	for _, m := range []struct {
		name       string
		m          *mat.Dense
		rows, cols int
	}{
		{"CM1", r.CM1, 3, 3}, {"CM2", r.CM2, 3, 3}, {"R", r.R, 3, 3},
		{"E", r.E, 3, 3}, {"F", r.F, 3, 3}, {"R1", r.R1, 3, 3}, {"R2", r.R2, 3, 3},
		{"P1", r.P1, 3, 4}, {"P2", r.P2, 3, 4}, {"Q", r.Q, 4, 4},
	} {
		if m.m == nil {
			return errors.Errorf("%s is missing", m.name)
		}
		if err := checkDims(m.name, m.m, m.rows, m.cols); err != nil {
			return err
		}
	}
	if r.T == nil || r.T.Len() != 3 {
		return errors.New("T must have 3 elements")
	}
	for i, d := range [][]float64{r.D1, r.D2} {
		if len(d) < 4 || len(d) > 5 {
			return errors.Errorf("D%d must have 4 or 5 coefficients, got %d", i+1, len(d))
		}
	}
	if r.ImageSize.X <= 0 || r.ImageSize.Y <= 0 {
		return errors.Errorf("invalid image size %v", r.ImageSize)
	}
	for _, t := range []struct {
		name  string
		table *rimage.RemapTable
	}{{"MX1", r.MX1}, {"MY1", r.MY1}, {"MX2", r.MX2}, {"MY2", r.MY2}} {
		if t.table == nil {
			return errors.Errorf("%s is missing", t.name)
		}
		if t.table.Size() != r.ImageSize || len(t.table.Data) != r.ImageSize.X*r.ImageSize.Y {
			return errors.Errorf("%s is %v, expected %v", t.name, t.table.Size(), r.ImageSize)
		}
	}
	return nil
}

// Equal reports whether every field of r and other holds exactly the same values.
func (r *Result) Equal(other *Result) bool {
	if r == nil || other == nil {
		return r == other
	}
	denseEqual := func(a, b *mat.Dense) bool {
		if a == nil || b == nil {
			return a == b
		}
		ar, ac := a.Dims()
		br, bc := b.Dims()
		if ar != br || ac != bc {
			return false
		}
		for i := 0; i < ar; i++ {
			if !sameFloats(a.RawRowView(i), b.RawRowView(i)) {
				return false
			}
		}
		return true
	}
	pairs := [][2]*mat.Dense{
		{r.CM1, other.CM1}, {r.CM2, other.CM2}, {r.R, other.R}, {r.E, other.E}, {r.F, other.F},
		{r.R1, other.R1}, {r.R2, other.R2}, {r.P1, other.P1}, {r.P2, other.P2}, {r.Q, other.Q},
	}
	for _, p := range pairs {
		if !denseEqual(p[0], p[1]) {
			return false
		}
	}
	if (r.T == nil) != (other.T == nil) ||
		(r.T != nil && !sameFloats(mat.Col(nil, 0, r.T), mat.Col(nil, 0, other.T))) {
		return false
	}
	return sameFloats(r.D1, other.D1) &&
		sameFloats(r.D2, other.D2) &&
		r.ImageSize == other.ImageSize &&
		r.MX1.Equal(other.MX1) && r.MY1.Equal(other.MY1) &&
		r.MX2.Equal(other.MX2) && r.MY2.Equal(other.MY2)
}

// sameFloats compares bit patterns so that NaN equals NaN.
func sameFloats(a, b []float64) bool {
	return slices.EqualFunc(a, b, func(x, y float64) bool {
		return math.Float64bits(x) == math.Float64bits(y)
	})
}

// CameraSystem returns both calibrated cameras and their extrinsics.
func (r *Result) CameraSystem() (*transform.StereoCameraSystem, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return transform.NewStereoCameraSystem(
		r.CM1, r.D1, r.CM2, r.D2, r.R,
		transform.R3FromVector(r.T),
		r.ImageSize.X, r.ImageSize.Y,
	)
}
