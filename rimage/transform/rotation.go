package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rodrigues converts a rotation vector (axis scaled by angle in radians) into a 3x3 rotation matrix.
func Rodrigues(om r3.Vector) *mat.Dense {
	theta := om.Norm()
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{
			1, -om.Z, om.Y,
			om.Z, 1, -om.X,
			-om.Y, om.X, 1,
		})
	}
	k := om.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	// 1 - cos(theta) loses precision for small angles
	c1 := 2 * math.Pow(math.Sin(theta/2), 2)
	return mat.NewDense(3, 3, []float64{
		c + c1*k.X*k.X, c1*k.X*k.Y - s*k.Z, c1*k.X*k.Z + s*k.Y,
		c1*k.Y*k.X + s*k.Z, c + c1*k.Y*k.Y, c1*k.Y*k.Z - s*k.X,
		c1*k.Z*k.X - s*k.Y, c1*k.Z*k.Y + s*k.X, c + c1*k.Z*k.Z,
	})
}

// RotationVector converts a 3x3 rotation matrix into its rotation vector. The input is first
// projected onto the closest orthonormal matrix.
func RotationVector(rot mat.Matrix) r3.Vector {
	R := nearestRotation(rot)
	r := r3.Vector{
		X: R.At(2, 1) - R.At(1, 2),
		Y: R.At(0, 2) - R.At(2, 0),
		Z: R.At(1, 0) - R.At(0, 1),
	}
	s := math.Sqrt((r.X*r.X + r.Y*r.Y + r.Z*r.Z) * 0.25)
	c := (R.At(0, 0) + R.At(1, 1) + R.At(2, 2) - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	if s >= 1e-5 {
		return r.Mul(theta / (2 * s))
	}
	if c > 0 {
		return r3.Vector{}
	}
	// angle close to pi: recover the axis from the symmetric part
	r = r3.Vector{
		X: math.Sqrt(math.Max((R.At(0, 0)+1)*0.5, 0)),
		Y: math.Sqrt(math.Max((R.At(1, 1)+1)*0.5, 0)),
		Z: math.Sqrt(math.Max((R.At(2, 2)+1)*0.5, 0)),
	}
	if R.At(0, 1) < 0 {
		r.Y = -r.Y
	}
	if R.At(0, 2) < 0 {
		r.Z = -r.Z
	}
	if math.Abs(r.X) < math.Abs(r.Y) && math.Abs(r.X) < math.Abs(r.Z) && (R.At(1, 2) > 0) != (r.Y*r.Z > 0) {
		r.Z = -r.Z
	}
	return r.Mul(theta / r.Norm())
}

// nearestRotation returns U*V^T from the SVD of m, flipped to a proper rotation when needed.
func nearestRotation(m mat.Matrix) *mat.Dense {
	mats := performSVD(mat.DenseCopyOf(m))
	if mats == nil {
		return mat.DenseCopyOf(m)
	}
	var R mat.Dense
	R.Mul(mats.U, mats.VT)
	if mat.Det(&R) < 0 {
		flip := eye(3)
		flip.Set(2, 2, -1)
		R.Mul(mats.U, flip)
		R.Mul(&R, mats.VT)
	}
	return &R
}

// IsRotation reports whether m is orthonormal with determinant +1 within tol.
func IsRotation(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return false
	}
	var prod mat.Dense
	prod.Mul(m, m.T())
	if !mat.EqualApprox(&prod, eye(3), tol) {
		return false
	}
	return math.Abs(mat.Det(m)-1) < tol
}

// skew returns the cross product matrix [v]x such that [v]x * w = v x w.
func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// mulVec returns m * v for a 3x3 matrix.
func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// VecDenseFromR3 copies v into a 3-vector.
func VecDenseFromR3(v r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// R3FromVector reads the first three entries of v.
func R3FromVector(v mat.Vector) r3.Vector {
	return r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
}
