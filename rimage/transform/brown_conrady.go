package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConrady is the radial and tangential lens distortion model. Transform maps undistorted
// normalized image coordinates to distorted ones.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order
// (rk1, rk2, rk3, tp1, tp2). Missing values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	p := make([]float64, 5)
	copy(p, inp)
	return &BrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// NewBrownConradyFromCoefficients reads distortion coefficients in the (k1, k2, p1, p2, k3)
// order used by calibration files. Missing values are zero.
func NewBrownConradyFromCoefficients(d []float64) (*BrownConrady, error) {
	if len(d) > 5 {
		return nil, errors.Errorf("too many distortion coefficients, expected max 5, got %d", len(d))
	}
	p := make([]float64, 5)
	copy(p, d)
	return &BrownConrady{RadialK1: p[0], RadialK2: p[1], TangentialP1: p[2], TangentialP2: p[3], RadialK3: p[4]}, nil
}

// Coefficients returns the model in (k1, k2, p1, p2, k3) order.
func (bc *BrownConrady) Coefficients() []float64 {
	if bc == nil {
		return make([]float64, 5)
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, v := range bc.Parameters() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return InvalidDistortionError("BrownConrady parameters must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Transform distorts the normalized point (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	return distort(x, y, bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3)
}

// Inverse returns the model that undoes bc.
func (bc *BrownConrady) Inverse() *InverseBrownConrady {
	if bc == nil {
		return nil
	}
	return &InverseBrownConrady{*bc}
}

// jacobian returns the partial derivatives of the distorted point with respect to (x, y).
func (bc *BrownConrady) jacobian(x, y float64) (dxdx, dxdy, dydx, dydy float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	dRadial := 2 * (bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r4)
	p1, p2 := bc.TangentialP1, bc.TangentialP2

	dxdx = radial + x*x*dRadial + 2*p1*y + 6*p2*x
	dxdy = x*y*dRadial + 2*p1*x + 2*p2*y
	dydx = x*y*dRadial + 2*p2*y + 2*p1*x
	dydy = radial + y*y*dRadial + 2*p2*x + 6*p1*y
	return
}

// distort applies the Brown-Conrady model with coefficients in file order.
func distort(x, y, k1, k2, p1, p2, k3 float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	radial := 1 + k1*r2 + k2*r4 + k3*r4*r2
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}
