package transform

import "github.com/pkg/errors"

// InverseBrownConrady undoes a Brown-Conrady distortion: Transform takes distorted normalized
// coordinates and returns the undistorted ones, solved with Newton-Raphson.
type InverseBrownConrady struct {
	Forward BrownConrady `json:"forward"`
}

// NewInverseBrownConrady takes the parameters of the forward model, in the order returned by
// BrownConrady.Parameters.
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	bc, err := NewBrownConrady(inp)
	if err != nil {
		return nil, err
	}
	return bc.Inverse(), nil
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return errors.Wrap(ibc.Forward.CheckValid(), "inverse of")
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the forward model.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	if ibc == nil {
		return []float64{}
	}
	return ibc.Forward.Parameters()
}

// Transform finds the undistorted point that the forward model sends to (xd, yd).
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}
	const (
		maxIterations = 20
		tolerance     = 1e-12
	)
	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		xEst, yEst := ibc.Forward.Transform(xu, yu)
		errX, errY := xEst-xd, yEst-yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}
		a, b, c, d := ibc.Forward.jacobian(xu, yu)
		det := a*d - b*c
		if det == 0 {
			break
		}
		xu -= (d*errX - b*errY) / det
		yu -= (-c*errX + a*errY) / det
	}
	return xu, yu
}
