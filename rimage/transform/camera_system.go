package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// StereoCameraSystem stores the models of two calibrated cameras and the rigid transform that
// maps points from the left camera frame into the right camera frame.
type StereoCameraSystem struct {
	Left        *PinholeCameraModel `json:"left"`
	Right       *PinholeCameraModel `json:"right"`
	Rotation    r3.Vector           `json:"rotation_vector"`
	Translation r3.Vector           `json:"translation"`
}

// NewStereoCameraSystem builds the system from camera matrices, distortion coefficients in
// (k1, k2, p1, p2, k3) order and the extrinsics.
func NewStereoCameraSystem(
	k1 mat.Matrix, d1 []float64,
	k2 mat.Matrix, d2 []float64,
	rot mat.Matrix, t r3.Vector,
	width, height int,
) (*StereoCameraSystem, error) {
	left, err := newCameraModel(k1, d1, width, height)
	if err != nil {
		return nil, errors.Wrap(err, "left camera")
	}
	right, err := newCameraModel(k2, d2, width, height)
	if err != nil {
		return nil, errors.Wrap(err, "right camera")
	}
	return &StereoCameraSystem{
		Left:        left,
		Right:       right,
		Rotation:    RotationVector(rot),
		Translation: t,
	}, nil
}

func newCameraModel(k mat.Matrix, d []float64, width, height int) (*PinholeCameraModel, error) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromCameraMatrix(k, width, height)
	if err != nil {
		return nil, err
	}
	distortion, err := NewBrownConradyFromCoefficients(d)
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, nil
}

// Baseline is the distance between the two optical centers, in object point units.
func (s *StereoCameraSystem) Baseline() float64 {
	return s.Translation.Norm()
}

// Extrinsics returns the right camera pose relative to the left camera.
func (s *StereoCameraSystem) Extrinsics() *CamPose {
	return NewCamPoseFromRotationVector(s.Rotation, s.Translation)
}
