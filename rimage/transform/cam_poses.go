package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation. It maps points
// from a reference frame into the camera frame: X_cam = Rotation * X + Translation.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewCamPose creates a pose from a rotation matrix and a translation.
func NewCamPose(rot mat.Matrix, t r3.Vector) *CamPose {
	pose := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pose.Set(i, j, rot.At(i, j))
		}
	}
	pose.Set(0, 3, t.X)
	pose.Set(1, 3, t.Y)
	pose.Set(2, 3, t.Z)
	return NewCamPoseFromMat(pose)
}

// NewCamPoseFromRotationVector creates a pose from a rotation vector and a translation.
func NewCamPoseFromRotationVector(om, t r3.Vector) *CamPose {
	return NewCamPose(Rodrigues(om), t)
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	U3 := pose.ColView(3)
	t := r3.Vector{X: U3.AtVec(0), Y: U3.AtVec(1), Z: U3.AtVec(2)}
	rot := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// Transform maps p into the camera frame.
func (cp *CamPose) Transform(p r3.Vector) r3.Vector {
	return mulVec(cp.Rotation, p).Add(cp.Translation)
}

// Compose returns the pose that applies cp first and then next.
func (cp *CamPose) Compose(next *CamPose) *CamPose {
	var rot mat.Dense
	rot.Mul(next.Rotation, cp.Rotation)
	return NewCamPose(&rot, next.Transform(cp.Translation))
}

// RelativeTo returns the pose of this camera relative to ref, so that ref.Compose(result) == cp.
func (cp *CamPose) RelativeTo(ref *CamPose) *CamPose {
	var rot mat.Dense
	rot.Mul(cp.Rotation, ref.Rotation.T())
	return NewCamPose(&rot, cp.Translation.Sub(mulVec(&rot, ref.Translation)))
}

// RotationVector returns the rotation part as a rotation vector.
func (cp *CamPose) RotationVector() r3.Vector {
	return RotationVector(cp.Rotation)
}
