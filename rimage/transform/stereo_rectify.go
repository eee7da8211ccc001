package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Rectification holds the rectifying rotation and the new projection matrix of each camera, and
// the matrix that maps (x, y, disparity, 1) to homogeneous 3D points in the rectified camera-1 frame.
type Rectification struct {
	R1, R2 *mat.Dense
	P1, P2 *mat.Dense
	Q      *mat.Dense
}

// StereoRectify computes the rectification of a calibrated stereo pair so that epipolar lines
// become image rows (or columns for a vertical rig). The rotation between the cameras is split in
// half, the baseline is aligned with the x axis (or y when the cameras are stacked), both cameras
// get the smaller of the two focal lengths, shrunk when there is barrel distortion, and a principal
// point shared by both cameras so that points at infinity have zero disparity. Distortion
// coefficients are in (k1, k2, p1, p2, k3) order.
func StereoRectify(
	k1 mat.Matrix, d1 []float64,
	k2 mat.Matrix, d2 []float64,
	imageSize image.Point,
	rot mat.Matrix, t r3.Vector,
) (*Rectification, error) {
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", imageSize)
	}
	if t.Norm() == 0 {
		return nil, errors.New("cameras share the same optical center")
	}

	// rotate each camera half way towards the other
	om := RotationVector(rot).Mul(-0.5)
	rr := Rodrigues(om)
	tHalf := mulVec(rr, t)

	idx := 0
	if math.Abs(tHalf.X) <= math.Abs(tHalf.Y) {
		idx = 1
	}
	c := component(tHalf, idx)
	var uu r3.Vector
	sign := 1.
	if c < 0 {
		sign = -1
	}
	if idx == 0 {
		uu.X = sign
	} else {
		uu.Y = sign
	}
	// rotate the baseline onto the chosen axis
	ww := tHalf.Cross(uu)
	if nw := ww.Norm(); nw > 0 {
		ww = ww.Mul(math.Acos(math.Abs(c)/tHalf.Norm()) / nw)
	}
	wR := Rodrigues(ww)

	var rect1, rect2 mat.Dense
	rect1.Mul(wR, rr.T())
	rect2.Mul(wR, rr)
	tNew := mulVec(&rect2, t)

	ks := [2]mat.Matrix{k1, k2}
	ds := [2]*BrownConrady{}
	for i, d := range [2][]float64{d1, d2} {
		bc, err := NewBrownConradyFromCoefficients(d)
		if err != nil {
			return nil, err
		}
		ds[i] = bc
	}

	nx, ny := float64(imageSize.X), float64(imageSize.Y)
	other := 1 - idx
	fcNew := math.MaxFloat64
	for i := range ks {
		fc := ks[i].At(other, other)
		if dk1 := ds[i].RadialK1; dk1 < 0 {
			fc *= 1 + dk1*(nx*nx+ny*ny)/(4*fc*fc)
		}
		fcNew = math.Min(fcNew, fc)
	}

	var cc [2]r2.Point
	rects := [2]*mat.Dense{&rect1, &rect2}
	for i := range ks {
		corners := []r2.Point{{X: 0, Y: 0}, {X: nx - 1, Y: 0}, {X: 0, Y: ny - 1}, {X: nx - 1, Y: ny - 1}}
		pp := mat.NewDense(3, 3, []float64{fcNew, 0, 0, 0, fcNew, 0, 0, 0, 1})
		undist, err := UndistortPoints(corners, ks[i], ds[i].Coefficients(), rects[i], pp)
		if err != nil {
			return nil, err
		}
		var avg r2.Point
		for _, p := range undist {
			avg = avg.Add(p)
		}
		avg = avg.Mul(1. / float64(len(undist)))
		cc[i] = r2.Point{X: (nx-1)/2 - avg.X, Y: (ny-1)/2 - avg.Y}
	}
	// zero disparity at infinity
	shared := cc[0].Add(cc[1]).Mul(0.5)
	cc[0], cc[1] = shared, shared

	p1 := mat.NewDense(3, 4, []float64{
		fcNew, 0, cc[0].X, 0,
		0, fcNew, cc[0].Y, 0,
		0, 0, 1, 0,
	})
	p2 := mat.NewDense(3, 4, []float64{
		fcNew, 0, cc[1].X, 0,
		0, fcNew, cc[1].Y, 0,
		0, 0, 1, 0,
	})
	tIdx := component(tNew, idx)
	p2.Set(idx, 3, tIdx*fcNew)

	offset := cc[0].X - cc[1].X
	if idx == 1 {
		offset = cc[0].Y - cc[1].Y
	}
	q := mat.NewDense(4, 4, []float64{
		1, 0, 0, -cc[0].X,
		0, 1, 0, -cc[0].Y,
		0, 0, 0, fcNew,
		0, 0, -1 / tIdx, offset / tIdx,
	})

	return &Rectification{R1: &rect1, R2: &rect2, P1: p1, P2: p2, Q: q}, nil
}

// UndistortPoints maps distorted pixel coordinates of a camera with matrix k and coefficients d
// into the frame rotated by rect and projected with the first three columns of p. A nil rect
// means no rotation and a nil p returns normalized coordinates.
func UndistortPoints(pts []r2.Point, k mat.Matrix, d []float64, rect, p mat.Matrix) ([]r2.Point, error) {
	bc, err := NewBrownConradyFromCoefficients(d)
	if err != nil {
		return nil, err
	}
	inv := bc.Inverse()
	fx, fy := k.At(0, 0), k.At(1, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)
	if fx == 0 || fy == 0 {
		return nil, errors.New("camera matrix has zero focal length")
	}
	if rect == nil {
		rect = eye(3)
	}
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		x, y := inv.Transform((pt.X-cx)/fx, (pt.Y-cy)/fy)
		v := mulVec(rect, r3.Vector{X: x, Y: y, Z: 1})
		if p != nil {
			v = mulVec(p, v)
		}
		out[i] = r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}
	}
	return out, nil
}

func component(v r3.Vector, idx int) float64 {
	switch idx {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
