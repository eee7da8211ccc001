package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrCalibrationFailed is returned when the stereo solve cannot produce a usable camera model.
var ErrCalibrationFailed = errors.New("stereo calibration failed")

// StereoCalibrationOptions control the Levenberg-Marquardt refinement.
type StereoCalibrationOptions struct {
	// MaxIterations bounds the number of outer iterations.
	MaxIterations int
	// Epsilon stops the solve once the parameter update is smaller than Epsilon relative to the
	// parameter vector.
	Epsilon float64
	// FixK3 keeps the sixth order radial term at zero.
	FixK3 bool
}

// DefaultStereoCalibrationOptions stops after 100 iterations or a relative change of 1e-5.
func DefaultStereoCalibrationOptions() StereoCalibrationOptions {
	return StereoCalibrationOptions{MaxIterations: 100, Epsilon: 1e-5}
}

// StereoCalibration is the result of a joint calibration of two cameras. Both cameras share the
// focal lengths and have no tangential distortion. R and T map points from the camera-1 frame
// into the camera-2 frame.
type StereoCalibration struct {
	K1, K2 *mat.Dense
	// D1 and D2 hold (k1, k2, p1, p2, k3).
	D1, D2 []float64
	R      *mat.Dense
	T      r3.Vector
	E, F   *mat.Dense

	// RMS is the root mean square reprojection error in pixels over every point of both cameras.
	RMS float64
	// ViewErrors holds the per view RMS reprojection error of camera 1 and camera 2.
	ViewErrors [][2]float64
	Iterations int
	// Converged is false when the iteration limit was hit before the epsilon criterion.
	Converged bool
}

// parameter layout of the refinement vector
const (
	paramFx = iota
	paramFy
	paramCx1
	paramCy1
	paramCx2
	paramCy2
	paramK1Cam1
	paramK2Cam1
	paramK3Cam1
	paramK1Cam2
	paramK2Cam2
	paramK3Cam2
	paramOm
	paramT = paramOm + 3
	// paramViews is where the 6 pose values of each view start.
	paramViews = paramT + 3
)

type stereoProblem struct {
	objectPoints [][]r3.Vector
	imagePoints1 [][]r2.Point
	imagePoints2 [][]r2.Point
	nResiduals   int
}

// StereoCalibrate jointly estimates the intrinsics of two cameras and the rigid transform between
// them from views of a planar target (all object points must have Z = 0). Intrinsics start with
// the principal point at the image center and focal lengths from the vanishing point constraints
// of each view's homography; view poses come from the homographies and the initial extrinsics are
// the component-wise median over views. Everything is then refined with Levenberg-Marquardt.
func StereoCalibrate(
	objectPoints [][]r3.Vector,
	imagePoints1, imagePoints2 [][]r2.Point,
	imageSize image.Point,
	opts StereoCalibrationOptions,
) (*StereoCalibration, error) {
	prob, err := newStereoProblem(objectPoints, imagePoints1, imagePoints2, imageSize)
	if err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultStereoCalibrationOptions().MaxIterations
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultStereoCalibrationOptions().Epsilon
	}

	x, err := prob.initialGuess(imageSize)
	if err != nil {
		return nil, err
	}
	fixed := make([]bool, len(x))
	if opts.FixK3 {
		fixed[paramK3Cam1] = true
		fixed[paramK3Cam2] = true
	}

	iterations, converged, err := prob.refine(x, fixed, opts)
	if err != nil {
		return nil, err
	}
	return prob.result(x, iterations, converged)
}

func newStereoProblem(
	objectPoints [][]r3.Vector,
	imagePoints1, imagePoints2 [][]r2.Point,
	imageSize image.Point,
) (*stereoProblem, error) {
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Wrapf(ErrCalibrationFailed, "invalid image size %v", imageSize)
	}
	if len(objectPoints) == 0 {
		return nil, errors.Wrap(ErrCalibrationFailed, "no views")
	}
	if len(objectPoints) != len(imagePoints1) || len(objectPoints) != len(imagePoints2) {
		return nil, errors.Wrapf(ErrCalibrationFailed,
			"sequence lengths differ: %d object, %d camera 1, %d camera 2",
			len(objectPoints), len(imagePoints1), len(imagePoints2))
	}
	prob := &stereoProblem{objectPoints: objectPoints, imagePoints1: imagePoints1, imagePoints2: imagePoints2}
	for i, obj := range objectPoints {
		if len(obj) < 4 {
			return nil, errors.Wrapf(ErrCalibrationFailed, "view %d has %d points, need at least 4", i, len(obj))
		}
		if len(obj) != len(imagePoints1[i]) || len(obj) != len(imagePoints2[i]) {
			return nil, errors.Wrapf(ErrCalibrationFailed, "view %d point counts differ", i)
		}
		for _, p := range obj {
			if p.Z != 0 {
				return nil, errors.Wrapf(ErrCalibrationFailed, "view %d object points are not planar", i)
			}
		}
		prob.nResiduals += 4 * len(obj)
	}
	return prob, nil
}

// initialGuess builds the starting parameter vector.
func (prob *stereoProblem) initialGuess(imageSize image.Point) ([]float64, error) {
	nViews := len(prob.objectPoints)
	homographies := [2][]*Homography{make([]*Homography, nViews), make([]*Homography, nViews)}
	for i, obj := range prob.objectPoints {
		plane := make([]r2.Point, len(obj))
		for j, p := range obj {
			plane[j] = r2.Point{X: p.X, Y: p.Y}
		}
		for cam, pts := range [2][]r2.Point{prob.imagePoints1[i], prob.imagePoints2[i]} {
			h, err := EstimateHomography(plane, pts)
			if err != nil {
				return nil, errors.Wrapf(ErrCalibrationFailed, "view %d camera %d: %v", i, cam+1, err)
			}
			homographies[cam][i] = h
		}
	}

	var intrinsics [2]*PinholeCameraIntrinsics
	for cam := range intrinsics {
		in, err := initIntrinsics(homographies[cam], imageSize)
		if err != nil {
			return nil, errors.Wrapf(ErrCalibrationFailed, "camera %d: %v", cam+1, err)
		}
		intrinsics[cam] = in
	}
	// both cameras share one focal length
	fx := (intrinsics[0].Fx + intrinsics[1].Fx) / 2
	fy := (intrinsics[0].Fy + intrinsics[1].Fy) / 2
	for _, in := range intrinsics {
		in.Fx, in.Fy = fx, fy
	}

	x := make([]float64, paramViews+6*nViews)
	x[paramFx], x[paramFy] = fx, fy
	x[paramCx1], x[paramCy1] = intrinsics[0].Ppx, intrinsics[0].Ppy
	x[paramCx2], x[paramCy2] = intrinsics[1].Ppx, intrinsics[1].Ppy

	oms := [3][]float64{}
	ts := [3][]float64{}
	for i := 0; i < nViews; i++ {
		pose1, err := poseFromHomography(homographies[0][i], intrinsics[0])
		if err != nil {
			return nil, errors.Wrapf(ErrCalibrationFailed, "view %d camera 1: %v", i, err)
		}
		pose2, err := poseFromHomography(homographies[1][i], intrinsics[1])
		if err != nil {
			return nil, errors.Wrapf(ErrCalibrationFailed, "view %d camera 2: %v", i, err)
		}
		om1 := pose1.RotationVector()
		copy(x[paramViews+6*i:], []float64{
			om1.X, om1.Y, om1.Z,
			pose1.Translation.X, pose1.Translation.Y, pose1.Translation.Z,
		})

		rel := pose2.RelativeTo(pose1)
		om := rel.RotationVector()
		for k, v := range []float64{om.X, om.Y, om.Z} {
			oms[k] = append(oms[k], v)
		}
		for k, v := range []float64{rel.Translation.X, rel.Translation.Y, rel.Translation.Z} {
			ts[k] = append(ts[k], v)
		}
	}
	for k := 0; k < 3; k++ {
		om, err := stats.Median(oms[k])
		if err != nil {
			return nil, errors.Wrap(ErrCalibrationFailed, err.Error())
		}
		t, err := stats.Median(ts[k])
		if err != nil {
			return nil, errors.Wrap(ErrCalibrationFailed, err.Error())
		}
		x[paramOm+k] = om
		x[paramT+k] = t
	}
	return x, nil
}

// initIntrinsics estimates the focal lengths of a camera from the homographies of a planar target,
// assuming the principal point is at the center of the image and there is no skew.
func initIntrinsics(homographies []*Homography, imageSize image.Point) (*PinholeCameraIntrinsics, error) {
	cx := float64(imageSize.X-1) * 0.5
	cy := float64(imageSize.Y-1) * 0.5
	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, hom := range homographies {
		h := [3][3]float64(*hom)
		for j := 0; j < 3; j++ {
			h[0][j] -= h[2][j] * cx
			h[1][j] -= h[2][j] * cy
		}
		hCol := r3.Vector{X: h[0][0], Y: h[1][0], Z: h[2][0]}
		vCol := r3.Vector{X: h[0][1], Y: h[1][1], Z: h[2][1]}
		d1 := hCol.Add(vCol).Mul(0.5)
		d2 := hCol.Sub(vCol).Mul(0.5)
		if hCol.Norm() == 0 || vCol.Norm() == 0 || d1.Norm() == 0 || d2.Norm() == 0 {
			return nil, errors.New("degenerate homography")
		}
		hCol, vCol, d1, d2 = hCol.Normalize(), vCol.Normalize(), d1.Normalize(), d2.Normalize()

		a.SetRow(2*i, []float64{hCol.X * vCol.X, hCol.Y * vCol.Y})
		a.SetRow(2*i+1, []float64{d1.X * d2.X, d1.Y * d2.Y})
		b.SetVec(2*i, -hCol.Z*vCol.Z)
		b.SetVec(2*i+1, -d1.Z*d2.Z)
	}
	var f mat.VecDense
	if err := f.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(err, "cannot estimate focal length")
	}
	if f.AtVec(0) == 0 || f.AtVec(1) == 0 {
		return nil, errors.New("cannot estimate focal length from fronto-parallel views")
	}
	fx := math.Sqrt(math.Abs(1 / f.AtVec(0)))
	fy := math.Sqrt(math.Abs(1 / f.AtVec(1)))
	if !isFinite(fx) || !isFinite(fy) {
		return nil, errors.New("focal length is not finite")
	}
	return &PinholeCameraIntrinsics{
		Width: imageSize.X, Height: imageSize.Y,
		Fx: fx, Fy: fy, Ppx: cx, Ppy: cy,
	}, nil
}

// poseFromHomography recovers the pose of a Z = 0 plane from its homography into a camera with no
// distortion.
func poseFromHomography(hom *Homography, intrinsics *PinholeCameraIntrinsics) (*CamPose, error) {
	var kinv, hn mat.Dense
	if err := kinv.Inverse(intrinsics.GetCameraMatrix()); err != nil {
		return nil, err
	}
	hn.Mul(&kinv, hom.Dense())
	h1 := R3FromVector(hn.ColView(0))
	h2 := R3FromVector(hn.ColView(1))
	h3 := R3FromVector(hn.ColView(2))
	norm := (h1.Norm() + h2.Norm()) / 2
	if norm == 0 {
		return nil, errors.New("degenerate homography")
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		// the target must be in front of the camera
		lambda = -lambda
	}
	c1, c2 := h1.Mul(lambda), h2.Mul(lambda)
	c3 := c1.Cross(c2)
	rot := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	})
	return NewCamPose(nearestRotation(rot), h3.Mul(lambda)), nil
}

// projector holds the model of one camera while evaluating residuals.
type projector struct {
	fx, fy, cx, cy float64
	k1, k2, k3     float64
}

func (p projector) project(pc r3.Vector) r2.Point {
	x, y := pc.X/pc.Z, pc.Y/pc.Z
	xd, yd := distort(x, y, p.k1, p.k2, 0, 0, p.k3)
	return r2.Point{X: p.fx*xd + p.cx, Y: p.fy*yd + p.cy}
}

func cameraProjectors(x []float64) (projector, projector) {
	return projector{x[paramFx], x[paramFy], x[paramCx1], x[paramCy1], x[paramK1Cam1], x[paramK2Cam1], x[paramK3Cam1]},
		projector{x[paramFx], x[paramFy], x[paramCx2], x[paramCy2], x[paramK1Cam2], x[paramK2Cam2], x[paramK3Cam2]}
}

// residuals writes the reprojection errors of every view, camera 1 first, into dst.
func (prob *stereoProblem) residuals(dst, x []float64) {
	cam1, cam2 := cameraProjectors(x)
	rot := Rodrigues(r3.Vector{X: x[paramOm], Y: x[paramOm+1], Z: x[paramOm+2]})
	t := r3.Vector{X: x[paramT], Y: x[paramT+1], Z: x[paramT+2]}
	k := 0
	for i, obj := range prob.objectPoints {
		v := x[paramViews+6*i:]
		viewRot := Rodrigues(r3.Vector{X: v[0], Y: v[1], Z: v[2]})
		viewT := r3.Vector{X: v[3], Y: v[4], Z: v[5]}
		for j, p := range obj {
			pc1 := mulVec(viewRot, p).Add(viewT)
			pc2 := mulVec(rot, pc1).Add(t)
			u1 := cam1.project(pc1)
			u2 := cam2.project(pc2)
			dst[k] = u1.X - prob.imagePoints1[i][j].X
			dst[k+1] = u1.Y - prob.imagePoints1[i][j].Y
			dst[k+2] = u2.X - prob.imagePoints2[i][j].X
			dst[k+3] = u2.Y - prob.imagePoints2[i][j].Y
			k += 4
		}
	}
}

// refine runs Levenberg-Marquardt on x in place. It returns the number of iterations and whether
// the epsilon criterion stopped the solve.
func (prob *stereoProblem) refine(x []float64, fixed []bool, opts StereoCalibrationOptions) (int, bool, error) {
	n := len(x)
	r := make([]float64, prob.nResiduals)
	prob.residuals(r, x)
	cost := floats.Dot(r, r)
	if !isFinite(cost) {
		return 0, false, errors.Wrap(ErrCalibrationFailed, "initial guess does not project")
	}

	jac := mat.NewDense(prob.nResiduals, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Concurrent: true}
	xNew := make([]float64, n)
	rNew := make([]float64, prob.nResiduals)
	lambda := 1e-3

	iterations := 0
	for iterations < opts.MaxIterations {
		iterations++
		fd.Jacobian(jac, prob.residuals, x, settings)
		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(len(r), r))

		accepted := false
		var step float64
		for attempt := 0; attempt < 12 && !accepted; attempt++ {
			delta, ok := dampedStep(&jtj, &grad, lambda, fixed)
			if !ok {
				lambda *= 10
				continue
			}
			for i := range x {
				xNew[i] = x[i] + delta[i]
			}
			prob.residuals(rNew, xNew)
			newCost := floats.Dot(rNew, rNew)
			if isFinite(newCost) && newCost < cost {
				accepted = true
				step = floats.Norm(delta, 2)
				copy(x, xNew)
				copy(r, rNew)
				cost = newCost
				lambda = math.Max(lambda/10, 1e-12)
			} else {
				lambda *= 10
			}
		}
		if !accepted {
			// no downhill step left
			return iterations, true, checkParameters(x)
		}
		// ignore tiny steps taken under heavy damping
		if step <= opts.Epsilon*floats.Norm(x, 2) && lambda < 1 {
			return iterations, true, checkParameters(x)
		}
	}
	return iterations, false, checkParameters(x)
}

// dampedStep solves (JtJ + lambda*diag(JtJ)) delta = -grad for the free parameters.
func dampedStep(jtj *mat.SymDense, grad *mat.VecDense, lambda float64, fixed []bool) ([]float64, bool) {
	n := jtj.SymmetricDim()
	a := mat.NewSymDense(n, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if fixed[i] {
			a.SetSym(i, i, 1)
			continue
		}
		for j := i; j < n; j++ {
			if fixed[j] {
				continue
			}
			a.SetSym(i, j, jtj.At(i, j))
		}
		d := jtj.At(i, i)
		a.SetSym(i, i, d+lambda*math.Max(d, 1e-9))
		b.SetVec(i, -grad.AtVec(i))
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, false
	}
	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, b); err != nil {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = delta.AtVec(i)
		if !isFinite(out[i]) {
			return nil, false
		}
	}
	return out, true
}

func checkParameters(x []float64) error {
	for i, v := range x {
		if !isFinite(v) {
			return errors.Wrapf(ErrCalibrationFailed, "parameter %d is not finite", i)
		}
	}
	if x[paramFx] <= 0 || x[paramFy] <= 0 {
		return errors.Wrapf(ErrCalibrationFailed, "non-positive focal length (%v, %v)", x[paramFx], x[paramFy])
	}
	return nil
}

// result converts the refined parameter vector.
func (prob *stereoProblem) result(x []float64, iterations int, converged bool) (*StereoCalibration, error) {
	cam1, cam2 := cameraProjectors(x)
	k1 := mat.NewDense(3, 3, []float64{cam1.fx, 0, cam1.cx, 0, cam1.fy, cam1.cy, 0, 0, 1})
	k2 := mat.NewDense(3, 3, []float64{cam2.fx, 0, cam2.cx, 0, cam2.fy, cam2.cy, 0, 0, 1})
	if math.Abs(mat.Det(k1)) < 1e-12 || math.Abs(mat.Det(k2)) < 1e-12 {
		return nil, errors.Wrap(ErrCalibrationFailed, "camera matrix is singular")
	}
	rot := Rodrigues(r3.Vector{X: x[paramOm], Y: x[paramOm+1], Z: x[paramOm+2]})
	t := r3.Vector{X: x[paramT], Y: x[paramT+1], Z: x[paramT+2]}
	e := EssentialMatrix(rot, t)
	f, err := FundamentalMatrix(k1, k2, e)
	if err != nil {
		return nil, errors.Wrap(ErrCalibrationFailed, err.Error())
	}

	res := &StereoCalibration{
		K1:         k1,
		K2:         k2,
		D1:         []float64{cam1.k1, cam1.k2, 0, 0, cam1.k3},
		D2:         []float64{cam2.k1, cam2.k2, 0, 0, cam2.k3},
		R:          rot,
		T:          t,
		E:          e,
		F:          f,
		Iterations: iterations,
		Converged:  converged,
	}

	r := make([]float64, prob.nResiduals)
	prob.residuals(r, x)
	k := 0
	total := 0.
	points := 0
	res.ViewErrors = make([][2]float64, len(prob.objectPoints))
	for i, obj := range prob.objectPoints {
		var sq [2]float64
		for range obj {
			sq[0] += r[k]*r[k] + r[k+1]*r[k+1]
			sq[1] += r[k+2]*r[k+2] + r[k+3]*r[k+3]
			k += 4
		}
		res.ViewErrors[i] = [2]float64{math.Sqrt(sq[0] / float64(len(obj))), math.Sqrt(sq[1] / float64(len(obj)))}
		total += sq[0] + sq[1]
		points += 2 * len(obj)
	}
	res.RMS = math.Sqrt(total / float64(points))
	return res, nil
}

// ProjectPoints projects object points seen from pose through a camera with the given matrix and
// distortion coefficients in (k1, k2, p1, p2, k3) order.
func ProjectPoints(objectPoints []r3.Vector, pose *CamPose, k mat.Matrix, d []float64) []r2.Point {
	coeffs := make([]float64, 5)
	copy(coeffs, d)
	out := make([]r2.Point, len(objectPoints))
	for i, p := range objectPoints {
		pc := pose.Transform(p)
		xd, yd := distort(pc.X/pc.Z, pc.Y/pc.Z, coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4])
		out[i] = r2.Point{
			X: k.At(0, 0)*xd + k.At(0, 1)*yd + k.At(0, 2),
			Y: k.At(1, 1)*yd + k.At(1, 2),
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
