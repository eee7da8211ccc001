package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/transform"
)

// Report describes how well a solve fits its observations.
type Report struct {
	// RMS is the reprojection error in pixels over every corner of both cameras.
	RMS float64
	// ViewErrors holds the RMS reprojection error of each view in camera 1 and camera 2.
	ViewErrors [][2]float64
	Iterations int
	// Converged is false when the solve stopped at the iteration limit.
	Converged bool
	Views     int
	// EpipolarError is the mean distance in pixels between an undistorted corner and the epipolar
	// line of its match under the solved fundamental matrix.
	EpipolarError float64
}

// A Solver turns matched corner observations into a complete Result.
type Solver interface {
	Solve(
		objectPoints [][]r3.Vector,
		imagePoints1, imagePoints2 [][]r2.Point,
		imageSize image.Point,
	) (*Result, *Report, error)
}

// SolverOptions configure a StereoSolver.
type SolverOptions struct {
	MaxIterations int
	Epsilon       float64
	FixK3         bool
	// MinViews is the fewest views a solve accepts.
	MinViews int
}

// DefaultSolverOptions stops after 100 iterations or a relative change of 1e-5 and accepts a
// single view.
func DefaultSolverOptions() SolverOptions {
	calOpts := transform.DefaultStereoCalibrationOptions()
	return SolverOptions{
		MaxIterations: calOpts.MaxIterations,
		Epsilon:       calOpts.Epsilon,
		MinViews:      1,
	}
}

// StereoSolver jointly calibrates both cameras, rectifies the pair and builds the remap tables.
type StereoSolver struct {
	opts   SolverOptions
	logger logging.Logger
}

// NewStereoSolver returns a StereoSolver.
func NewStereoSolver(opts SolverOptions, logger logging.Logger) *StereoSolver {
	if opts.MinViews < 1 {
		opts.MinViews = 1
	}
	return &StereoSolver{opts: opts, logger: logger}
}

// Solve implements Solver.
func (ss *StereoSolver) Solve(
	objectPoints [][]r3.Vector,
	imagePoints1, imagePoints2 [][]r2.Point,
	imageSize image.Point,
) (*Result, *Report, error) {
	if len(imagePoints1) != len(objectPoints) || len(imagePoints2) != len(objectPoints) {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "sequence lengths differ: %d object, %d and %d image",
			len(objectPoints), len(imagePoints1), len(imagePoints2))
	}
	if len(objectPoints) < ss.opts.MinViews {
		return nil, nil, errors.Wrapf(ErrInsufficientData, "%d views, need %d", len(objectPoints), ss.opts.MinViews)
	}

	cal, err := transform.StereoCalibrate(objectPoints, imagePoints1, imagePoints2, imageSize,
		transform.StereoCalibrationOptions{
			MaxIterations: ss.opts.MaxIterations,
			Epsilon:       ss.opts.Epsilon,
			FixK3:         ss.opts.FixK3,
		})
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "%v", err)
	}
	report := &Report{
		RMS:        cal.RMS,
		ViewErrors: cal.ViewErrors,
		Iterations: cal.Iterations,
		Converged:  cal.Converged,
		Views:      len(objectPoints),
	}
	// F relates distortion free points, so the corners are undistorted into their own camera first
	und1, err := transform.UndistortPoints(lo.Flatten(imagePoints1), cal.K1, cal.D1, nil, cal.K1)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "camera 1 undistortion: %v", err)
	}
	und2, err := transform.UndistortPoints(lo.Flatten(imagePoints2), cal.K2, cal.D2, nil, cal.K2)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "camera 2 undistortion: %v", err)
	}
	if report.EpipolarError, err = transform.EpipolarError(cal.F, und1, und2); err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "epipolar check: %v", err)
	}
	ss.logger.Debugw("stereo calibration solved",
		"views", report.Views, "rms", report.RMS, "iterations", report.Iterations, "converged", report.Converged,
		"epipolar_error", report.EpipolarError)
	if !cal.Converged {
		ss.logger.Warnw("stereo calibration stopped at the iteration limit", "iterations", cal.Iterations)
	}

	rect, err := transform.StereoRectify(cal.K1, cal.D1, cal.K2, cal.D2, imageSize, cal.R, cal.T)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "rectification: %v", err)
	}
	mx1, my1, err := transform.InitUndistortRectifyMap(cal.K1, cal.D1, rect.R1, rect.P1, imageSize)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "camera 1 remap: %v", err)
	}
	mx2, my2, err := transform.InitUndistortRectifyMap(cal.K2, cal.D2, rect.R2, rect.P2, imageSize)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrSolverDivergence, "camera 2 remap: %v", err)
	}

	return &Result{
		CM1:       cal.K1,
		CM2:       cal.K2,
		D1:        cal.D1,
		D2:        cal.D2,
		R:         cal.R,
		T:         transform.VecDenseFromR3(cal.T),
		E:         cal.E,
		F:         cal.F,
		R1:        rect.R1,
		R2:        rect.R2,
		P1:        rect.P1,
		P2:        rect.P2,
		Q:         rect.Q,
		ImageSize: imageSize,
		MX1:       mx1,
		MY1:       my1,
		MX2:       mx2,
		MY2:       my2,
	}, report, nil
}
