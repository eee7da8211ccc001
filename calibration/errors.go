// Package calibration runs a stereo calibration session: it accumulates chessboard corners seen
// by two cameras, solves both camera models and the rectification, persists the result and
// rectifies new image pairs with it.
package calibration

import "github.com/pkg/errors"

// Errors returned by this package. Callers test for them with errors.Is.
var (
	// ErrIO means a parameter file could not be read or written.
	ErrIO = errors.New("calibration file I/O failed")
	// ErrFormat means a parameter file lacks a field or holds a malformed one.
	ErrFormat = errors.New("malformed calibration file")
	// ErrInsufficientData means there are not enough observations to solve.
	ErrInsufficientData = errors.New("not enough observations")
	// ErrSolverDivergence means the solve failed or produced degenerate cameras.
	ErrSolverDivergence = errors.New("calibration solver diverged")
	// ErrSizeMismatch means an image does not have the calibrated size.
	ErrSizeMismatch = errors.New("image size does not match calibration")
	// ErrNotAccumulating means an observation call was made outside a session.
	ErrNotAccumulating = errors.New("no calibration session in progress")
	// ErrInvalidPattern means a session was started with an unusable pattern or image size.
	ErrInvalidPattern = errors.New("invalid calibration pattern")
	// ErrNoResult means no calibration has been solved or loaded.
	ErrNoResult = errors.New("no calibration result")
)
