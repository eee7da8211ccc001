package calibration

import (
	"image"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/stereocal/logging"
)

// State is the phase of an Accumulator.
type State int

// Accumulator states.
const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Session is the set of views collected since the last Start. The three sequences always have
// Successes entries.
type Session struct {
	Nx, Ny       int
	SquareSize   float64
	ImageSize    image.Point
	Successes    int
	ObjectPoints [][]r3.Vector
	ImagePoints1 [][]r2.Point
	ImagePoints2 [][]r2.Point
}

func (s *Session) clone() *Session {
	out := *s
	out.ObjectPoints = append([][]r3.Vector(nil), s.ObjectPoints...)
	out.ImagePoints1 = append([][]r2.Point(nil), s.ImagePoints1...)
	out.ImagePoints2 = append([][]r2.Point(nil), s.ImagePoints2...)
	return &out
}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// WithMetricObjectPoints scales object points by the square size, so that the solved translation
// is in the unit of the square size instead of in squares.
func WithMetricObjectPoints() AccumulatorOption {
	return func(a *Accumulator) {
		a.metric = true
	}
}

// Accumulator collects chessboard views from two cameras and solves them into the Store.
type Accumulator struct {
	detector *CornerDetector
	solver   Solver
	store    *Store
	metric   bool
	logger   logging.Logger

	mu      sync.Mutex
	state   State
	session *Session
}

// NewAccumulator returns an idle Accumulator.
func NewAccumulator(
	detector *CornerDetector,
	solver Solver,
	store *Store,
	logger logging.Logger,
	opts ...AccumulatorOption,
) *Accumulator {
	a := &Accumulator{detector: detector, solver: solver, store: store, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins a new session for a board of nx by ny inner corners, dropping any previous one.
func (a *Accumulator) Start(nx, ny int, squareSize float64, imageSize image.Point) error {
	if nx <= 0 || ny <= 0 {
		return errors.Wrapf(ErrInvalidPattern, "pattern must be positive, got %dx%d", nx, ny)
	}
	if !(squareSize > 0) {
		return errors.Wrapf(ErrInvalidPattern, "square size must be positive, got %v", squareSize)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return errors.Wrapf(ErrInvalidPattern, "image size must be positive, got %v", imageSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Accumulating
	a.session = &Session{Nx: nx, Ny: ny, SquareSize: squareSize, ImageSize: imageSize}
	a.logger.Debugw("calibration session started", "nx", nx, "ny", ny, "square_size", squareSize, "size", imageSize)
	return nil
}

// Compute detects the board in both images and records the view when both detections succeed.
func (a *Accumulator) Compute(img1, img2 image.Image, isGrayscale bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Accumulating {
		return false, ErrNotAccumulating
	}
	s := a.session
	for _, img := range []image.Image{img1, img2} {
		if size := img.Bounds().Size(); size != s.ImageSize {
			return false, errors.Wrapf(ErrSizeMismatch, "image is %v, session expects %v", size, s.ImageSize)
		}
	}
	pattern := image.Point{s.Nx, s.Ny}
	corners1, found1 := a.detector.Detect(img1, isGrayscale, pattern, SurfaceLeft)
	corners2, found2 := a.detector.Detect(img2, isGrayscale, pattern, SurfaceRight)
	if !found1 || !found2 {
		a.logger.Debugw("chessboard not found in both images", "left", found1, "right", found2)
		return false, nil
	}
	s.ObjectPoints = append(s.ObjectPoints, a.objectPoints(s))
	s.ImagePoints1 = append(s.ImagePoints1, corners1)
	s.ImagePoints2 = append(s.ImagePoints2, corners2)
	s.Successes++
	return true, nil
}

// objectPoints places corner i at (i / nx, i % nx, 0).
func (a *Accumulator) objectPoints(s *Session) []r3.Vector {
	scale := 1.
	if a.metric {
		scale = s.SquareSize
	}
	pts := make([]r3.Vector, s.Nx*s.Ny)
	for i := range pts {
		pts[i] = r3.Vector{X: scale * float64(i/s.Nx), Y: scale * float64(i%s.Nx)}
	}
	return pts
}

// End solves the session and publishes the result into the Store. On failure the session is kept
// so that more views can be added before trying again.
func (a *Accumulator) End() (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Accumulating {
		return nil, ErrNotAccumulating
	}
	s := a.session
	if s.Successes == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "no view contained the chessboard in both images")
	}
	result, report, err := a.solver.Solve(s.ObjectPoints, s.ImagePoints1, s.ImagePoints2, s.ImageSize)
	if err != nil {
		return nil, errors.Wrapf(err, "solving %d views", s.Successes)
	}
	a.store.SetResult(result)
	a.state = Idle
	a.session = nil
	if report != nil {
		a.logger.Infow("calibration complete", "views", s.Successes, "rms", report.RMS)
	}
	return report, nil
}

// Successes returns the number of views recorded in the current session.
func (a *Accumulator) Successes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return 0
	}
	return a.session.Successes
}

// State returns the current state.
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Session returns a copy of the current session, or nil when idle.
func (a *Accumulator) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	return a.session.clone()
}
