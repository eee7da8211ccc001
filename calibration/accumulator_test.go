package calibration

import (
	"image"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/stereocal/logging"
)

var (
	testPattern = image.Point{7, 5}
	testSize    = image.Point{64, 48}
)

type accumulatorFixture struct {
	detector *fakeDetector
	solver   *fakeSolver
	store    *Store
	acc      *Accumulator
}

func newAccumulatorFixture(t *testing.T, opts ...AccumulatorOption) *accumulatorFixture {
	t.Helper()
	logger := logging.NewTestLogger(t)
	f := &accumulatorFixture{
		detector: newFakeDetector(),
		solver:   &fakeSolver{result: sampleResult(testSize.X, testSize.Y)},
		store:    NewStore(logger),
	}
	f.acc = NewAccumulator(NewCornerDetector(f.detector, logger), f.solver, f.store, logger, opts...)
	return f
}

// pair returns two images and registers the board in the ones marked found.
func (f *accumulatorFixture) pair(found1, found2 bool) (*image.Gray, *image.Gray) {
	img1 := image.NewGray(image.Rectangle{Max: testSize})
	img2 := image.NewGray(image.Rectangle{Max: testSize})
	if found1 {
		f.detector.corners[img1] = gridCorners(testPattern, 1)
	}
	if found2 {
		f.detector.corners[img2] = gridCorners(testPattern, 2)
	}
	return img1, img2
}

func (f *accumulatorFixture) compute(found1, found2 bool) (bool, error) {
	img1, img2 := f.pair(found1, found2)
	return f.acc.Compute(img1, img2, true)
}

func TestAccumulatorStartValidates(t *testing.T) {
	f := newAccumulatorFixture(t)
	for _, tc := range []struct {
		nx, ny int
		square float64
		size   image.Point
	}{
		{0, 5, 1, testSize},
		{7, -1, 1, testSize},
		{7, 5, 0, testSize},
		{7, 5, -2, testSize},
		{7, 5, 1, image.Point{0, 48}},
	} {
		err := f.acc.Start(tc.nx, tc.ny, tc.square, tc.size)
		test.That(t, errors.Is(err, ErrInvalidPattern), test.ShouldBeTrue)
	}
	test.That(t, f.acc.State(), test.ShouldEqual, Idle)
	test.That(t, f.acc.Session(), test.ShouldBeNil)
}

func TestAccumulatorRequiresSession(t *testing.T) {
	f := newAccumulatorFixture(t)
	img1, img2 := f.pair(true, true)
	_, err := f.acc.Compute(img1, img2, true)
	test.That(t, errors.Is(err, ErrNotAccumulating), test.ShouldBeTrue)
	_, err = f.acc.End()
	test.That(t, errors.Is(err, ErrNotAccumulating), test.ShouldBeTrue)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 0)
}

func TestAccumulatorStartResets(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		ok, err := f.compute(true, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeTrue)
	}
	test.That(t, f.acc.Successes(), test.ShouldEqual, 3)

	test.That(t, f.acc.Start(7, 5, 2, testSize), test.ShouldBeNil)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 0)
	s := f.acc.Session()
	test.That(t, s.ObjectPoints, test.ShouldBeEmpty)
	test.That(t, s.ImagePoints1, test.ShouldBeEmpty)
	test.That(t, s.ImagePoints2, test.ShouldBeEmpty)
	test.That(t, s.SquareSize, test.ShouldEqual, 2.)
	test.That(t, f.acc.State(), test.ShouldEqual, Accumulating)
}

func TestAccumulatorComputeIsAtomic(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)

	for _, found := range [][2]bool{{true, false}, {false, true}, {false, false}} {
		img1, img2 := f.pair(found[0], found[1])
		ok, err := f.acc.Compute(img1, img2, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeFalse)
	}
	s := f.acc.Session()
	test.That(t, s.Successes, test.ShouldEqual, 0)
	test.That(t, s.ObjectPoints, test.ShouldBeEmpty)
	test.That(t, s.ImagePoints1, test.ShouldBeEmpty)
	test.That(t, s.ImagePoints2, test.ShouldBeEmpty)
}

func TestAccumulatorRejectsPartialPattern(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	img1, img2 := f.pair(true, true)
	f.detector.corners[img2] = gridCorners(image.Point{7, 4}, 0)
	ok, err := f.acc.Compute(img1, img2, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 0)
}

func TestAccumulatorRejectsSizeMismatch(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	img1, _ := f.pair(true, true)
	other := image.NewGray(image.Rect(0, 0, 32, 48))
	f.detector.corners[other] = gridCorners(testPattern, 0)
	_, err := f.acc.Compute(img1, other, true)
	test.That(t, errors.Is(err, ErrSizeMismatch), test.ShouldBeTrue)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 0)
}

func TestAccumulatorObjectPoints(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 2.5, testSize), test.ShouldBeNil)
	ok, err := f.compute(true, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	s := f.acc.Session()
	test.That(t, s.ObjectPoints, test.ShouldHaveLength, 1)
	pts := s.ObjectPoints[0]
	test.That(t, pts, test.ShouldHaveLength, 35)
	for i, p := range pts {
		test.That(t, p, test.ShouldResemble, r3.Vector{X: float64(i / 7), Y: float64(i % 7)})
	}
	test.That(t, s.ImagePoints1[0], test.ShouldResemble, gridCorners(testPattern, 1))
	test.That(t, s.ImagePoints2[0], test.ShouldResemble, gridCorners(testPattern, 2))

	metric := newAccumulatorFixture(t, WithMetricObjectPoints())
	test.That(t, metric.acc.Start(7, 5, 2.5, testSize), test.ShouldBeNil)
	_, err = metric.compute(true, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, metric.acc.Session().ObjectPoints[0][8], test.ShouldResemble, r3.Vector{X: 2.5, Y: 2.5})
}

func TestAccumulatorCountsSuccesses(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	failing := map[int]bool{2: true, 5: true, 9: true}
	for i := 0; i < 10; i++ {
		ok, err := f.compute(true, !failing[i])
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldEqual, !failing[i])
	}
	test.That(t, f.acc.Successes(), test.ShouldEqual, 7)
	s := f.acc.Session()
	test.That(t, s.ObjectPoints, test.ShouldHaveLength, 7)
	test.That(t, s.ImagePoints1, test.ShouldHaveLength, 7)
	test.That(t, s.ImagePoints2, test.ShouldHaveLength, 7)
}

func TestAccumulatorEndWithoutViews(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	_, err := f.compute(false, true)
	test.That(t, err, test.ShouldBeNil)

	_, err = f.acc.End()
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)
	test.That(t, f.store.Result(), test.ShouldBeNil)
	test.That(t, f.solver.calls, test.ShouldBeEmpty)
	test.That(t, f.acc.State(), test.ShouldEqual, Accumulating)

	// the session survives, so views can still be added
	ok, err := f.compute(true, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	_, err = f.acc.End()
	test.That(t, err, test.ShouldBeNil)
}

func TestAccumulatorEndPublishes(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	for i := 0; i < 2; i++ {
		_, err := f.compute(true, true)
		test.That(t, err, test.ShouldBeNil)
	}
	report, err := f.acc.End()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Views, test.ShouldEqual, 2)
	test.That(t, f.solver.calls, test.ShouldHaveLength, 1)
	call := f.solver.calls[0]
	test.That(t, call.objectPoints, test.ShouldHaveLength, 2)
	test.That(t, call.imagePoints1, test.ShouldHaveLength, 2)
	test.That(t, call.imagePoints2, test.ShouldHaveLength, 2)
	test.That(t, call.imageSize, test.ShouldResemble, testSize)

	test.That(t, f.store.Result(), test.ShouldEqual, f.solver.result)
	test.That(t, f.acc.State(), test.ShouldEqual, Idle)
	test.That(t, f.acc.Session(), test.ShouldBeNil)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 0)
}

func TestAccumulatorEndSolverFailure(t *testing.T) {
	f := newAccumulatorFixture(t)
	f.solver.err = errors.Wrap(ErrSolverDivergence, "parameters are not finite")
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	_, err := f.compute(true, true)
	test.That(t, err, test.ShouldBeNil)

	_, err = f.acc.End()
	test.That(t, errors.Is(err, ErrSolverDivergence), test.ShouldBeTrue)
	test.That(t, f.store.Result(), test.ShouldBeNil)
	test.That(t, f.acc.State(), test.ShouldEqual, Accumulating)
	test.That(t, f.acc.Successes(), test.ShouldEqual, 1)
}

func TestAccumulatorSessionIsACopy(t *testing.T) {
	f := newAccumulatorFixture(t)
	test.That(t, f.acc.Start(7, 5, 1, testSize), test.ShouldBeNil)
	_, err := f.compute(true, true)
	test.That(t, err, test.ShouldBeNil)
	s := f.acc.Session()
	s.Successes = 10
	s.ObjectPoints = nil
	test.That(t, f.acc.Successes(), test.ShouldEqual, 1)
	test.That(t, f.acc.Session().ObjectPoints, test.ShouldHaveLength, 1)
}

func TestStateString(t *testing.T) {
	test.That(t, Idle.String(), test.ShouldEqual, "idle")
	test.That(t, Accumulating.String(), test.ShouldEqual, "accumulating")
	test.That(t, State(7).String(), test.ShouldEqual, "unknown")
}
