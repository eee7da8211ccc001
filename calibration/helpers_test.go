package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/stereo"
)

// sampleResult returns a valid result whose values do not have short decimal representations.
func sampleResult(w, h int) *Result {
	seq := func(n int, start float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = start + float64(i)/3
		}
		return out
	}
	table := func(offset float32) *rimage.RemapTable {
		t := rimage.NewRemapTable(w, h)
		for i := range t.Data {
			t.Data[i] = offset + float32(i)*0.37 + 1/float32(7+i)
		}
		return t
	}
	return &Result{
		CM1:       mat.NewDense(3, 3, []float64{520.123456789, 0, 318.1, 0, 522.987654321, 242.7, 0, 0, 1}),
		CM2:       mat.NewDense(3, 3, []float64{520.123456789, 0, 323.3, 0, 522.987654321, 236.2, 0, 0, 1}),
		D1:        []float64{-0.12345678901234, 0.05, 0, 0, 1e-20},
		D2:        []float64{-0.09, 0.0312345, 0, 0, -2.5e-7},
		R:         mat.NewDense(3, 3, seq(9, 0.1)),
		T:         mat.NewVecDense(3, []float64{-2.000001, 0.05, 1.0 / 3}),
		E:         mat.NewDense(3, 3, seq(9, -1)),
		F:         mat.NewDense(3, 3, seq(9, 1e-9)),
		R1:        mat.NewDense(3, 3, seq(9, 0.2)),
		R2:        mat.NewDense(3, 3, seq(9, 0.3)),
		P1:        mat.NewDense(3, 4, seq(12, 500)),
		P2:        mat.NewDense(3, 4, seq(12, -1040.5)),
		Q:         mat.NewDense(4, 4, seq(16, -318)),
		ImageSize: image.Point{w, h},
		MX1:       table(0),
		MY1:       table(10),
		MX2:       table(-3),
		MY2:       table(1e6),
	}
}

// identityResult returns a result whose remap tables leave images unchanged.
func identityResult(w, h int) *Result {
	r := sampleResult(w, h)
	for _, t := range []*rimage.RemapTable{r.MX1, r.MX2} {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				t.Set(x, y, float32(x))
			}
		}
	}
	for _, t := range []*rimage.RemapTable{r.MY1, r.MY2} {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				t.Set(x, y, float32(y))
			}
		}
	}
	return r
}

func gridCorners(pattern image.Point, offset float64) []r2.Point {
	pts := make([]r2.Point, 0, pattern.X*pattern.Y)
	for y := 0; y < pattern.Y; y++ {
		for x := 0; x < pattern.X; x++ {
			pts = append(pts, r2.Point{X: offset + 20*float64(x), Y: offset + 20*float64(y)})
		}
	}
	return pts
}

// fakeDetector finds the corners registered for an image, keyed by image identity.
type fakeDetector struct {
	corners map[*image.Gray][]r2.Point
	refined int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{corners: map[*image.Gray][]r2.Point{}}
}

func (fd *fakeDetector) FindCorners(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	c, ok := fd.corners[img]
	return c, ok
}

func (fd *fakeDetector) RefineCorners(img *image.Gray, corners []r2.Point) []r2.Point {
	fd.refined++
	out := make([]r2.Point, len(corners))
	for i, c := range corners {
		out[i] = c.Add(r2.Point{X: 0.25, Y: 0.25})
	}
	return out
}

type solveCall struct {
	objectPoints [][]r3.Vector
	imagePoints1 [][]r2.Point
	imagePoints2 [][]r2.Point
	imageSize    image.Point
}

type fakeSolver struct {
	calls  []solveCall
	result *Result
	err    error
}

func (fs *fakeSolver) Solve(
	objectPoints [][]r3.Vector,
	imagePoints1, imagePoints2 [][]r2.Point,
	imageSize image.Point,
) (*Result, *Report, error) {
	fs.calls = append(fs.calls, solveCall{objectPoints, imagePoints1, imagePoints2, imageSize})
	if fs.err != nil {
		return nil, nil, fs.err
	}
	return fs.result, &Report{Views: len(objectPoints)}, nil
}

type fakeMatcher struct {
	params stereo.MatchParams
	calls  int
}

// Match returns a disparity map whose value grows with the column.
func (fm *fakeMatcher) Match(left, right *image.Gray, params stereo.MatchParams) (*stereo.DisparityMap, error) {
	fm.params = params
	fm.calls++
	b := left.Bounds()
	dm := stereo.NewDisparityMap(b.Dx(), b.Dy(), params.MinDisparity)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dm.Set(x, y, int16(x*stereo.DisparityScale))
		}
	}
	return dm, nil
}

type shown struct {
	name string
	img  image.Image
}

// recordingSink keeps every shown image.
type recordingSink struct {
	shown []shown
}

func (rs *recordingSink) Show(name string, img image.Image) {
	rs.shown = append(rs.shown, shown{name, img})
}

func (rs *recordingSink) Close() error { return nil }
