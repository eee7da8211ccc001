package calibration

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/stereo"
)

func patternImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{uint8((x*7 + y*13) % 256)})
		}
	}
	return img
}

func TestRectifierRequiresResult(t *testing.T) {
	rf := NewRectifier(NewStore(logging.NewTestLogger(t)), &fakeMatcher{}, logging.NewTestLogger(t))
	_, _, err := rf.Rectify(patternImage(8, 6), patternImage(8, 6))
	test.That(t, errors.Is(err, ErrNoResult), test.ShouldBeTrue)
}

func TestRectifierRejectsSizeMismatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore(logger)
	store.SetResult(identityResult(8, 6))
	rf := NewRectifier(store, &fakeMatcher{}, logger)

	for _, pair := range [][2]image.Image{
		{patternImage(8, 6), patternImage(9, 6)},
		{patternImage(8, 5), patternImage(8, 6)},
		{patternImage(6, 8), patternImage(6, 8)},
	} {
		l, r, err := rf.Rectify(pair[0], pair[1])
		test.That(t, errors.Is(err, ErrSizeMismatch), test.ShouldBeTrue)
		test.That(t, l, test.ShouldBeNil)
		test.That(t, r, test.ShouldBeNil)
	}
}

func TestRectifierIdentityTables(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore(logger)
	store.SetResult(identityResult(8, 6))
	rf := NewRectifier(store, &fakeMatcher{}, logger)

	gray := patternImage(8, 6)
	rgba := image.NewRGBA(gray.Rect)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			rgba.Set(x, y, color.RGBA{uint8(x * 30), uint8(y * 40), 7, 255})
		}
	}
	left, right, err := rf.Rectify(gray, rgba)
	test.That(t, err, test.ShouldBeNil)
	lg, ok := left.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, lg.Pix, test.ShouldResemble, gray.Pix)
	rr, ok := right.(*image.RGBA)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rr.Pix, test.ShouldResemble, rgba.Pix)
}

func TestRectifierShiftedTables(t *testing.T) {
	logger := logging.NewTestLogger(t)
	r := identityResult(8, 6)
	for i := range r.MX2.Data {
		r.MX2.Data[i] += 2
	}
	store := NewStore(logger)
	store.SetResult(r)
	src := patternImage(8, 6)

	_, right, err := NewRectifier(store, &fakeMatcher{}, logger).Rectify(src, src)
	test.That(t, err, test.ShouldBeNil)
	out := right.(*image.Gray)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			want := uint8(0)
			if x+2 < 8 {
				want = src.GrayAt(x+2, y).Y
			}
			test.That(t, out.GrayAt(x, y).Y, test.ShouldEqual, want)
		}
	}
}

func TestRectifierComputeDisparity(t *testing.T) {
	logger := logging.NewTestLogger(t)
	fm := &fakeMatcher{}
	rf := NewRectifier(NewStore(logger), fm, logger)

	disparity, err := rf.ComputeDisparity(patternImage(6, 2), patternImage(6, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fm.params, test.ShouldResemble, stereo.DefaultMatchParams())
	test.That(t, disparity.Bounds().Size(), test.ShouldResemble, image.Point{6, 2})
	test.That(t, disparity.GrayAt(0, 1).Y, test.ShouldEqual, uint8(0))
	test.That(t, disparity.GrayAt(5, 0).Y, test.ShouldEqual, uint8(255))

	params := stereo.DefaultMatchParams()
	params.NumDisparities = 16
	params.BlockSize = 9
	fm = &fakeMatcher{}
	_, err = NewRectifier(NewStore(logger), fm, logger, WithMatchParams(params)).
		ComputeDisparity(patternImage(6, 2), patternImage(6, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fm.params, test.ShouldResemble, params)
}

func TestRectifierProcess(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore(logger)
	store.SetResult(identityResult(8, 6))
	sink := &recordingSink{}
	fm := &fakeMatcher{}
	rf := NewRectifier(store, fm, logger, WithDisplay(sink))

	disparity, err := rf.Process(patternImage(8, 6), patternImage(8, 6))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fm.calls, test.ShouldEqual, 1)
	test.That(t, sink.shown, test.ShouldHaveLength, 1)
	test.That(t, sink.shown[0].name, test.ShouldEqual, SurfaceDisparity)
	test.That(t, sink.shown[0].img.(*image.Gray), test.ShouldEqual, disparity)

	_, err = rf.Process(patternImage(8, 6), patternImage(4, 6))
	test.That(t, errors.Is(err, ErrSizeMismatch), test.ShouldBeTrue)
	test.That(t, fm.calls, test.ShouldEqual, 1)
}

func TestRectifierWithBlockMatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	store := NewStore(logger)
	store.SetResult(identityResult(40, 30))
	rf := NewRectifier(store, stereo.NewBlockMatcher(logger), logger)
	disparity, err := rf.Process(patternImage(40, 30), patternImage(40, 30))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, disparity.Bounds().Size(), test.ShouldResemble, image.Point{40, 30})
}
