package calibration

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/display"
	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/stereo"
)

// SurfaceDisparity is the display surface of disparity maps.
const SurfaceDisparity = "Disparity"

// A Matcher computes the disparity of a rectified pair.
type Matcher interface {
	Match(left, right *image.Gray, params stereo.MatchParams) (*stereo.DisparityMap, error)
}

// Rectifier applies the Store's current result to new image pairs.
type Rectifier struct {
	store   *Store
	matcher Matcher
	params  stereo.MatchParams
	sink    display.Sink
	logger  logging.Logger
}

// NewRectifier returns a Rectifier. WithDisplay and WithMatchParams apply to it.
func NewRectifier(store *Store, matcher Matcher, logger logging.Logger, opts ...Option) *Rectifier {
	o := newOptions(opts)
	return &Rectifier{store: store, matcher: matcher, params: o.matchParams, sink: o.sink, logger: logger}
}

// Rectify undistorts and rectifies both images so that corresponding points share a row. Gray
// images stay gray; anything else becomes RGBA.
func (rf *Rectifier) Rectify(img1, img2 image.Image) (image.Image, image.Image, error) {
	r := rf.store.Result()
	if r == nil {
		return nil, nil, ErrNoResult
	}
	for i, img := range []image.Image{img1, img2} {
		if size := img.Bounds().Size(); size != r.ImageSize {
			return nil, nil, errors.Wrapf(ErrSizeMismatch, "image %d is %v, calibration is %v", i+1, size, r.ImageSize)
		}
	}
	out1, err := rimage.Remap(img1, r.MX1, r.MY1)
	if err != nil {
		return nil, nil, err
	}
	out2, err := rimage.Remap(img2, r.MX2, r.MY2)
	if err != nil {
		return nil, nil, err
	}
	return out1, out2, nil
}

// ComputeDisparity matches a rectified pair and stretches the disparities to the full gray range.
func (rf *Rectifier) ComputeDisparity(left, right image.Image) (*image.Gray, error) {
	dm, err := rf.matcher.Match(rimage.ToGray(left, false), rimage.ToGray(right, false), rf.params)
	if err != nil {
		return nil, errors.Wrap(err, "block matching failed")
	}
	return dm.Normalize(), nil
}

// Process rectifies a pair, computes its disparity and shows it.
func (rf *Rectifier) Process(img1, img2 image.Image) (*image.Gray, error) {
	left, right, err := rf.Rectify(img1, img2)
	if err != nil {
		return nil, err
	}
	disparity, err := rf.ComputeDisparity(left, right)
	if err != nil {
		return nil, err
	}
	rf.sink.Show(SurfaceDisparity, disparity)
	return disparity, nil
}
