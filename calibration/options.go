package calibration

import (
	"go.viam.com/stereocal/display"
	"go.viam.com/stereocal/rimage/stereo"
)

type options struct {
	sink        display.Sink
	matchParams stereo.MatchParams
}

func newOptions(opts []Option) options {
	o := options{sink: display.Noop{}, matchParams: stereo.DefaultMatchParams()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a CornerDetector or a Rectifier.
type Option func(*options)

// WithDisplay sends intermediate images to sink. Without it nothing is shown.
func WithDisplay(sink display.Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithMatchParams replaces the block matching profile used by a Rectifier.
func WithMatchParams(params stereo.MatchParams) Option {
	return func(o *options) {
		o.matchParams = params
	}
}
