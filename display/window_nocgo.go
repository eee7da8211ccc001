//go:build no_cgo

package display

import "go.viam.com/stereocal/logging"

// NewWindowSink returns a sink that drops every image; windows need OpenCV.
func NewWindowSink(logger logging.Logger) Sink {
	logger.Warn("windows are not available in this build, display is disabled")
	return Noop{}
}
