//go:build !no_cgo

package display

import (
	"image"
	"sync"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/stereocal/logging"
)

// WindowSink shows each surface in its own OpenCV window.
type WindowSink struct {
	logger logging.Logger

	mu      sync.Mutex
	windows map[string]*gocv.Window
}

// NewWindowSink returns a WindowSink. Windows are opened on first use.
func NewWindowSink(logger logging.Logger) Sink {
	return &WindowSink{logger: logger, windows: map[string]*gocv.Window{}}
}

// Show displays img in the window called name and pumps the window events once.
func (ws *WindowSink) Show(name string, img image.Image) {
	if img == nil {
		return
	}
	var m gocv.Mat
	var err error
	if gray, ok := img.(*image.Gray); ok {
		m, err = gocv.ImageGrayToMatGray(gray)
	} else {
		m, err = gocv.ImageToMatRGB(img)
	}
	if err != nil {
		ws.logger.Warnw("cannot convert image for display", "name", name, "error", err)
		return
	}
	defer m.Close()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	w, ok := ws.windows[name]
	if !ok {
		w = gocv.NewWindow(name)
		ws.windows[name] = w
	}
	w.IMShow(m)
	w.WaitKey(1)
}

// Close closes every window.
func (ws *WindowSink) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var err error
	for name, w := range ws.windows {
		err = multierr.Combine(err, w.Close())
		delete(ws.windows, name)
	}
	return err
}
