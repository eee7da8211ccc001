// Package display shows intermediate images while calibrating. Sinks never fail their caller:
// errors are logged and the image is dropped.
package display

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
)

// Mode selects a Sink.
type Mode string

// The available display modes.
const (
	ModeNone   Mode = "none"
	ModeWindow Mode = "window"
	ModeDir    Mode = "dir"
)

// A Sink shows named images. Each name is its own surface; showing an image replaces the
// previous image of that surface.
type Sink interface {
	Show(name string, img image.Image)
	Close() error
}

// New returns the sink for mode. ModeDir writes into dir.
func New(mode Mode, dir string, logger logging.Logger) (Sink, error) {
	switch mode {
	case ModeNone, "":
		return Noop{}, nil
	case ModeWindow:
		return NewWindowSink(logger), nil
	case ModeDir:
		if dir == "" {
			return nil, errors.New("display mode dir needs a directory")
		}
		return NewFileSink(dir, logger), nil
	default:
		return nil, errors.Errorf("unknown display mode %q", mode)
	}
}

// Enabled reports whether s shows anything at all.
func Enabled(s Sink) bool {
	switch s.(type) {
	case nil, Noop, *Noop:
		return false
	default:
		return true
	}
}

// Noop drops every image.
type Noop struct{}

// Show does nothing.
func (Noop) Show(string, image.Image) {}

// Close does nothing.
func (Noop) Close() error { return nil }

// FileSink writes every shown image as a labeled PNG named after its surface and a sequence number.
type FileSink struct {
	dir    string
	logger logging.Logger

	mu     sync.Mutex
	counts map[string]int
}

// NewFileSink returns a FileSink writing into dir, which is created on first use.
func NewFileSink(dir string, logger logging.Logger) *FileSink {
	return &FileSink{dir: dir, logger: logger, counts: map[string]int{}}
}

// Show writes img to <dir>/<name>_<n>.png.
func (fs *FileSink) Show(name string, img image.Image) {
	if img == nil {
		return
	}
	fs.mu.Lock()
	n := fs.counts[name]
	fs.counts[name] = n + 1
	fs.mu.Unlock()

	path := filepath.Join(fs.dir, fmt.Sprintf("%s_%03d.png", rimage.SanitizeFileName(name), n))
	labeled := rimage.Overlay(img, fmt.Sprintf("%s #%d", name, n))
	if err := rimage.WriteImageToFile(path, labeled); err != nil {
		fs.logger.Warnw("cannot write display image", "path", path, "error", err)
		return
	}
	fs.logger.Debugw("display image written", "path", path)
}

// Count returns how many images were shown on a surface.
func (fs *FileSink) Count(name string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.counts[name]
}

// Close does nothing.
func (fs *FileSink) Close() error { return nil }
