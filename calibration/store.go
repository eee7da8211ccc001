package calibration

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/stereocal/logging"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDebugDump makes every successful Load also write the four remap tables to path.
func WithDebugDump(path string) StoreOption {
	return func(s *Store) {
		s.debugDumpPath = path
	}
}

// Store holds the current calibration result and moves it to and from parameter files. Files
// ending in .json use JSON; anything else uses the OpenCV FileStorage YAML layout.
type Store struct {
	mu            sync.Mutex
	result        *Result
	debugDumpPath string
	logger        logging.Logger
}

// NewStore returns an empty Store.
func NewStore(logger logging.Logger, opts ...StoreOption) *Store {
	s := &Store{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Load reads a complete result from path and makes it the current one.
func (s *Store) Load(path string) (*Result, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "cannot read %s: %v", path, err)
	}
	var r *Result
	if isJSON(path) {
		r, err = decodeJSON(data)
	} else {
		r, err = decodeYAML(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}

	s.mu.Lock()
	s.result = r
	dump := s.debugDumpPath
	s.mu.Unlock()

	s.logger.Debugw("calibration loaded", "path", path, "width", r.ImageSize.X, "height", r.ImageSize.Y)
	if dump != "" {
		if err := writeFile(dump, func(w io.Writer) error { return encodeRemapYAML(r, w) }); err != nil {
			s.logger.Warnw("cannot write remap debug dump", "path", dump, "error", err)
		}
	}
	return r, nil
}

// Save writes the current result to path.
func (s *Store) Save(path string) error {
	r := s.Result()
	if r == nil {
		return ErrNoResult
	}
	if err := r.Validate(); err != nil {
		return errors.Wrap(ErrFormat, err.Error())
	}
	encode := func(w io.Writer) error { return encodeYAML(r, w) }
	if isJSON(path) {
		encode = func(w io.Writer) error { return encodeJSON(r, w) }
	}
	if err := writeFile(path, encode); err != nil {
		return err
	}
	s.logger.Debugw("calibration saved", "path", path)
	return nil
}

// Result returns the current result, or nil.
func (s *Store) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SetResult publishes r as the current result. r must not be modified afterwards.
func (s *Store) SetResult(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
}

// WriteCameraModels writes both calibrated cameras and their extrinsics as JSON.
func (s *Store) WriteCameraModels(path string) error {
	r := s.Result()
	if r == nil {
		return ErrNoResult
	}
	system, err := r.CameraSystem()
	if err != nil {
		return errors.Wrap(ErrFormat, err.Error())
	}
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(system)
	})
}

// writeFile encodes into memory first so that a failed encode leaves no partial file behind.
func writeFile(path string, encode func(io.Writer) error) (err error) {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return errors.Wrapf(ErrFormat, "cannot encode %s: %v", path, err)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(ErrIO, "cannot create %s: %v", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Combine(err, errors.Wrapf(ErrIO, "cannot close %s: %v", path, closeErr))
		}
	}()
	if _, err := buf.WriteTo(f); err != nil {
		return errors.Wrapf(ErrIO, "cannot write %s: %v", path, err)
	}
	return nil
}
