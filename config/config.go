// Package config defines the run configuration of a calibration.
package config

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/stereocal/display"
)

// Detector names.
const (
	DetectorOpenCV = "opencv"
	DetectorSaddle = "saddle"
)

// Config describes a calibration run.
type Config struct {
	Pattern            PatternConfig `json:"pattern"`
	ImageWidth         int           `json:"image_width"`
	ImageHeight        int           `json:"image_height"`
	MetricObjectPoints bool          `json:"metric_object_points,omitempty"`
	Detector           string        `json:"detector,omitempty"`
	Solver             SolverConfig  `json:"solver"`
	// Matcher overrides fields of the default block matching profile by their JSON names.
	Matcher       AttributeMap  `json:"matcher,omitempty"`
	Display       DisplayConfig `json:"display"`
	DebugDumpPath string        `json:"debug_dump,omitempty"`

	ConfigFilePath string `json:"-"`
}

// PatternConfig describes the chessboard. Nx and Ny count inner corners.
type PatternConfig struct {
	Nx         int     `json:"nx"`
	Ny         int     `json:"ny"`
	SquareSize float64 `json:"square_size"`
}

// SolverConfig tunes the stereo solver. Zero values select the defaults.
type SolverConfig struct {
	MaxIterations int     `json:"max_iterations,omitempty"`
	Epsilon       float64 `json:"epsilon,omitempty"`
	FixK3         bool    `json:"fix_k3,omitempty"`
	MinViews      int     `json:"min_views,omitempty"`
}

// DisplayConfig selects where intermediate images go.
type DisplayConfig struct {
	Mode display.Mode `json:"mode,omitempty"`
	Dir  string       `json:"dir,omitempty"`
}

// ImageSize returns the configured image size.
func (c *Config) ImageSize() image.Point {
	return image.Point{c.ImageWidth, c.ImageHeight}
}

// PatternSize returns the number of inner corners along x and y.
func (c *Config) PatternSize() image.Point {
	return image.Point{c.Pattern.Nx, c.Pattern.Ny}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if err := c.Pattern.Validate(fmt.Sprintf("%s.pattern", path)); err != nil {
		return err
	}
	if c.ImageWidth <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "image_width")
	}
	if c.ImageHeight <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "image_height")
	}
	switch c.Detector {
	case "", DetectorOpenCV, DetectorSaddle:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown detector %q", c.Detector))
	}
	if err := c.Solver.Validate(fmt.Sprintf("%s.solver", path)); err != nil {
		return err
	}
	if _, err := c.Matcher.MatchParams(); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.matcher", path), err)
	}
	return c.Display.Validate(fmt.Sprintf("%s.display", path))
}

// Validate ensures the pattern is usable.
func (pc *PatternConfig) Validate(path string) error {
	if pc.Nx <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "nx")
	}
	if pc.Ny <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "ny")
	}
	if pc.SquareSize <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "square_size")
	}
	return nil
}

// Validate ensures the solver settings are in range.
func (sc *SolverConfig) Validate(path string) error {
	if sc.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations must not be negative"))
	}
	if sc.Epsilon < 0 {
		return utils.NewConfigValidationError(path, errors.New("epsilon must not be negative"))
	}
	if sc.MinViews < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_views must not be negative"))
	}
	return nil
}

// Validate ensures the display mode is known and has what it needs.
func (dc *DisplayConfig) Validate(path string) error {
	switch dc.Mode {
	case "", display.ModeNone, display.ModeWindow:
	case display.ModeDir:
		if dc.Dir == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "dir")
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", dc.Mode))
	}
	return nil
}
