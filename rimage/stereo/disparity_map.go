// Package stereo computes disparity maps from rectified image pairs.
package stereo

import (
	"image"
	"math"
)

// DisparityScale is the fixed point scale of DisparityMap values.
const DisparityScale = 16

// DisparityMap holds one fixed point disparity per pixel (disparity * DisparityScale). Pixels
// without a match hold Invalid.
type DisparityMap struct {
	Width   int
	Height  int
	Data    []int16
	Invalid int16
}

// NewDisparityMap returns a map of the given size with every pixel invalid.
func NewDisparityMap(width, height, minDisparity int) *DisparityMap {
	dm := &DisparityMap{
		Width:   width,
		Height:  height,
		Data:    make([]int16, width*height),
		Invalid: int16((minDisparity - 1) * DisparityScale),
	}
	for i := range dm.Data {
		dm.Data[i] = dm.Invalid
	}
	return dm
}

// At returns the raw fixed point value at (x, y).
func (dm *DisparityMap) At(x, y int) int16 {
	return dm.Data[y*dm.Width+x]
}

// Set stores the raw fixed point value at (x, y).
func (dm *DisparityMap) Set(x, y int, v int16) {
	dm.Data[y*dm.Width+x] = v
}

// Valid reports whether (x, y) has a disparity.
func (dm *DisparityMap) Valid(x, y int) bool {
	return dm.At(x, y) != dm.Invalid
}

// Disparity returns the disparity at (x, y) in pixels.
func (dm *DisparityMap) Disparity(x, y int) float64 {
	return float64(dm.At(x, y)) / DisparityScale
}

// ValidCount returns how many pixels have a disparity.
func (dm *DisparityMap) ValidCount() int {
	n := 0
	for _, v := range dm.Data {
		if v != dm.Invalid {
			n++
		}
	}
	return n
}

// Normalize stretches the raw values linearly so that the smallest becomes 0 and the largest 255,
// invalid pixels included. A constant map becomes black.
func (dm *DisparityMap) Normalize() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, dm.Width, dm.Height))
	if len(dm.Data) == 0 {
		return out
	}
	lo, hi := dm.Data[0], dm.Data[0]
	for _, v := range dm.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	scale := 255 / float64(int(hi)-int(lo))
	for i, v := range dm.Data {
		out.Pix[i] = uint8(math.Round(float64(int(v)-int(lo)) * scale))
	}
	return out
}

// Values returns the valid disparities in pixels.
func (dm *DisparityMap) Values() []float64 {
	out := make([]float64, 0, len(dm.Data))
	for _, v := range dm.Data {
		if v != dm.Invalid {
			out = append(out, float64(v)/DisparityScale)
		}
	}
	return out
}
