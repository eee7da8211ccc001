package rimage

import (
	"image"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/utils"
)

// Kernel is a 2D convolution filter stored row by row.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// At returns the kernel coefficient at column x and row y.
func (k Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the kernel dimensions.
func (k Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}, 3, 3}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}, 3, 3}
}

// GetBlur3 returns a normalized 3x3 box blur.
func GetBlur3() Kernel {
	const v = 1. / 9.
	return Kernel{[][]float64{
		{v, v, v},
		{v, v, v},
		{v, v, v},
	}, 3, 3}
}

// ConvolveGrayFloat64 convolves a float64 image with the kernel, centered on each pixel. Pixels
// outside the image replicate the nearest border pixel. There is no clamping of the output.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) *mat.Dense {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	size := filter.Size()
	anchor := image.Point{size.X / 2, size.Y / 2}
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := 0.
		for ky := 0; ky < size.Y; ky++ {
			py := clampInt(y+ky-anchor.Y, 0, h-1)
			for kx := 0; kx < size.X; kx++ {
				px := clampInt(x+kx-anchor.X, 0, w-1)
				sum += m.At(py, px) * filter.At(kx, ky)
			}
		}
		result.Set(y, x, sum)
	})
	return result
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
