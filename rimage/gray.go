package rimage

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// ToGray returns img as an *image.Gray with bounds starting at the origin. When isGrayscale is
// false the image is converted by luminance; when it is true the image is assumed to already hold
// a single intensity channel and is only repacked.
func ToGray(img image.Image, isGrayscale bool) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if isGrayscale {
		draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
		return out
	}
	gray := imaging.Grayscale(img)
	for y := 0; y < out.Rect.Dy(); y++ {
		srcRow := gray.Pix[y*gray.Stride : y*gray.Stride+4*out.Rect.Dx()]
		dstRow := out.Pix[y*out.Stride : y*out.Stride+out.Rect.Dx()]
		for x := range dstRow {
			dstRow[x] = srcRow[4*x]
		}
	}
	return out
}

// ConvertGrayToLuminanceFloat returns the gray levels of img as a rows x cols matrix.
func ConvertGrayToLuminanceFloat(img *image.Gray) *mat.Dense {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			out.Set(y, x, float64(v))
		}
	}
	return out
}

// IsGray reports whether every pixel of img has equal red, green and blue components.
func IsGray(img image.Image) bool {
	if _, ok := img.(*image.Gray); ok {
		return true
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return false
			}
		}
	}
	return true
}
