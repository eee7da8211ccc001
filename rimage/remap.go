package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/utils"
)

// RemapTable holds one float32 source coordinate per destination pixel, row by row.
type RemapTable struct {
	Width  int
	Height int
	Data   []float32
}

// NewRemapTable returns a zeroed table of the given dimensions.
func NewRemapTable(width, height int) *RemapTable {
	return &RemapTable{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the entry for destination pixel (x, y).
func (rt *RemapTable) At(x, y int) float32 {
	return rt.Data[y*rt.Width+x]
}

// Set stores the entry for destination pixel (x, y).
func (rt *RemapTable) Set(x, y int, v float32) {
	rt.Data[y*rt.Width+x] = v
}

// Size returns the table dimensions as a point.
func (rt *RemapTable) Size() image.Point {
	return image.Point{rt.Width, rt.Height}
}

// Equal reports whether both tables have the same size and bit-identical entries.
func (rt *RemapTable) Equal(other *RemapTable) bool {
	if rt == nil || other == nil {
		return rt == other
	}
	if rt.Width != other.Width || rt.Height != other.Height || len(rt.Data) != len(other.Data) {
		return false
	}
	for i, v := range rt.Data {
		if math.Float32bits(v) != math.Float32bits(other.Data[i]) {
			return false
		}
	}
	return true
}

// Remap resamples src so that dst(x, y) = src(mapX(x, y), mapY(x, y)) with bilinear interpolation.
// Samples that fall outside src contribute zero. A *image.Gray source yields a *image.Gray, any
// other source an *image.RGBA. The output has the size of the tables.
func Remap(src image.Image, mapX, mapY *RemapTable) (image.Image, error) {
	if mapX == nil || mapY == nil {
		return nil, errors.New("remap tables are required")
	}
	if mapX.Size() != mapY.Size() {
		return nil, errors.Errorf("remap table sizes differ: %v vs %v", mapX.Size(), mapY.Size())
	}
	if len(mapX.Data) != mapX.Width*mapX.Height || len(mapY.Data) != mapY.Width*mapY.Height {
		return nil, errors.New("remap table data does not match its dimensions")
	}
	dstRect := image.Rect(0, 0, mapX.Width, mapX.Height)
	if g, ok := src.(*image.Gray); ok {
		dst := image.NewGray(dstRect)
		b := g.Bounds()
		utils.ParallelForEachRow(mapX.Height, func(y int) {
			for x := 0; x < mapX.Width; x++ {
				sx, sy := float64(mapX.At(x, y)), float64(mapY.At(x, y))
				v := bilinear(sx, sy, b.Dx(), b.Dy(), func(px, py int) [4]float64 {
					return [4]float64{float64(g.Pix[py*g.Stride+px]), 0, 0, 0}
				})
				dst.Pix[y*dst.Stride+x] = clampUint8(v[0])
			}
		})
		return dst, nil
	}

	rgba := toRGBA(src)
	dst := image.NewRGBA(dstRect)
	b := rgba.Bounds()
	utils.ParallelForEachRow(mapX.Height, func(y int) {
		for x := 0; x < mapX.Width; x++ {
			sx, sy := float64(mapX.At(x, y)), float64(mapY.At(x, y))
			v := bilinear(sx, sy, b.Dx(), b.Dy(), func(px, py int) [4]float64 {
				i := py*rgba.Stride + 4*px
				return [4]float64{
					float64(rgba.Pix[i]), float64(rgba.Pix[i+1]),
					float64(rgba.Pix[i+2]), float64(rgba.Pix[i+3]),
				}
			})
			i := y*dst.Stride + 4*x
			dst.Pix[i] = clampUint8(v[0])
			dst.Pix[i+1] = clampUint8(v[1])
			dst.Pix[i+2] = clampUint8(v[2])
			dst.Pix[i+3] = clampUint8(v[3])
		}
	})
	return dst, nil
}

func bilinear(sx, sy float64, w, h int, at func(x, y int) [4]float64) [4]float64 {
	var out [4]float64
	if math.IsNaN(sx) || math.IsNaN(sy) {
		return out
	}
	x0f, y0f := math.Floor(sx), math.Floor(sy)
	if x0f < -1 || y0f < -1 || x0f >= float64(w) || y0f >= float64(h) {
		return out
	}
	x0, y0 := int(x0f), int(y0f)
	ax, ay := sx-x0f, sy-y0f
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	pts := [4]image.Point{{x0, y0}, {x0 + 1, y0}, {x0, y0 + 1}, {x0 + 1, y0 + 1}}
	for k, p := range pts {
		if weights[k] == 0 || p.X < 0 || p.Y < 0 || p.X >= w || p.Y >= h {
			continue
		}
		v := at(p.X, p.Y)
		for c := range out {
			out[c] += weights[k] * v[c]
		}
	}
	return out
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// toRGBA returns img as an *image.RGBA whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok && r.Rect.Min == (image.Point{}) {
		return r
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return out
}
