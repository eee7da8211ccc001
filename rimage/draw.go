package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// cornerPalette cycles per chessboard row, like the usual calibration overlays.
var cornerPalette = []color.RGBA{
	{255, 0, 0, 255},
	{255, 128, 0, 255},
	{200, 200, 0, 255},
	{0, 255, 0, 255},
	{0, 200, 200, 255},
	{0, 0, 255, 255},
	{255, 0, 255, 255},
}

// DrawChessboardCorners renders img with the detected corners on top. Corners are expected in
// row-major order with patternSize.X corners per row; each row gets its own color and consecutive
// corners are joined by a line. When found is false the corners are drawn in red without lines.
func DrawChessboardCorners(img image.Image, patternSize image.Point, corners []r2.Point, found bool) image.Image {
	dc := gg.NewContextForImage(img)
	const radius = 4.
	dc.SetLineWidth(1)
	if !found || patternSize.X <= 0 {
		dc.SetColor(color.RGBA{255, 0, 0, 255})
		for _, c := range corners {
			dc.DrawCircle(c.X, c.Y, radius)
			dc.Stroke()
		}
		return dc.Image()
	}
	for i, c := range corners {
		col := cornerPalette[(i/patternSize.X)%len(cornerPalette)]
		dc.SetColor(col)
		if i > 0 {
			prev := corners[i-1]
			dc.DrawLine(prev.X, prev.Y, c.X, c.Y)
			dc.Stroke()
		}
		dc.DrawLine(c.X-radius, c.Y-radius, c.X+radius, c.Y+radius)
		dc.DrawLine(c.X-radius, c.Y+radius, c.X+radius, c.Y-radius)
		dc.Stroke()
		dc.DrawCircle(c.X, c.Y, radius)
		dc.Stroke()
	}
	return dc.Image()
}

// Overlay draws a label in the top left corner of img.
func Overlay(img image.Image, label string) image.Image {
	dc := gg.NewContextForImage(img)
	DrawString(dc, label, image.Point{5, 5}, color.RGBA{255, 255, 0, 255}, 14)
	return dc.Image()
}
