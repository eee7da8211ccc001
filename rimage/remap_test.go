package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func identityTables(w, h int) (*RemapTable, *RemapTable) {
	mx, my := NewRemapTable(w, h), NewRemapTable(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mx.Set(x, y, float32(x))
			my.Set(x, y, float32(y))
		}
	}
	return mx, my
}

func gradientGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{uint8((3*x + 7*y) % 256)})
		}
	}
	return img
}

func TestRemapIdentity(t *testing.T) {
	src := gradientGray(40, 30)
	mx, my := identityTables(40, 30)
	out, err := Remap(src, mx, my)
	test.That(t, err, test.ShouldBeNil)
	gray, ok := out.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.Pix, test.ShouldResemble, src.Pix)

	rgba := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			rgba.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	out, err = Remap(rgba, mx, my)
	test.That(t, err, test.ShouldBeNil)
	outRGBA, ok := out.(*image.RGBA)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, outRGBA.Pix, test.ShouldResemble, rgba.Pix)
}

func TestRemapShiftAndBorder(t *testing.T) {
	src := gradientGray(20, 10)
	mx, my := identityTables(20, 10)
	for i := range mx.Data {
		mx.Data[i] += 2
	}
	out, err := Remap(src, mx, my)
	test.That(t, err, test.ShouldBeNil)
	gray := out.(*image.Gray)
	test.That(t, gray.GrayAt(0, 3).Y, test.ShouldEqual, src.GrayAt(2, 3).Y)
	test.That(t, gray.GrayAt(18, 3).Y, test.ShouldEqual, 0)
	test.That(t, gray.GrayAt(19, 3).Y, test.ShouldEqual, 0)
}

func TestRemapInterpolates(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix[0], src.Pix[1] = 100, 200
	mx, my := NewRemapTable(1, 1), NewRemapTable(1, 1)
	mx.Set(0, 0, 0.5)
	out, err := Remap(src, mx, my)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.(*image.Gray).Pix[0], test.ShouldEqual, 150)

	// half of the sample lies outside and counts as black
	mx.Set(0, 0, 1.5)
	out, err = Remap(src, mx, my)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.(*image.Gray).Pix[0], test.ShouldEqual, 100)
}

func TestRemapErrors(t *testing.T) {
	src := gradientGray(4, 4)
	_, err := Remap(src, nil, NewRemapTable(4, 4))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Remap(src, NewRemapTable(4, 4), NewRemapTable(3, 4))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Remap(src, &RemapTable{Width: 4, Height: 4}, NewRemapTable(4, 4))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRemapTableEqual(t *testing.T) {
	a, b := identityTables(5, 5)
	test.That(t, a.Equal(a), test.ShouldBeTrue)
	test.That(t, a.Equal(b), test.ShouldBeFalse)
	c := NewRemapTable(5, 5)
	copy(c.Data, a.Data)
	test.That(t, a.Equal(c), test.ShouldBeTrue)
	var nilTable *RemapTable
	test.That(t, nilTable.Equal(nil), test.ShouldBeTrue)
	test.That(t, nilTable.Equal(a), test.ShouldBeFalse)
}
