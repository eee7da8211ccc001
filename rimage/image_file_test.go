package rimage

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestReadWriteImageFile(t *testing.T) {
	dir := t.TempDir()
	src := gradientGray(16, 8)

	p := filepath.Join(dir, "nested", "img")
	test.That(t, WriteImageToFile(p, src), test.ShouldBeNil)
	_, err := os.Stat(p + ".png")
	test.That(t, err, test.ShouldBeNil)

	img, err := ReadImageFromFile(p + ".png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 16, 8))
	test.That(t, ToGray(img, true).Pix, test.ShouldResemble, src.Pix)

	_, err = ReadImageFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPPM(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tiny.ppm")
	data := append([]byte("P6\n2 1\n255\n"), 10, 20, 30, 40, 50, 60)
	test.That(t, os.WriteFile(p, data, 0o600), test.ShouldBeNil)
	img, err := ReadImageFromFile(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 2)
	r, g, b, _ := img.At(1, 0).RGBA()
	test.That(t, []uint32{r >> 8, g >> 8, b >> 8}, test.ShouldResemble, []uint32{40, 50, 60})
}

func TestSanitizeFileName(t *testing.T) {
	test.That(t, SanitizeFileName("Left"), test.ShouldEqual, "left")
	test.That(t, SanitizeFileName(" Disparity map/1 "), test.ShouldEqual, "disparity_map_1")
	test.That(t, SanitizeFileName(""), test.ShouldEqual, "image")
}
