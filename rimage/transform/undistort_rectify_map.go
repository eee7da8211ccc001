package transform

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/utils"
)

// InitUndistortRectifyMap builds the tables used by rimage.Remap to undistort and rectify images
// from a camera with matrix k and coefficients d in (k1, k2, p1, p2, k3) order. rect is the
// rectifying rotation and p the new projection matrix (3x3 or 3x4, only the left 3x3 block is
// used); for each destination pixel the tables hold the source pixel it samples.
func InitUndistortRectifyMap(
	k mat.Matrix, d []float64,
	rect, p mat.Matrix,
	size image.Point,
) (*rimage.RemapTable, *rimage.RemapTable, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, nil, errors.Errorf("invalid image size %v", size)
	}
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	if r, c := p.Dims(); r != 3 || (c != 3 && c != 4) {
		return nil, nil, errors.Errorf("projection matrix must be 3x3 or 3x4, got %dx%d", r, c)
	}
	coeffs := make([]float64, 5)
	if len(d) > 5 {
		return nil, nil, errors.Errorf("too many distortion coefficients, expected max 5, got %d", len(d))
	}
	copy(coeffs, d)
	if rect == nil {
		rect = eye(3)
	}

	var ar, inv mat.Dense
	ar.Mul(mat.DenseCopyOf(p).Slice(0, 3, 0, 3), rect)
	if err := inv.Inverse(&ar); err != nil {
		return nil, nil, errors.Wrap(err, "rectified projection is singular")
	}
	var ir [9]float64
	for i := 0; i < 9; i++ {
		ir[i] = inv.At(i/3, i%3)
	}
	fx, fy := k.At(0, 0), k.At(1, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)
	skw := k.At(0, 1)

	mapX := rimage.NewRemapTable(size.X, size.Y)
	mapY := rimage.NewRemapTable(size.X, size.Y)
	utils.ParallelForEachRow(size.Y, func(i int) {
		fi := float64(i)
		xr := fi*ir[1] + ir[2]
		yr := fi*ir[4] + ir[5]
		wr := fi*ir[7] + ir[8]
		for j := 0; j < size.X; j++ {
			fj := float64(j)
			w := 1 / (wr + fj*ir[6])
			x := (xr + fj*ir[0]) * w
			y := (yr + fj*ir[3]) * w
			xd, yd := distort(x, y, coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4])
			mapX.Set(j, i, float32(fx*xd+skw*yd+cx))
			mapY.Set(j, i, float32(fy*yd+cy))
		}
	})
	return mapX, mapY, nil
}
