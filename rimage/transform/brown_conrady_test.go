package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestBrownConradyCoefficientOrder(t *testing.T) {
	bc, err := NewBrownConradyFromCoefficients([]float64{0.1, 0.2, 0.3, 0.4, 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK1, test.ShouldEqual, 0.1)
	test.That(t, bc.RadialK2, test.ShouldEqual, 0.2)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.3)
	test.That(t, bc.TangentialP2, test.ShouldEqual, 0.4)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0.5)
	test.That(t, bc.Coefficients(), test.ShouldResemble, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0.5, 0.3, 0.4})

	short, err := NewBrownConradyFromCoefficients([]float64{-0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, short.Coefficients(), test.ShouldResemble, []float64{-0.2, 0, 0, 0, 0})

	_, err = NewBrownConradyFromCoefficients(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBrownConradyTransform(t *testing.T) {
	var nilModel *BrownConrady
	x, y := nilModel.Transform(0.3, 0.2)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.2)

	bc := &BrownConrady{RadialK1: 0.1}
	x, y = bc.Transform(0.5, 0)
	test.That(t, x, test.ShouldAlmostEqual, 0.5*(1+0.1*0.25))
	test.That(t, y, test.ShouldEqual, 0)

	tangential := &BrownConrady{TangentialP1: 0.01, TangentialP2: 0.02}
	x, y = tangential.Transform(0.2, 0.1)
	test.That(t, x, test.ShouldAlmostEqual, 0.2+2*0.01*0.02+0.02*(0.05+0.08))
	test.That(t, y, test.ShouldAlmostEqual, 0.1+0.01*(0.05+0.02)+2*0.02*0.02)
}

func TestInverseBrownConrady(t *testing.T) {
	bc := &BrownConrady{RadialK1: -0.25, RadialK2: 0.08, RadialK3: -0.01, TangentialP1: 0.001, TangentialP2: -0.002}
	inv := bc.Inverse()
	test.That(t, inv.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)
	test.That(t, inv.CheckValid(), test.ShouldBeNil)
	for _, p := range [][2]float64{{0, 0}, {0.1, -0.2}, {0.4, 0.3}, {-0.5, 0.25}} {
		xd, yd := bc.Transform(p[0], p[1])
		xu, yu := inv.Transform(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, p[0], 1e-9)
		test.That(t, yu, test.ShouldAlmostEqual, p[1], 1e-9)
	}

	var nilInv *InverseBrownConrady
	test.That(t, nilInv.CheckValid(), test.ShouldNotBeNil)
	test.That(t, nilInv.Parameters(), test.ShouldResemble, []float64{})
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0, 0, 0})

	d, err = NewDistorter(InverseBrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)

	_, err = NewDistorter("fisheye", nil)
	test.That(t, err, test.ShouldNotBeNil)

	var nilModel *BrownConrady
	test.That(t, nilModel.CheckValid(), test.ShouldNotBeNil)
}
