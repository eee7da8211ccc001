package calibration

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/transform"
)

func TestStoreRoundTrip(t *testing.T) {
	for _, name := range []string{"params.yml", "params.yaml", "params.json"} {
		t.Run(name, func(t *testing.T) {
			logger := logging.NewTestLogger(t)
			path := filepath.Join(t.TempDir(), name)
			want := sampleResult(4, 3)

			store := NewStore(logger)
			store.SetResult(want)
			test.That(t, store.Save(path), test.ShouldBeNil)

			loaded := NewStore(logger)
			got, err := loaded.Load(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got.Equal(want), test.ShouldBeTrue)
			test.That(t, loaded.Result(), test.ShouldEqual, got)
		})
	}
}

func TestStoreSaveLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yml")
	store := NewStore(logging.NewTestLogger(t))
	store.SetResult(sampleResult(2, 2))
	test.That(t, store.Save(path), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	text := string(data)
	test.That(t, strings.HasPrefix(text, "%YAML:1.0\n---\n"), test.ShouldBeTrue)
	for _, field := range []string{
		"CM1", "CM2", "D1", "D2", "R", "T", "E", "F", "R1", "R2", "P1", "P2", "Q",
		"MX1", "MX2", "MY1", "MY2",
	} {
		test.That(t, text, test.ShouldContainSubstring, "\n"+field+": !!opencv-matrix\n")
	}
	test.That(t, text, test.ShouldContainSubstring, "\nW: 2\n")
	test.That(t, text, test.ShouldContainSubstring, "\nH: 2\n")
	test.That(t, text, test.ShouldContainSubstring, "D2: !!opencv-matrix\n   rows: 1\n   cols: 5\n   dt: d\n   data: [ -0.09, 0.0312345, 0, 0, -2.5e-07 ]")
	test.That(t, text, test.ShouldContainSubstring, "T: !!opencv-matrix\n   rows: 3\n   cols: 1\n")
	test.That(t, text, test.ShouldContainSubstring, "MX1: !!opencv-matrix\n   rows: 2\n   cols: 2\n   dt: f\n")
}

const opencvParams = `%YAML:1.0
---
CM1: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 5.2e+02, 0., 3.18e+02, 0., 522., 242., 0., 0., 1. ]
CM2: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 520., 0., 323., 0., 522., 236., 0., 0., 1. ]
D1: !!opencv-matrix
   rows: 1
   cols: 5
   dt: d
   data: [ -1.2e-01, 5.0000000000000003e-02, 0., 0., 0. ]
D2: !!opencv-matrix
   rows: 1
   cols: 5
   dt: d
   data: [ -0.09, 0.03, 0., 0., 0. ]
R: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1., 0., 0., 0., 1., 0., 0., 0., 1. ]
T: !!opencv-matrix
   rows: 3
   cols: 1
   dt: d
   data: [ -2., 0., 0. ]
E: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 0., 0., 0., 0., 0., 2., 0., -2., 0. ]
F: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 0., 0., 0., 0., 0., 1., 0., -1., 1. ]
R1: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1., 0., 0., 0., 1., 0., 0., 0., 1. ]
R2: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1., 0., 0., 0., 1., 0., 0., 0., 1. ]
P1: !!opencv-matrix
   rows: 3
   cols: 4
   dt: d
   data: [ 500., 0., 320., 0., 0., 500., 240., 0., 0., 0., 1., 0. ]
P2: !!opencv-matrix
   rows: 3
   cols: 4
   dt: d
   data: [ 500., 0., 320., -1000., 0., 500., 240., 0., 0., 0., 1.,
       0. ]
Q: !!opencv-matrix
   rows: 4
   cols: 4
   dt: d
   data: [ 1., 0., 0., -320., 0., 1., 0., -240., 0., 0., 0., 500., 0.,
       0., 0.5, 0. ]
W: 3
H: 2
MX1: !!opencv-matrix
   rows: 2
   cols: 3
   dt: f
   data: [ 0., 1., 2., 0., 1., 2. ]
MX2: !!opencv-matrix
   rows: 2
   cols: 3
   dt: f
   data: [ 0.5, 1.5, 2.5, 0.5, 1.5, 2.5 ]
MY1: !!opencv-matrix
   rows: 2
   cols: 3
   dt: f
   data: [ 0., 0., 0., 1., 1., 1. ]
MY2: !!opencv-matrix
   rows: 2
   cols: 3
   dt: f
   data: [ 0., 0., 0., 1., 1., 1. ]
`

func TestStoreLoadOpenCVLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencv.yml")
	test.That(t, os.WriteFile(path, []byte(opencvParams), 0o600), test.ShouldBeNil)

	r, err := NewStore(logging.NewTestLogger(t)).Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.CM1.At(0, 0), test.ShouldEqual, 520.)
	test.That(t, r.CM1.At(0, 2), test.ShouldEqual, 318.)
	test.That(t, r.D1, test.ShouldResemble, []float64{-0.12, 0.05, 0, 0, 0})
	test.That(t, r.T.AtVec(0), test.ShouldEqual, -2.)
	test.That(t, r.P2.At(0, 3), test.ShouldEqual, -1000.)
	test.That(t, r.Q.At(3, 2), test.ShouldEqual, 0.5)
	test.That(t, r.ImageSize.X, test.ShouldEqual, 3)
	test.That(t, r.ImageSize.Y, test.ShouldEqual, 2)
	test.That(t, r.MX2.At(2, 1), test.ShouldEqual, float32(2.5))
	test.That(t, r.MY1.At(1, 1), test.ShouldEqual, float32(1))

	system, err := r.CameraSystem()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, system.Baseline(), test.ShouldAlmostEqual, 2)
}

func TestStoreLoadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	_, err := NewStore(logger).Load(filepath.Join(dir, "missing.yml"))
	test.That(t, errors.Is(err, ErrIO), test.ShouldBeTrue)

	for name, content := range map[string]string{
		"missing field":   strings.Replace(opencvParams, "H: 2\n", "", 1),
		"bad number":      strings.Replace(opencvParams, "[ -0.09, 0.03,", "[ -0.09, abc,", 1),
		"short data":      strings.Replace(opencvParams, "[ 0.5, 1.5, 2.5, 0.5, 1.5, 2.5 ]", "[ 0.5, 1.5 ]", 1),
		"remap size":      strings.Replace(opencvParams, "W: 3\n", "W: 4\n", 1),
		"wrong shape":     strings.Replace(opencvParams, "rows: 4\n   cols: 4", "rows: 2\n   cols: 8", 1),
		"not a mapping":   "%YAML:1.0\n---\n- 1\n- 2\n",
		"not yaml":        "%YAML:1.0\n---\nCM1: [ 1, 2\n",
		"unsupported dt":  strings.Replace(opencvParams, "dt: f", "dt: u", 1),
		"fractional size": strings.Replace(opencvParams, "H: 2\n", "H: 2.5\n", 1),
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yml")
			test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
			store := NewStore(logger)
			_, err := store.Load(path)
			test.That(t, errors.Is(err, ErrFormat), test.ShouldBeTrue)
			test.That(t, store.Result(), test.ShouldBeNil)
		})
	}

	path := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(path, []byte(`{"CM1": {"rows": 3, "cols": 3, "data": [1]}}`), 0o600), test.ShouldBeNil)
	_, err = NewStore(logger).Load(path)
	test.That(t, errors.Is(err, ErrFormat), test.ShouldBeTrue)
}

func TestStoreLoadKeepsPreviousResultOnError(t *testing.T) {
	store := NewStore(logging.NewTestLogger(t))
	prev := sampleResult(2, 2)
	store.SetResult(prev)
	_, err := store.Load(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, store.Result(), test.ShouldEqual, prev)
}

func TestStoreSaveErrors(t *testing.T) {
	store := NewStore(logging.NewTestLogger(t))
	err := store.Save(filepath.Join(t.TempDir(), "params.yml"))
	test.That(t, errors.Is(err, ErrNoResult), test.ShouldBeTrue)

	store.SetResult(sampleResult(2, 2))
	err = store.Save(filepath.Join(t.TempDir(), "no", "such", "dir", "params.yml"))
	test.That(t, errors.Is(err, ErrIO), test.ShouldBeTrue)

	bad := sampleResult(2, 2)
	bad.MY2 = rimage.NewRemapTable(3, 2)
	store.SetResult(bad)
	path := filepath.Join(t.TempDir(), "params.json")
	err = store.Save(path)
	test.That(t, errors.Is(err, ErrFormat), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "MY2")
	_, statErr := os.Stat(path)
	test.That(t, os.IsNotExist(statErr), test.ShouldBeTrue)

	// a failed encode leaves nothing behind
	path = filepath.Join(t.TempDir(), "partial.yml")
	err = writeFile(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("CM1: ")); err != nil {
			return err
		}
		return errors.New("encoder gave up")
	})
	test.That(t, errors.Is(err, ErrFormat), test.ShouldBeTrue)
	_, statErr = os.Stat(path)
	test.That(t, os.IsNotExist(statErr), test.ShouldBeTrue)
}

func TestStoreNonFiniteRoundTrip(t *testing.T) {
	want := sampleResult(3, 2)
	want.D1[0] = math.NaN()
	want.CM1.Set(0, 1, math.Inf(1))
	want.Q.Set(3, 3, math.Inf(-1))
	want.MX2.Data[4] = float32(math.NaN())
	want.MY1.Data[0] = float32(math.Inf(-1))

	// NaN never equals itself as a number, but the stored bits must survive
	test.That(t, want.Equal(want), test.ShouldBeTrue)

	for _, name := range []string{"params.yml", "params.json"} {
		t.Run(name, func(t *testing.T) {
			logger := logging.NewTestLogger(t)
			path := filepath.Join(t.TempDir(), name)
			src := NewStore(logger)
			src.SetResult(want)
			test.That(t, src.Save(path), test.ShouldBeNil)

			data, err := os.ReadFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, string(data), test.ShouldContainSubstring, ".nan")
			test.That(t, string(data), test.ShouldContainSubstring, "-.inf")

			got, err := NewStore(logger).Load(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got.Equal(want), test.ShouldBeTrue)
			test.That(t, math.IsNaN(got.D1[0]), test.ShouldBeTrue)
			test.That(t, math.IsInf(got.CM1.At(0, 1), 1), test.ShouldBeTrue)
		})
	}
}

func TestStoreLoadJSONNumbers(t *testing.T) {
	var doc jsonArray
	test.That(t, json.Unmarshal([]byte(`{"rows":1,"cols":3,"data":[1.5,".inf",".nan"]}`), &doc), test.ShouldBeNil)
	test.That(t, doc.Data[0], test.ShouldEqual, 1.5)
	test.That(t, math.IsInf(doc.Data[1], 1), test.ShouldBeTrue)
	test.That(t, math.IsNaN(doc.Data[2]), test.ShouldBeTrue)

	test.That(t, json.Unmarshal([]byte(`{"rows":1,"cols":1,"data":["many"]}`), &doc), test.ShouldNotBeNil)
	test.That(t, json.Unmarshal([]byte(`{"rows":1,"cols":1,"data":[true]}`), &doc), test.ShouldNotBeNil)
}

func TestStoreDebugDump(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	params := filepath.Join(dir, "params.yml")
	src := NewStore(logger)
	want := sampleResult(3, 2)
	src.SetResult(want)
	test.That(t, src.Save(params), test.ShouldBeNil)

	dump := filepath.Join(dir, "remap.yml")
	_, err := NewStore(logger).Load(params)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(dump)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	_, err = NewStore(logger, WithDebugDump(dump)).Load(params)
	test.That(t, err, test.ShouldBeNil)
	data, err := os.ReadFile(dump)
	test.That(t, err, test.ShouldBeNil)
	text := string(data)
	test.That(t, strings.HasPrefix(text, "%YAML:1.0\n---\n"), test.ShouldBeTrue)
	for _, field := range []string{"MX1", "MX2", "MY1", "MY2"} {
		test.That(t, text, test.ShouldContainSubstring, field+": !!opencv-matrix")
	}
	test.That(t, text, test.ShouldNotContainSubstring, "CM1")
}

func TestStoreDebugDumpFailureIsLogged(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	dir := t.TempDir()
	params := filepath.Join(dir, "params.yml")
	src := NewStore(logger)
	src.SetResult(sampleResult(2, 2))
	test.That(t, src.Save(params), test.ShouldBeNil)

	store := NewStore(logger, WithDebugDump(filepath.Join(dir, "missing", "remap.yml")))
	r, err := store.Load(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r, test.ShouldNotBeNil)
	test.That(t, logs.FilterMessage("cannot write remap debug dump").Len(), test.ShouldEqual, 1)
}

func TestStoreWriteCameraModels(t *testing.T) {
	store := NewStore(logging.NewTestLogger(t))
	path := filepath.Join(t.TempDir(), "cameras.json")
	test.That(t, errors.Is(store.WriteCameraModels(path), ErrNoResult), test.ShouldBeTrue)

	r := sampleResult(4, 3)
	r.R = transform.Rodrigues(r3.Vector{X: 0.01, Y: -0.02, Z: 0.005})
	store.SetResult(r)
	test.That(t, store.WriteCameraModels(path), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	var system transform.StereoCameraSystem
	test.That(t, json.Unmarshal(data, &system), test.ShouldBeNil)
	test.That(t, system.Left.Fx, test.ShouldAlmostEqual, 520.123456789)
	test.That(t, system.Right.Ppx, test.ShouldAlmostEqual, 323.3)
	test.That(t, system.Left.Width, test.ShouldEqual, 4)
	test.That(t, system.Translation.X, test.ShouldAlmostEqual, -2.000001)
}

func TestFormatNumber(t *testing.T) {
	for _, v := range []float64{0, -0.5, 1.0 / 3, 1e-300, 6.02214076e23, math.Inf(1), math.Inf(-1)} {
		got, err := parseNumber(formatNumber(v, 64), 64)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, v)
	}
	nan, err := parseNumber(formatNumber(math.NaN(), 64), 64)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(nan), test.ShouldBeTrue)

	f := float32(1) / 3
	got, err := parseNumber(formatNumber(float64(f), 32), 32)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float32(got), test.ShouldEqual, f)

	_, err = parseNumber("1,5", 64)
	test.That(t, err, test.ShouldNotBeNil)
}
