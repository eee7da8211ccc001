package calibration

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"go.viam.com/stereocal/rimage"
)

// OpenCV FileStorage YAML layout:
//
//	%YAML:1.0
//	---
//	CM1: !!opencv-matrix
//	   rows: 3
//	   cols: 3
//	   dt: d
//	   data: [ 520., 0., 318., ... ]
//	W: 640
const (
	yamlHeader    = "%YAML:1.0\n---\n"
	opencvTag     = "!!opencv-matrix"
	dtDouble      = "d"
	dtFloat       = "f"
	yamlDirective = "%YAML"
)

type fileStorageWriter struct {
	w   *bufio.Writer
	err error
}

func newFileStorageWriter(w io.Writer) *fileStorageWriter {
	fsw := &fileStorageWriter{w: bufio.NewWriter(w)}
	fsw.write(yamlHeader)
	return fsw
}

func (fsw *fileStorageWriter) write(s string) {
	if fsw.err != nil {
		return
	}
	_, fsw.err = fsw.w.WriteString(s)
}

func (fsw *fileStorageWriter) array(name string, rows, cols int, dt string, value func(i int) string) {
	fsw.write(name + ": " + opencvTag + "\n")
	fsw.write("   rows: " + strconv.Itoa(rows) + "\n")
	fsw.write("   cols: " + strconv.Itoa(cols) + "\n")
	fsw.write("   dt: " + dt + "\n")
	fsw.write("   data: [ ")
	for i := 0; i < rows*cols; i++ {
		if i > 0 {
			fsw.write(", ")
		}
		fsw.write(value(i))
	}
	fsw.write(" ]\n")
}

func (fsw *fileStorageWriter) matrix(name string, m mat.Matrix) {
	rows, cols := m.Dims()
	fsw.array(name, rows, cols, dtDouble, func(i int) string {
		return formatNumber(m.At(i/cols, i%cols), 64)
	})
}

func (fsw *fileStorageWriter) vector(name string, v []float64, column bool) {
	rows, cols := 1, len(v)
	if column {
		rows, cols = len(v), 1
	}
	fsw.array(name, rows, cols, dtDouble, func(i int) string { return formatNumber(v[i], 64) })
}

func (fsw *fileStorageWriter) table(name string, t *rimage.RemapTable) {
	fsw.array(name, t.Height, t.Width, dtFloat, func(i int) string {
		return formatNumber(float64(t.Data[i]), 32)
	})
}

func (fsw *fileStorageWriter) integer(name string, v int) {
	fsw.write(name + ": " + strconv.Itoa(v) + "\n")
}

func (fsw *fileStorageWriter) flush() error {
	if fsw.err != nil {
		return fsw.err
	}
	return fsw.w.Flush()
}

// formatNumber writes the shortest representation that parses back to the same value.
func formatNumber(v float64, bitSize int) string {
	switch {
	case math.IsNaN(v):
		return ".nan"
	case math.IsInf(v, 1):
		return ".inf"
	case math.IsInf(v, -1):
		return "-.inf"
	default:
		return strconv.FormatFloat(v, 'g', -1, bitSize)
	}
}

func parseNumber(s string, bitSize int) (float64, error) {
	switch strings.ToLower(s) {
	case ".nan":
		return math.NaN(), nil
	case ".inf", "+.inf":
		return math.Inf(1), nil
	case "-.inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, bitSize)
}

func encodeYAML(r *Result, w io.Writer) error {
	fsw := newFileStorageWriter(w)
	fsw.matrix("CM1", r.CM1)
	fsw.matrix("CM2", r.CM2)
	fsw.vector("D1", r.D1, false)
	fsw.vector("D2", r.D2, false)
	fsw.matrix("R", r.R)
	fsw.vector("T", r.T.RawVector().Data, true)
	fsw.matrix("E", r.E)
	fsw.matrix("F", r.F)
	fsw.matrix("R1", r.R1)
	fsw.matrix("R2", r.R2)
	fsw.matrix("P1", r.P1)
	fsw.matrix("P2", r.P2)
	fsw.matrix("Q", r.Q)
	fsw.integer("W", r.ImageSize.X)
	fsw.integer("H", r.ImageSize.Y)
	fsw.table("MX1", r.MX1)
	fsw.table("MX2", r.MX2)
	fsw.table("MY1", r.MY1)
	fsw.table("MY2", r.MY2)
	return fsw.flush()
}

// encodeRemapYAML writes only the remap tables.
func encodeRemapYAML(r *Result, w io.Writer) error {
	fsw := newFileStorageWriter(w)
	fsw.table("MX1", r.MX1)
	fsw.table("MX2", r.MX2)
	fsw.table("MY1", r.MY1)
	fsw.table("MY2", r.MY2)
	return fsw.flush()
}

type storedArray struct {
	rows, cols int
	dt         string
	data       []*yaml.Node
}

type yamlFields map[string]*yaml.Node

func (f yamlFields) node(name string) (*yaml.Node, error) {
	n, ok := f[name]
	if !ok {
		return nil, errors.Wrapf(ErrFormat, "field %s is missing", name)
	}
	return n, nil
}

func (f yamlFields) array(name string) (*storedArray, error) {
	n, err := f.node(name)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.Wrapf(ErrFormat, "field %s is not a matrix", name)
	}
	arr := &storedArray{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch key {
		case "rows":
			arr.rows, err = strconv.Atoi(val.Value)
		case "cols":
			arr.cols, err = strconv.Atoi(val.Value)
		case "dt":
			arr.dt = val.Value
		case "data":
			if val.Kind != yaml.SequenceNode {
				return nil, errors.Wrapf(ErrFormat, "%s.data is not a sequence", name)
			}
			arr.data = val.Content
		}
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "%s.%s: %v", name, key, err)
		}
	}
	if arr.rows <= 0 || arr.cols <= 0 {
		return nil, errors.Wrapf(ErrFormat, "%s has invalid shape %dx%d", name, arr.rows, arr.cols)
	}
	if arr.dt != dtDouble && arr.dt != dtFloat {
		return nil, errors.Wrapf(ErrFormat, "%s has unsupported element type %q", name, arr.dt)
	}
	if len(arr.data) != arr.rows*arr.cols {
		return nil, errors.Wrapf(ErrFormat, "%s holds %d values, expected %d", name, len(arr.data), arr.rows*arr.cols)
	}
	return arr, nil
}

func (f yamlFields) values(name string) (*storedArray, []float64, error) {
	arr, err := f.array(name)
	if err != nil {
		return nil, nil, err
	}
	bitSize := 64
	if arr.dt == dtFloat {
		bitSize = 32
	}
	out := make([]float64, len(arr.data))
	for i, n := range arr.data {
		if out[i], err = parseNumber(n.Value, bitSize); err != nil {
			return nil, nil, errors.Wrapf(ErrFormat, "%s[%d]: %v", name, i, err)
		}
	}
	return arr, out, nil
}

func (f yamlFields) matrix(name string) (*mat.Dense, error) {
	arr, vals, err := f.values(name)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(arr.rows, arr.cols, vals), nil
}

func (f yamlFields) vector(name string) ([]float64, error) {
	_, vals, err := f.values(name)
	return vals, err
}

func (f yamlFields) integer(name string) (int, error) {
	n, err := f.node(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(n.Value, 64)
	if err != nil || v != math.Trunc(v) {
		return 0, errors.Wrapf(ErrFormat, "field %s is not an integer: %q", name, n.Value)
	}
	return int(v), nil
}

func (f yamlFields) table(name string, width, height int) (*rimage.RemapTable, error) {
	arr, vals, err := f.values(name)
	if err != nil {
		return nil, err
	}
	if arr.rows != height || arr.cols != width {
		return nil, errors.Wrapf(ErrFormat, "%s is %dx%d, expected %dx%d", name, arr.cols, arr.rows, width, height)
	}
	t := rimage.NewRemapTable(width, height)
	for i, v := range vals {
		t.Data[i] = float32(v)
	}
	return t, nil
}

func decodeYAML(data []byte) (*Result, error) {
	// the OpenCV directive is not valid YAML 1.1
	if bytes.HasPrefix(data, []byte(yamlDirective)) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrFormat, "%v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.Wrap(ErrFormat, "expected a mapping of named fields")
	}
	root := doc.Content[0]
	fields := yamlFields{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		fields[root.Content[i].Value] = root.Content[i+1]
	}

	var r Result
	var err error
	for _, m := range []struct {
		name string
		dst  **mat.Dense
	}{
		{"CM1", &r.CM1}, {"CM2", &r.CM2}, {"R", &r.R}, {"E", &r.E}, {"F", &r.F},
		{"R1", &r.R1}, {"R2", &r.R2}, {"P1", &r.P1}, {"P2", &r.P2}, {"Q", &r.Q},
	} {
		if *m.dst, err = fields.matrix(m.name); err != nil {
			return nil, err
		}
	}
	if r.D1, err = fields.vector("D1"); err != nil {
		return nil, err
	}
	if r.D2, err = fields.vector("D2"); err != nil {
		return nil, err
	}
	t, err := fields.vector("T")
	if err != nil {
		return nil, err
	}
	if len(t) != 3 {
		return nil, errors.Wrapf(ErrFormat, "T holds %d values, expected 3", len(t))
	}
	r.T = mat.NewVecDense(3, t)
	if r.ImageSize.X, err = fields.integer("W"); err != nil {
		return nil, err
	}
	if r.ImageSize.Y, err = fields.integer("H"); err != nil {
		return nil, err
	}
	for _, tbl := range []struct {
		name string
		dst  **rimage.RemapTable
	}{{"MX1", &r.MX1}, {"MX2", &r.MX2}, {"MY1", &r.MY1}, {"MY2", &r.MY2}} {
		if *tbl.dst, err = fields.table(tbl.name, r.ImageSize.X, r.ImageSize.Y); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	return &r, nil
}
