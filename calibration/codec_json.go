package calibration

import (
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
)

// jsonArray mirrors the OpenCV matrix node so both formats carry the same fields.
type jsonArray struct {
	Rows int         `json:"rows"`
	Cols int         `json:"cols"`
	Data jsonNumbers `json:"data"`
}

type jsonTable struct {
	Rows int           `json:"rows"`
	Cols int           `json:"cols"`
	Data jsonNumbers32 `json:"data"`
}

// jsonNumbers writes NaN and infinities as the strings ".nan", ".inf" and "-.inf", which plain
// JSON numbers cannot hold.
type jsonNumbers []float64

type jsonNumbers32 []float32

func (n jsonNumbers) MarshalJSON() ([]byte, error) {
	return marshalNumbers(len(n), func(i int) float64 { return n[i] }, 64), nil
}

func (n *jsonNumbers) UnmarshalJSON(data []byte) error {
	vals, err := unmarshalNumbers(data, 64)
	*n = vals
	return err
}

func (n jsonNumbers32) MarshalJSON() ([]byte, error) {
	return marshalNumbers(len(n), func(i int) float64 { return float64(n[i]) }, 32), nil
}

func (n *jsonNumbers32) UnmarshalJSON(data []byte) error {
	vals, err := unmarshalNumbers(data, 32)
	if err != nil {
		return err
	}
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v)
	}
	*n = out
	return nil
}

func marshalNumbers(n int, at func(i int) float64, bitSize int) []byte {
	buf := make([]byte, 0, 2+n*8)
	buf = append(buf, '[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		v := at(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf = strconv.AppendQuote(buf, formatNumber(v, bitSize))
			continue
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, bitSize)
	}
	return append(buf, ']')
}

func unmarshalNumbers(data []byte, bitSize int) ([]float64, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	vals := make([]float64, len(raw))
	for i, r := range raw {
		text := string(r)
		if len(r) > 0 && r[0] == '"' {
			if err := json.Unmarshal(r, &text); err != nil {
				return nil, err
			}
		}
		v, err := parseNumber(text, bitSize)
		if err != nil {
			return nil, errors.Errorf("element %d: %v", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

type resultJSON struct {
	CM1 *jsonArray `json:"CM1"`
	CM2 *jsonArray `json:"CM2"`
	D1  *jsonArray `json:"D1"`
	D2  *jsonArray `json:"D2"`
	R   *jsonArray `json:"R"`
	T   *jsonArray `json:"T"`
	E   *jsonArray `json:"E"`
	F   *jsonArray `json:"F"`
	R1  *jsonArray `json:"R1"`
	R2  *jsonArray `json:"R2"`
	P1  *jsonArray `json:"P1"`
	P2  *jsonArray `json:"P2"`
	Q   *jsonArray `json:"Q"`
	W   *int       `json:"W"`
	H   *int       `json:"H"`
	MX1 *jsonTable `json:"MX1"`
	MX2 *jsonTable `json:"MX2"`
	MY1 *jsonTable `json:"MY1"`
	MY2 *jsonTable `json:"MY2"`
}

func toJSONArray(m *mat.Dense) *jsonArray {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return &jsonArray{Rows: rows, Cols: cols, Data: data}
}

func toJSONTable(t *rimage.RemapTable) *jsonTable {
	return &jsonTable{Rows: t.Height, Cols: t.Width, Data: t.Data}
}

func encodeJSON(r *Result, w io.Writer) error {
	width, height := r.ImageSize.X, r.ImageSize.Y
	doc := resultJSON{
		CM1: toJSONArray(r.CM1),
		CM2: toJSONArray(r.CM2),
		D1:  &jsonArray{Rows: 1, Cols: len(r.D1), Data: jsonNumbers(r.D1)},
		D2:  &jsonArray{Rows: 1, Cols: len(r.D2), Data: jsonNumbers(r.D2)},
		R:   toJSONArray(r.R),
		T:   &jsonArray{Rows: 3, Cols: 1, Data: r.T.RawVector().Data},
		E:   toJSONArray(r.E),
		F:   toJSONArray(r.F),
		R1:  toJSONArray(r.R1),
		R2:  toJSONArray(r.R2),
		P1:  toJSONArray(r.P1),
		P2:  toJSONArray(r.P2),
		Q:   toJSONArray(r.Q),
		W:   &width,
		H:   &height,
		MX1: toJSONTable(r.MX1),
		MX2: toJSONTable(r.MX2),
		MY1: toJSONTable(r.MY1),
		MY2: toJSONTable(r.MY2),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (a *jsonArray) check(name string) error {
	if a == nil {
		return errors.Wrapf(ErrFormat, "field %s is missing", name)
	}
	if a.Rows <= 0 || a.Cols <= 0 || len(a.Data) != a.Rows*a.Cols {
		return errors.Wrapf(ErrFormat, "%s is %dx%d with %d values", name, a.Rows, a.Cols, len(a.Data))
	}
	return nil
}

func decodeJSON(data []byte) (*Result, error) {
	var doc resultJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrFormat, "%v", err)
	}
	var r Result
	for _, m := range []struct {
		name string
		src  *jsonArray
		dst  **mat.Dense
	}{
		{"CM1", doc.CM1, &r.CM1}, {"CM2", doc.CM2, &r.CM2}, {"R", doc.R, &r.R},
		{"E", doc.E, &r.E}, {"F", doc.F, &r.F}, {"R1", doc.R1, &r.R1}, {"R2", doc.R2, &r.R2},
		{"P1", doc.P1, &r.P1}, {"P2", doc.P2, &r.P2}, {"Q", doc.Q, &r.Q},
	} {
		if err := m.src.check(m.name); err != nil {
			return nil, err
		}
		*m.dst = mat.NewDense(m.src.Rows, m.src.Cols, []float64(m.src.Data))
	}
	for _, v := range []struct {
		name string
		src  *jsonArray
		dst  *[]float64
	}{{"D1", doc.D1, &r.D1}, {"D2", doc.D2, &r.D2}} {
		if err := v.src.check(v.name); err != nil {
			return nil, err
		}
		*v.dst = []float64(v.src.Data)
	}
	if err := doc.T.check("T"); err != nil {
		return nil, err
	}
	if len(doc.T.Data) != 3 {
		return nil, errors.Wrapf(ErrFormat, "T holds %d values, expected 3", len(doc.T.Data))
	}
	r.T = mat.NewVecDense(3, []float64(doc.T.Data))
	if doc.W == nil || doc.H == nil {
		return nil, errors.Wrap(ErrFormat, "fields W and H are required")
	}
	r.ImageSize.X, r.ImageSize.Y = *doc.W, *doc.H
	for _, t := range []struct {
		name string
		src  *jsonTable
		dst  **rimage.RemapTable
	}{{"MX1", doc.MX1, &r.MX1}, {"MX2", doc.MX2, &r.MX2}, {"MY1", doc.MY1, &r.MY1}, {"MY2", doc.MY2, &r.MY2}} {
		if t.src == nil {
			return nil, errors.Wrapf(ErrFormat, "field %s is missing", t.name)
		}
		if t.src.Rows != r.ImageSize.Y || t.src.Cols != r.ImageSize.X || len(t.src.Data) != t.src.Rows*t.src.Cols {
			return nil, errors.Wrapf(ErrFormat, "%s is %dx%d, expected %dx%d",
				t.name, t.src.Cols, t.src.Rows, r.ImageSize.X, r.ImageSize.Y)
		}
		*t.dst = &rimage.RemapTable{Width: t.src.Cols, Height: t.src.Rows, Data: []float32(t.src.Data)}
	}
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	return &r, nil
}
