package dataset

import (
	"fmt"
	"math"
	"sort"
)

// Encoding expands one categorical column into <band>_<class> indicator
// columns. Values outside Classes expand to all zeros.
type Encoding struct {
	Band    string    `json:"band"`
	Classes []float64 `json:"classes"`
}

func (e Encoding) ColumnNames() []string {
	names := make([]string, len(e.Classes))
	for i, c := range e.Classes {
		names[i] = e.Band + "_" + formatFloat(c)
	}
	return names
}

// Expand replaces the encoded column in names/values with its indicator
// columns, in place of the original column.
func (e Encoding) Expand(names []string, values []float64) ([]string, []float64, error) {
	pos := -1
	for i, n := range names {
		if n == e.Band {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, nil, fmt.Errorf("categorical column %q not found", e.Band)
	}

	outNames := make([]string, 0, len(names)+len(e.Classes)-1)
	outNames = append(outNames, names[:pos]...)
	outNames = append(outNames, e.ColumnNames()...)
	outNames = append(outNames, names[pos+1:]...)

	outValues := make([]float64, 0, len(outNames))
	outValues = append(outValues, values[:pos]...)
	v := values[pos]
	for _, c := range e.Classes {
		switch {
		case math.IsNaN(v):
			outValues = append(outValues, math.NaN())
		case v == c:
			outValues = append(outValues, 1)
		default:
			outValues = append(outValues, 0)
		}
	}
	outValues = append(outValues, values[pos+1:]...)
	return outNames, outValues, nil
}

// ExpandAll applies encodings in order.
func ExpandAll(encodings []Encoding, names []string, values []float64) ([]string, []float64, error) {
	var err error
	for _, e := range encodings {
		if names, values, err = e.Expand(names, values); err != nil {
			return nil, nil, err
		}
	}
	return names, values, nil
}

// OneHot expands band in every row. When classes is empty they are the
// sorted distinct values found in the table. The encoding is returned so
// prediction can expand pixels identically.
func OneHot(t *Table, band string, classes []float64) (Encoding, error) {
	i, ok := t.FeatureIndex(band)
	if !ok {
		return Encoding{}, fmt.Errorf("categorical column %q not found", band)
	}
	if len(classes) == 0 {
		seen := map[float64]bool{}
		for _, r := range t.Rows {
			v := r.Features[i]
			if !math.IsNaN(v) && !seen[v] {
				seen[v] = true
				classes = append(classes, v)
			}
		}
		sort.Float64s(classes)
	}
	if len(classes) == 0 {
		return Encoding{}, fmt.Errorf("column %q has no classes", band)
	}

	enc := Encoding{Band: band, Classes: classes}
	var names []string
	for r := range t.Rows {
		var values []float64
		var err error
		names, values, err = enc.Expand(t.Features, t.Rows[r].Features)
		if err != nil {
			return Encoding{}, err
		}
		t.Rows[r].Features = values
	}
	if names == nil {
		names, _, _ = enc.Expand(t.Features, make([]float64, len(t.Features)))
	}
	t.Features = names
	return enc, nil
}
