package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

var ErrEmptyDataset = errors.New("no rows left in dataset")

// fixedColumns precede the feature columns in every dataset CSV.
var fixedColumns = []string{"id", "species", "latitude", "longitude", "event_date", "label", "col", "row"}

type Row struct {
	ID        string
	Species   string
	Latitude  float64
	Longitude float64
	EventDate string
	Label     int
	Col       int
	Row       int
	Features  []float64
}

// Table is a feature table: ordered feature names plus rows whose Features
// follow that order.
type Table struct {
	Features []string
	Rows     []Row
}

func (t *Table) FeatureIndex(name string) (int, bool) {
	for i, f := range t.Features {
		if f == name {
			return i, true
		}
	}
	return -1, false
}

// Clone deep-copies the table so encodings can be applied without touching
// the original.
func (t *Table) Clone() *Table {
	c := &Table{Features: append([]string{}, t.Features...), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		r.Features = append([]float64{}, r.Features...)
		c.Rows[i] = r
	}
	return c
}

// Matrix returns the design matrix and the labels.
func (t *Table) Matrix() ([][]float64, []float64) {
	x := make([][]float64, len(t.Rows))
	y := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		x[i] = r.Features
		y[i] = float64(r.Label)
	}
	return x, y
}

type Summary struct {
	Rows      int
	Positives int
	Negatives int
	Features  int
	Species   map[string]int
}

func (t *Table) Summary() Summary {
	s := Summary{Rows: len(t.Rows), Features: len(t.Features), Species: map[string]int{}}
	for _, r := range t.Rows {
		if r.Label == 1 {
			s.Positives++
		} else {
			s.Negatives++
		}
		s.Species[r.Species]++
	}
	return s
}

func (s Summary) String() string {
	names := make([]string, 0, len(s.Species))
	for name := range s.Species {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%d rows (%d presence, %d absence), %d features\n", s.Rows, s.Positives, s.Negatives, s.Features)
	for _, name := range names {
		fmt.Fprintf(&b, "  %-40s %d\n", name, s.Species[name])
	}
	return b.String()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (t *Table) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer file.Close()

	w := gocsv.NewSafeCSVWriter(csv.NewWriter(file))
	if err := w.Write(append(append([]string{}, fixedColumns...), t.Features...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range t.Rows {
		record := []string{
			r.ID,
			r.Species,
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			r.EventDate,
			strconv.Itoa(r.Label),
			strconv.Itoa(r.Col),
			strconv.Itoa(r.Row),
		}
		for _, v := range r.Features {
			record = append(record, formatFloat(v))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	return nil
}

func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	r := gocsv.DefaultCSVReader(file)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	if len(header) < len(fixedColumns) {
		return nil, fmt.Errorf("dataset %s has %d columns, want at least %d", path, len(header), len(fixedColumns))
	}
	for i, name := range fixedColumns {
		if header[i] != name {
			return nil, fmt.Errorf("dataset %s: column %d is %q, want %q", path, i+1, header[i], name)
		}
	}

	t := &Table{Features: append([]string{}, header[len(fixedColumns):]...)}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}
		row, err := parseRow(record, len(t.Features))
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return t, nil
}

func parseRow(record []string, features int) (Row, error) {
	if len(record) != len(fixedColumns)+features {
		return Row{}, fmt.Errorf("expected %d fields, got %d", len(fixedColumns)+features, len(record))
	}
	var (
		row  = Row{ID: record[0], Species: record[1], EventDate: record[4]}
		errs []error
	)
	parseFloat := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		errs = append(errs, err)
		return v
	}
	parseInt := func(s string) int {
		v, err := strconv.Atoi(s)
		errs = append(errs, err)
		return v
	}
	row.Latitude = parseFloat(record[2])
	row.Longitude = parseFloat(record[3])
	row.Label = parseInt(record[5])
	row.Col = parseInt(record[6])
	row.Row = parseInt(record[7])
	row.Features = make([]float64, features)
	for i := range row.Features {
		row.Features[i] = parseFloat(record[len(fixedColumns)+i])
	}
	if err := errors.Join(errs...); err != nil {
		return Row{}, err
	}
	if row.Label != 0 && row.Label != 1 {
		return Row{}, fmt.Errorf("label must be 0 or 1, got %d", row.Label)
	}
	return row, nil
}
