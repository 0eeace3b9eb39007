package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/alecsharpie/ey-frog-challenge/internal/dataset"
)

const (
	LabelPresent = "present"
	LabelAbsent  = "absent"
)

type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

type PixelResult struct {
	ID        string              `json:"id"`
	X         int32               `json:"x"`
	Y         int32               `json:"y"`
	Latitude  float64             `json:"latitude"`
	Longitude float64             `json:"longitude"`
	Result    []*LabelProbability `json:"result"`
}

// Presence returns the probability of LabelPresent, NaN when missing.
func (p PixelResult) Presence() float64 {
	for _, r := range p.Result {
		if r.Label == LabelPresent {
			return r.Probability
		}
	}
	return math.NaN()
}

// Model is everything needed to score new rows: the input columns, the
// one-hot encodings applied to them, the scaler and the regression.
type Model struct {
	RunID      string             `json:"run_id"`
	Species    string             `json:"species"`
	TrainedAt  time.Time          `json:"trained_at"`
	Inputs     []string           `json:"inputs"`
	Encodings  []dataset.Encoding `json:"encodings,omitempty"`
	Features   []string           `json:"features"`
	Scaler     StandardScaler     `json:"scaler"`
	Regression LogisticRegression `json:"regression"`
	Threshold  float64            `json:"threshold"`
	CV         *Scores            `json:"cv,omitempty"`
}

// Train one-hot encodes the categorical columns present in t, scales and
// fits lr on every row. t is not modified.
func Train(t *dataset.Table, categorical []string, lr *LogisticRegression, threshold float64) (*Model, error) {
	if len(t.Rows) == 0 {
		return nil, dataset.ErrEmptyDataset
	}
	m := &Model{Inputs: append([]string{}, t.Features...), Threshold: threshold}

	work := t.Clone()
	for _, band := range categorical {
		if _, ok := work.FeatureIndex(band); !ok {
			continue
		}
		enc, err := dataset.OneHot(work, band, nil)
		if err != nil {
			return nil, err
		}
		m.Encodings = append(m.Encodings, enc)
	}
	m.Features = work.Features

	x, y := work.Matrix()
	scaled, err := m.Scaler.FitTransform(x)
	if err != nil {
		return nil, err
	}
	if err := lr.Fit(scaled, y); err != nil {
		return nil, err
	}
	m.Regression = *lr
	return m, nil
}

// Probability scores one row given in Inputs order. Any NaN input gives
// NaN.
func (m *Model) Probability(values []float64) (float64, error) {
	if len(values) != len(m.Inputs) {
		return 0, fmt.Errorf("got %d inputs, model expects %d", len(values), len(m.Inputs))
	}
	for _, v := range values {
		if math.IsNaN(v) {
			return math.NaN(), nil
		}
	}
	_, expanded, err := dataset.ExpandAll(m.Encodings, m.Inputs, values)
	if err != nil {
		return 0, err
	}
	scaled, err := m.Scaler.TransformRow(expanded)
	if err != nil {
		return 0, err
	}
	return m.Regression.probability(scaled)
}

// Columns maps every model input to its position in names.
func (m *Model) Columns(names []string) ([]int, error) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	cols := make([]int, len(m.Inputs))
	for i, in := range m.Inputs {
		j, ok := pos[in]
		if !ok {
			return nil, fmt.Errorf("input %q missing; have %v", in, names)
		}
		cols[i] = j
	}
	return cols, nil
}

// PredictTable scores every row of t, whose columns may come in any order
// but must include all model inputs.
func (m *Model) PredictTable(t *dataset.Table) ([]PixelResult, error) {
	cols, err := m.Columns(t.Features)
	if err != nil {
		return nil, err
	}
	results := make([]PixelResult, len(t.Rows))
	values := make([]float64, len(cols))
	for i, r := range t.Rows {
		for k, j := range cols {
			values[k] = r.Features[j]
		}
		p, err := m.Probability(values)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", r.ID, err)
		}
		results[i] = PixelResult{
			ID:        r.ID,
			X:         int32(r.Col),
			Y:         int32(r.Row),
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Result: []*LabelProbability{
				{Label: LabelPresent, Probability: p},
				{Label: LabelAbsent, Probability: 1 - p},
			},
		}
	}
	return results, nil
}

func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if m.Regression.Coef == nil {
		return nil, ErrNotFitted
	}
	if len(m.Regression.Coef) != len(m.Features) || len(m.Scaler.Means) != len(m.Features) {
		return nil, fmt.Errorf("model %s is inconsistent: %d features, %d coefficients", path, len(m.Features), len(m.Regression.Coef))
	}
	return &m, nil
}
