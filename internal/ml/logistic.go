package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var (
	ErrNotFitted   = errors.New("model is not fitted")
	ErrSingleClass = errors.New("labels contain a single class")
)

// LogisticRegression is a binary classifier trained on L2-regularised
// log-loss. C is the inverse regularisation strength; the intercept is not
// penalised.
type LogisticRegression struct {
	C       float64 `json:"c"`
	MaxIter int     `json:"max_iter"`
	Tol     float64 `json:"tol"`

	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 1000, Tol: 1e-6}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1+exp(z)) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func checkLabels(y []float64) error {
	var pos, neg int
	for i, v := range y {
		switch v {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return fmt.Errorf("label %d is %v, want 0 or 1", i, v)
		}
	}
	if pos == 0 || neg == 0 {
		return ErrSingleClass
	}
	return nil
}

// Fit minimises mean log-loss + ||w||²/(2·C·n) with L-BFGS.
func (m *LogisticRegression) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("got %d rows and %d labels", len(x), len(y))
	}
	if err := checkLabels(y); err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", m.C)
	}
	n, d := float64(len(x)), len(x[0])
	penalty := 1 / (m.C * n)

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			w, b := params[:d], params[d]
			var loss float64
			for i, row := range x {
				z := floats.Dot(w, row) + b
				loss += softplus(z) - y[i]*z
			}
			return loss/n + 0.5*penalty*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			w, b := params[:d], params[d]
			for j := range grad {
				grad[j] = 0
			}
			for i, row := range x {
				r := sigmoid(floats.Dot(w, row)+b) - y[i]
				floats.AddScaled(grad[:d], r, row)
				grad[d] += r
			}
			floats.Scale(1/n, grad)
			floats.AddScaled(grad[:d], penalty, w)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: m.Tol,
		MajorIterations:   m.MaxIter,
		Converger:         &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-12, Iterations: 50},
	}

	result, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("logistic regression failed: %w", err)
	}
	// A line search that stalls at the optimum reports an error but leaves
	// the best location found, which is still usable.
	if err != nil && !isFinite(result.Location.X) {
		return fmt.Errorf("logistic regression failed: %w", err)
	}

	m.Coef = append([]float64{}, result.Location.X[:d]...)
	m.Intercept = result.Location.X[d]
	return nil
}

func isFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (m *LogisticRegression) probability(row []float64) (float64, error) {
	if m.Coef == nil {
		return 0, ErrNotFitted
	}
	if len(row) != len(m.Coef) {
		return 0, fmt.Errorf("got %d features, model has %d", len(row), len(m.Coef))
	}
	return sigmoid(floats.Dot(m.Coef, row) + m.Intercept), nil
}

// PredictProba returns P(y=1) per row.
func (m *LogisticRegression) PredictProba(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := m.probability(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (m *LogisticRegression) Predict(x [][]float64, threshold float64) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return Threshold(proba, threshold), nil
}

// Threshold maps probabilities to 1 when p >= threshold.
func Threshold(proba []float64, threshold float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}
