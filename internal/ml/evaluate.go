package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

type ConfusionMatrix struct {
	TP int `csv:"tp" json:"tp"`
	FP int `csv:"fp" json:"fp"`
	TN int `csv:"tn" json:"tn"`
	FN int `csv:"fn" json:"fn"`
}

type Scores struct {
	Accuracy  float64 `csv:"accuracy" json:"accuracy"`
	Precision float64 `csv:"precision" json:"precision"`
	Recall    float64 `csv:"recall" json:"recall"`
	F1        float64 `csv:"f1" json:"f1"`
	AUC       float64 `csv:"auc" json:"auc"`
	ConfusionMatrix
}

func Confusion(yTrue, yPred []float64) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			cm.TP++
		case yTrue[i] == 0 && yPred[i] == 1:
			cm.FP++
		case yTrue[i] == 0 && yPred[i] == 0:
			cm.TN++
		default:
			cm.FN++
		}
	}
	return cm
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Evaluate scores probabilities against labels at threshold.
func Evaluate(yTrue, proba []float64, threshold float64) (Scores, error) {
	if len(yTrue) != len(proba) || len(yTrue) == 0 {
		return Scores{}, fmt.Errorf("got %d labels and %d predictions", len(yTrue), len(proba))
	}
	cm := Confusion(yTrue, Threshold(proba, threshold))
	s := Scores{
		Accuracy:        ratio(cm.TP+cm.TN, len(yTrue)),
		Precision:       ratio(cm.TP, cm.TP+cm.FP),
		Recall:          ratio(cm.TP, cm.TP+cm.FN),
		ConfusionMatrix: cm,
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	s.AUC = AUC(yTrue, proba)
	return s, nil
}

// AUC is the area under the ROC curve; NaN when only one class is present.
func AUC(yTrue, proba []float64) float64 {
	y := append([]float64{}, proba...)
	classes := make([]bool, len(yTrue))
	var pos int
	for i, v := range yTrue {
		classes[i] = v == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(yTrue) {
		return math.NaN()
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
