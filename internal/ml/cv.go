package ml

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// StratifiedKFold splits row indices into k test folds that keep the class
// ratio of labels. Each class is shuffled with seed and dealt round robin.
func StratifiedKFold(labels []float64, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("k must be at least 2, got %d", k)
	}
	byClass := map[float64][]int{}
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	if len(byClass) < 2 {
		return nil, ErrSingleClass
	}
	if len(byClass) > 2 || byClass[0] == nil || byClass[1] == nil {
		return nil, fmt.Errorf("labels must be 0 or 1")
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, class := range []float64{0, 1} {
		idx := byClass[class]
		if len(idx) < k {
			return nil, fmt.Errorf("class %v has %d rows, fewer than %d folds", class, len(idx), k)
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	return folds, nil
}

type FoldResult struct {
	Fold  string `csv:"fold" json:"fold"`
	Train int    `csv:"train" json:"train"`
	Test  int    `csv:"test" json:"test"`
	Scores
}

type CVReport struct {
	Folds []FoldResult
	Mean  Scores
	Std   Scores
}

func subset(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	sx := make([][]float64, len(idx))
	sy := make([]float64, len(idx))
	for i, j := range idx {
		sx[i], sy[i] = x[j], y[j]
	}
	return sx, sy
}

// CrossValidate fits a fresh scaler and model from factory on every
// training split and scores it on the held-out fold. Folds run
// concurrently.
func CrossValidate(x [][]float64, y []float64, k int, seed int64, threshold float64, factory func() *LogisticRegression) (CVReport, error) {
	folds, err := StratifiedKFold(y, k, seed)
	if err != nil {
		return CVReport{}, err
	}

	results := make([]FoldResult, k)
	var g errgroup.Group
	for f := range folds {
		f := f
		g.Go(func() error {
			inTest := make(map[int]bool, len(folds[f]))
			for _, i := range folds[f] {
				inTest[i] = true
			}
			var trainIdx []int
			for i := range y {
				if !inTest[i] {
					trainIdx = append(trainIdx, i)
				}
			}
			trainX, trainY := subset(x, y, trainIdx)
			testX, testY := subset(x, y, folds[f])

			var scaler StandardScaler
			trainX, err := scaler.FitTransform(trainX)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			testX, err = scaler.Transform(testX)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			model := factory()
			if err := model.Fit(trainX, trainY); err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			proba, err := model.PredictProba(testX)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			scores, err := Evaluate(testY, proba, threshold)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f+1, err)
			}
			results[f] = FoldResult{Fold: strconv.Itoa(f + 1), Train: len(trainIdx), Test: len(folds[f]), Scores: scores}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CVReport{}, err
	}

	report := CVReport{Folds: results}
	report.Mean, report.Std = aggregate(results)
	return report, nil
}

func aggregate(folds []FoldResult) (mean, std Scores) {
	pick := func(get func(Scores) float64) (float64, float64) {
		values := make([]float64, len(folds))
		for i, f := range folds {
			values[i] = get(f.Scores)
		}
		return stat.PopMeanStdDev(values, nil)
	}
	mean.Accuracy, std.Accuracy = pick(func(s Scores) float64 { return s.Accuracy })
	mean.Precision, std.Precision = pick(func(s Scores) float64 { return s.Precision })
	mean.Recall, std.Recall = pick(func(s Scores) float64 { return s.Recall })
	mean.F1, std.F1 = pick(func(s Scores) float64 { return s.F1 })
	mean.AUC, std.AUC = pick(func(s Scores) float64 { return s.AUC })
	for _, f := range folds {
		mean.TP += f.TP
		mean.FP += f.FP
		mean.TN += f.TN
		mean.FN += f.FN
	}
	return mean, std
}

// WriteCSV writes one row per fold followed by "mean" and "std" rows. The
// confusion counts of the mean row are totals over all folds.
func (r CVReport) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	rows := append([]FoldResult{}, r.Folds...)
	rows = append(rows, FoldResult{Fold: "mean", Scores: r.Mean}, FoldResult{Fold: "std", Scores: r.Std})
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
