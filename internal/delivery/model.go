package delivery

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/dataset"
	"github.com/alecsharpie/ey-frog-challenge/internal/ml"
)

type TrainModelInput struct {
	Dataset   string
	Folds     int
	Seed      int64
	C         float64
	MaxIter   int
	Threshold float64
	// Categorical bands are one-hot encoded when present in the dataset.
	Categorical []string
	Output      string
}

func (in TrainModelInput) withDefaults() TrainModelInput {
	if in.Folds == 0 {
		in.Folds = 5
	}
	if in.C == 0 {
		in.C = 1
	}
	if in.MaxIter == 0 {
		in.MaxIter = 1000
	}
	if in.Threshold == 0 {
		in.Threshold = 0.5
	}
	return in
}

type TrainModelResult struct {
	Model      *ml.Model
	Report     ml.CVReport
	ModelPath  string
	ReportPath string
}

// TrainModel cross-validates a logistic regression on the dataset, writes
// the fold report, then fits on every row and saves the model.
func (a *App) TrainModel(ctx context.Context, in TrainModelInput) (TrainModelResult, error) {
	res, err := a.trainModel(in.withDefaults())
	if err != nil {
		return TrainModelResult{}, a.fail(ctx, "train model", err)
	}
	return res, nil
}

func (a *App) trainModel(in TrainModelInput) (TrainModelResult, error) {
	table, err := dataset.ReadCSV(resolve(a.Config.DatasetsPath, in.Dataset, ".csv"))
	if err != nil {
		return TrainModelResult{}, err
	}
	factory := func() *ml.LogisticRegression {
		lr := ml.NewLogisticRegression()
		lr.C = in.C
		lr.MaxIter = in.MaxIter
		return lr
	}

	// Folds see the same one-hot columns as the final fit.
	encoded := table.Clone()
	for _, band := range in.Categorical {
		if _, ok := encoded.FeatureIndex(band); !ok {
			continue
		}
		if _, err := dataset.OneHot(encoded, band, nil); err != nil {
			return TrainModelResult{}, err
		}
	}
	x, y := encoded.Matrix()
	report, err := ml.CrossValidate(x, y, in.Folds, in.Seed, in.Threshold, factory)
	if err != nil {
		return TrainModelResult{}, err
	}

	name := baseName(in.Output)
	reportPath := a.Config.ResultPath(name + "_cv.csv")
	if err := report.WriteCSV(reportPath); err != nil {
		return TrainModelResult{}, err
	}
	a.Log.WithFields(logrus.Fields{
		"folds":    in.Folds,
		"auc":      report.Mean.AUC,
		"accuracy": report.Mean.Accuracy,
		"f1":       report.Mean.F1,
	}).Infof("cross validation report written to %s", reportPath)

	start := a.Clock.Now()
	model, err := ml.Train(table, in.Categorical, factory(), in.Threshold)
	if err != nil {
		return TrainModelResult{}, err
	}
	a.Metrics.TrainingDuration.Observe(a.Clock.Since(start).Seconds())

	model.RunID = uuid.NewString()
	model.TrainedAt = a.Clock.Now().UTC()
	model.Species = presentSpecies(table)
	mean := report.Mean
	model.CV = &mean

	modelPath := resolve(a.Config.ModelsPath, in.Output, ".json")
	if err := model.Save(modelPath); err != nil {
		return TrainModelResult{}, err
	}
	a.Log.WithField("run_id", model.RunID).Infof("model saved to %s", modelPath)
	return TrainModelResult{Model: model, Report: report, ModelPath: modelPath, ReportPath: reportPath}, nil
}

func presentSpecies(t *dataset.Table) string {
	seen := map[string]bool{}
	for _, r := range t.Rows {
		if r.Label == 1 {
			seen[r.Species] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
