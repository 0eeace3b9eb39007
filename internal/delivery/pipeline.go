package delivery

import (
	"context"
	"fmt"
)

// PipelineInput chains every use case under one artefact name. Output and
// input names of the steps are filled in from Name.
type PipelineInput struct {
	Name        string
	Occurrences FetchOccurrencesInput
	Predictors  BuildPredictorsInput
	Dataset     CreateDatasetInput
	Train       TrainModelInput
	// Points is scored when set.
	Points    string
	Threshold float64
	// ExportTable exports the dataset to PostgreSQL when set.
	ExportTable string
}

type PipelineResult struct {
	Occurrences string
	Stack       string
	Dataset     string
	Model       TrainModelResult
	Map         string
	Points      *PredictPointsResult
	Exported    int
}

// RunPipeline fetches occurrences, builds predictors, creates the dataset,
// trains, predicts the map and optionally the points file, then exports.
// The first failing step stops the run.
func (a *App) RunPipeline(ctx context.Context, in PipelineInput) (PipelineResult, error) {
	if in.Name == "" {
		return PipelineResult{}, a.fail(ctx, "pipeline", fmt.Errorf("run name is required"))
	}
	var res PipelineResult
	var err error

	occ := in.Occurrences
	occ.Output = in.Name
	if occ.Query.Bound.IsZero() {
		occ.Query.Bound = in.Predictors.Bound
	}
	if res.Occurrences, err = a.FetchOccurrences(ctx, occ); err != nil {
		return res, err
	}

	pred := in.Predictors
	pred.Output = in.Name
	if res.Stack, err = a.BuildPredictors(ctx, pred); err != nil {
		return res, err
	}

	ds := in.Dataset
	ds.Occurrences, ds.Stack, ds.Output = res.Occurrences, res.Stack, in.Name
	if res.Dataset, _, err = a.CreateDataset(ctx, ds); err != nil {
		return res, err
	}

	train := in.Train
	train.Dataset, train.Output = res.Dataset, in.Name
	if res.Model, err = a.TrainModel(ctx, train); err != nil {
		return res, err
	}

	// A model with weather inputs cannot score pixels without event dates.
	if !usesWeather(res.Model.Model) {
		if res.Map, err = a.PredictMap(ctx, PredictMapInput{Model: res.Model.ModelPath, Stack: res.Stack, Output: in.Name}); err != nil {
			return res, err
		}
	}

	if in.Points != "" {
		points, err := a.PredictPoints(ctx, PredictPointsInput{
			Model:       res.Model.ModelPath,
			Stack:       res.Stack,
			Points:      in.Points,
			WeatherDays: ds.WeatherDays,
			Threshold:   in.Threshold,
			Output:      in.Name,
		})
		if err != nil {
			return res, err
		}
		res.Points = &points
	}

	if in.ExportTable != "" {
		if res.Exported, err = a.ExportDataset(ctx, ExportDatasetInput{Dataset: res.Dataset, Table: in.ExportTable}); err != nil {
			return res, err
		}
	}

	a.succeed(ctx, fmt.Sprintf("pipeline %s finished: model %s, cv auc %.3f", in.Name, res.Model.ModelPath, res.Model.Report.Mean.AUC))
	return res, nil
}
