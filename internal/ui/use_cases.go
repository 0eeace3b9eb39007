package ui

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/alecsharpie/ey-frog-challenge/internal/delivery"
	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
)

// FetchOccurrences handles the UI for downloading occurrence records
func FetchOccurrences(ctx context.Context, app *delivery.App) {
	PrintWarning("The records will be written to the data/occurrences folder")

	species := SplitList(ReadString("Enter scientific names (comma separated): "))
	if len(species) == 0 {
		PrintError("at least one scientific name is required")
		return
	}
	bound, err := ReadBound("Enter the bounding box (minLon,minLat,maxLon,maxLat): ")
	if err != nil {
		PrintError(err.Error())
		return
	}
	country := ReadDefault("Enter a country code or leave empty: ", "")
	thin, err := ReadFloat("Minimum distance between records in metres: ", 0)
	if err != nil {
		PrintError(err.Error())
		return
	}
	output := ReadString("Enter output file name: ")

	path, err := app.FetchOccurrences(ctx, delivery.FetchOccurrencesInput{
		Query:      occurrence.Query{ScientificNames: species, Country: country, Bound: bound},
		ThinMeters: thin,
		Output:     output,
	})
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(fmt.Sprintf("Occurrences written to %s", path))
}

// BuildPredictors handles the UI for building a predictor stack
func BuildPredictors(ctx context.Context, app *delivery.App) {
	PrintWarning("The stack will be written to the data/predictors folder. Large areas take a long time")

	bound, err := ReadBound("Enter the bounding box (minLon,minLat,maxLon,maxLat): ")
	if err != nil {
		PrintError(err.Error())
		return
	}
	resolution, err := ReadFloat("Pixel size in degrees: ", 0.0002695)
	if err != nil {
		PrintError(err.Error())
		return
	}
	start, err := ReadDate("Enter the imagery start date (YYYY-MM-DD): ")
	if err != nil {
		PrintError(err.Error())
		return
	}
	end, err := ReadDate("Enter the imagery end date (YYYY-MM-DD) or 'today': ")
	if err != nil {
		PrintError(err.Error())
		return
	}
	output := ReadString("Enter output file name: ")

	path, err := app.BuildPredictors(ctx, delivery.BuildPredictorsInput{
		Bound:      bound,
		Resolution: resolution,
		Start:      start,
		End:        end,
		Output:     output,
	})
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(fmt.Sprintf("Predictor stack written to %s", path))
}

// CreateDataset handles the UI for creating a new dataset
func CreateDataset(ctx context.Context, app *delivery.App) {
	PrintWarning("The resultant dataset will be created at data/datasets folder")

	occurrences, err := SelectFile(app.Config.OccurrencesPath(""), ".csv", "occurrence files")
	if err != nil {
		PrintError(err.Error())
		return
	}
	stack, err := SelectFile(app.Config.PredictorsPath(""), ".tif", "predictor stacks")
	if err != nil {
		PrintError(err.Error())
		return
	}
	target := ReadDefault("Target species (empty labels every record a presence): ", "")
	background, err := ReadNonNegativeInt("Number of background points: ", 0)
	if err != nil {
		PrintError(err.Error())
		return
	}
	exclusion, err := ReadFloat("Background exclusion radius in metres: ", 0)
	if err != nil {
		PrintError(err.Error())
		return
	}
	weatherDays, err := ReadNonNegativeInt("Days of weather before each event (0 disables): ", 0)
	if err != nil {
		PrintError(err.Error())
		return
	}
	onePerPixel := ReadYesNo("Keep one row per pixel? ")
	output := ReadString("Enter output file name: ")

	path, summary, err := app.CreateDataset(ctx, delivery.CreateDatasetInput{
		Occurrences:     occurrences,
		Stack:           stack,
		Target:          target,
		Background:      background,
		Seed:            1,
		ExclusionMeters: exclusion,
		OnePerPixel:     onePerPixel,
		WeatherDays:     weatherDays,
		Output:          output,
	})
	if err != nil {
		PrintError(err.Error())
		return
	}
	fmt.Println(summary.String())
	PrintSuccess(fmt.Sprintf("Dataset written to %s", path))
}

// TrainModel handles the UI for training a model
func TrainModel(ctx context.Context, app *delivery.App) {
	ds, err := SelectFile(app.Config.DatasetsPath(""), ".csv", "datasets")
	if err != nil {
		PrintError(err.Error())
		return
	}
	folds, err := ReadNonNegativeInt("Number of cross validation folds: ", 5)
	if err != nil {
		PrintError(err.Error())
		return
	}
	c, err := ReadFloat("Inverse regularisation strength C: ", 1)
	if err != nil {
		PrintError(err.Error())
		return
	}
	threshold, err := ReadFloat("Presence threshold: ", 0.5)
	if err != nil {
		PrintError(err.Error())
		return
	}
	categorical := SplitList(ReadDefault("Categorical bands: ", "land_cover"))
	output := ReadDefault("Enter model name: ", ds)

	res, err := app.TrainModel(ctx, delivery.TrainModelInput{
		Dataset:     ds,
		Folds:       folds,
		Seed:        1,
		C:           c,
		Threshold:   threshold,
		Categorical: categorical,
		Output:      output,
	})
	if err != nil {
		PrintError(err.Error())
		return
	}
	for _, f := range res.Report.Folds {
		fmt.Printf("%sfold %s: auc %.3f accuracy %.3f f1 %.3f%s\n", ColorGreen, f.Fold, f.Scores.AUC, f.Scores.Accuracy, f.Scores.F1, ColorReset)
	}
	PrintSuccess(fmt.Sprintf("Mean AUC %.3f. Model saved to %s", res.Report.Mean.AUC, res.ModelPath))
}

func selectModelAndStack(app *delivery.App) (string, string, error) {
	model, err := SelectFile(app.Config.ModelsPath(""), ".json", "models")
	if err != nil {
		return "", "", err
	}
	stack, err := SelectFile(app.Config.PredictorsPath(""), ".tif", "predictor stacks")
	if err != nil {
		return "", "", err
	}
	return model, stack, nil
}

// PredictMap handles the UI for scoring every pixel of a stack
func PredictMap(ctx context.Context, app *delivery.App) {
	model, stack, err := selectModelAndStack(app)
	if err != nil {
		PrintError(err.Error())
		return
	}
	path, err := app.PredictMap(ctx, delivery.PredictMapInput{Model: model, Stack: stack, Output: model})
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(fmt.Sprintf("Probability map written to %s", path))
}

// PredictPoints handles the UI for scoring a points file
func PredictPoints(ctx context.Context, app *delivery.App) {
	model, stack, err := selectModelAndStack(app)
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintWarning("The points file needs id, decimalLatitude and decimalLongitude columns")
	points := ReadString("Enter the points file path: ")
	weatherDays, err := ReadNonNegativeInt("Days of weather used in training (0 if none): ", 0)
	if err != nil {
		PrintError(err.Error())
		return
	}

	res, err := app.PredictPoints(ctx, delivery.PredictPointsInput{
		Model:       model,
		Stack:       stack,
		Points:      points,
		WeatherDays: weatherDays,
		Output:      filepath.Base(model),
	})
	if err != nil {
		PrintError(err.Error())
		return
	}
	if res.Undefined > 0 {
		PrintWarning(fmt.Sprintf("%d of %d points had no prediction", res.Undefined, res.Points))
	}
	PrintSuccess(fmt.Sprintf("Submission written to %s", res.SubmissionPath))
}

// ExportDataset handles the UI for copying a dataset to PostgreSQL
func ExportDataset(ctx context.Context, app *delivery.App) {
	ds, err := SelectFile(app.Config.DatasetsPath(""), ".csv", "datasets")
	if err != nil {
		PrintError(err.Error())
		return
	}
	table := ReadDefault("Enter the table name: ", ds)

	n, err := app.ExportDataset(ctx, delivery.ExportDatasetInput{Dataset: ds, Table: table})
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(fmt.Sprintf("%d rows exported to %s", n, table))
}
