package delivery

import (
	"context"
	"fmt"

	"github.com/alecsharpie/ey-frog-challenge/internal/dataset"
	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
	"github.com/alecsharpie/ey-frog-challenge/internal/predictor"
	"github.com/alecsharpie/ey-frog-challenge/internal/store"
)

type CreateDatasetInput struct {
	Occurrences string
	Stack       string
	// Target labels its records 1 and every other species 0. Empty makes
	// every record a presence.
	Target string
	// Background pseudo-absences are drawn inside the stack extent.
	Background      int
	Seed            int64
	ExclusionMeters float64
	OnePerPixel     bool
	// WeatherDays > 0 appends weather metrics over that many days before
	// each event.
	WeatherDays int
	Output      string
}

// CreateDataset labels the occurrences, joins them to the predictor stack
// and writes the feature table.
func (a *App) CreateDataset(ctx context.Context, in CreateDatasetInput) (string, dataset.Summary, error) {
	path, summary, err := a.createDataset(ctx, in)
	if err != nil {
		return "", dataset.Summary{}, a.fail(ctx, "create dataset", err)
	}
	return path, summary, nil
}

func (a *App) createDataset(ctx context.Context, in CreateDatasetInput) (string, dataset.Summary, error) {
	records, err := occurrence.ReadCSV(resolve(a.Config.OccurrencesPath, in.Occurrences, ".csv"))
	if err != nil {
		return "", dataset.Summary{}, err
	}
	stack, _, err := predictor.Load(resolve(a.Config.PredictorsPath, in.Stack, ".tif"))
	if err != nil {
		return "", dataset.Summary{}, err
	}

	var samples []dataset.Sample
	if in.Target != "" {
		samples, err = dataset.TargetVersusOthers(records, in.Target)
		if err != nil {
			return "", dataset.Summary{}, err
		}
	} else {
		samples = dataset.Presences(records)
	}
	if in.Background > 0 {
		bg, err := dataset.Background(stack.Grid.Bound(), in.Background, in.Seed, dataset.PresenceIndex(samples), in.ExclusionMeters)
		if err != nil {
			return "", dataset.Summary{}, err
		}
		samples = append(samples, bg...)
	}

	table, err := dataset.Join(samples, stack, dataset.JoinOptions{OnePerPixel: in.OnePerPixel, Log: a.Log, Metrics: a.Metrics})
	if err != nil {
		return "", dataset.Summary{}, err
	}
	summary := table.Summary()
	if summary.Positives == 0 || summary.Negatives == 0 {
		a.Log.Warnf("dataset has %d presences and %d absences; training needs both", summary.Positives, summary.Negatives)
	}

	if in.WeatherDays > 0 {
		if err := dataset.Enrich(ctx, table, a.Weather(), in.WeatherDays, a.Config.Workers); err != nil {
			return "", dataset.Summary{}, err
		}
		summary = table.Summary()
	}

	path := resolve(a.Config.DatasetsPath, in.Output, ".csv")
	if err := table.WriteCSV(path); err != nil {
		return "", dataset.Summary{}, err
	}
	a.Log.Infof("dataset written to %s\n%s", path, summary)
	return path, summary, nil
}

type ExportDatasetInput struct {
	Dataset string
	Table   string
}

// ExportDataset replaces the rows of a PostgreSQL table with a feature
// table. It returns the number of rows written.
func (a *App) ExportDataset(ctx context.Context, in ExportDatasetInput) (int, error) {
	n, err := a.exportDataset(ctx, in)
	if err != nil {
		return 0, a.fail(ctx, "export dataset", err)
	}
	return n, nil
}

func (a *App) exportDataset(ctx context.Context, in ExportDatasetInput) (int, error) {
	if a.Config.DatabaseURL == "" {
		return 0, fmt.Errorf("DATABASE_URL is not set")
	}
	table, err := dataset.ReadCSV(resolve(a.Config.DatasetsPath, in.Dataset, ".csv"))
	if err != nil {
		return 0, err
	}
	name := in.Table
	if name == "" {
		name = baseName(in.Dataset)
	}

	db, err := store.Open(ctx, a.Config.DatabaseURL)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	n, err := store.Export(ctx, db, name, table)
	if err != nil {
		return 0, err
	}
	a.Log.Infof("exported %d rows to table %s", n, name)
	return n, nil
}
