package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/dataset"
	"github.com/alecsharpie/ey-frog-challenge/internal/ml"
	"github.com/alecsharpie/ey-frog-challenge/internal/predictor"
	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
	"github.com/alecsharpie/ey-frog-challenge/output"
)

type PredictMapInput struct {
	Model  string
	Stack  string
	Output string
}

// PredictMap scores every pixel of the stack and writes the probability
// GeoTIFF. It returns the written path.
func (a *App) PredictMap(ctx context.Context, in PredictMapInput) (string, error) {
	path, err := a.predictMap(in)
	if err != nil {
		return "", a.fail(ctx, "predict map", err)
	}
	return path, nil
}

func (a *App) predictMap(in PredictMapInput) (string, error) {
	model, err := ml.LoadModel(resolve(a.Config.ModelsPath, in.Model, ".json"))
	if err != nil {
		return "", err
	}
	stack, _, err := predictor.Load(resolve(a.Config.PredictorsPath, in.Stack, ".tif"))
	if err != nil {
		return "", err
	}

	path := a.Config.ResultPath(baseName(in.Output) + "_probability.tif")
	out, err := output.WriteProbabilityGeoTIFF(path, model, stack)
	if err != nil {
		return "", err
	}
	band, err := out.Band(output.ProbabilityBand)
	if err != nil {
		return "", err
	}
	defined := 0
	for _, v := range band.Data {
		if !math.IsNaN(v) {
			defined++
		}
	}
	a.Log.WithFields(logrus.Fields{"pixels": len(band.Data), "defined": defined}).Infof("probability map written to %s", path)
	return path, nil
}

// Point is one row of a points file to score.
type Point struct {
	ID        string  `csv:"id"`
	Latitude  float64 `csv:"decimalLatitude"`
	Longitude float64 `csv:"decimalLongitude"`
	EventDate string  `csv:"eventDate"`
}

func ReadPoints(path string) ([]Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open points: %w", err)
	}
	defer file.Close()

	var points []Point
	if err := gocsv.UnmarshalFile(file, &points); err != nil {
		return nil, fmt.Errorf("failed to parse points %s: %w", path, err)
	}
	for i := range points {
		if points[i].ID == "" {
			points[i].ID = strconv.Itoa(i)
		}
	}
	return points, nil
}

// pointTable samples the stack at every point. Points outside the grid are
// kept with NaN features so they still get a (undefined) prediction.
func pointTable(points []Point, stack *raster.Raster) (*dataset.Table, int, error) {
	t := &dataset.Table{Features: stack.Names()}
	outside := 0
	for _, p := range points {
		row := dataset.Row{ID: p.ID, Latitude: p.Latitude, Longitude: p.Longitude, EventDate: p.EventDate, Col: -1, Row: -1}
		col, r, err := stack.Grid.Index(p.Latitude, p.Longitude)
		switch {
		case errors.Is(err, raster.ErrOutOfBounds):
			outside++
			row.Features = make([]float64, len(t.Features))
			for i := range row.Features {
				row.Features[i] = math.NaN()
			}
		case err != nil:
			return nil, 0, err
		default:
			row.Col, row.Row = col, r
			row.Features = stack.At(col, r)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, outside, nil
}

func usesWeather(m *ml.Model) bool {
	for _, in := range m.Inputs {
		if strings.HasPrefix(in, dataset.WeatherPrefix) {
			return true
		}
	}
	return false
}

type PredictPointsInput struct {
	Model  string
	Stack  string
	Points string
	// WeatherDays must match the window the model was trained with when its
	// inputs include weather metrics.
	WeatherDays int
	// Threshold overrides the model threshold when positive.
	Threshold float64
	Output    string
}

type PredictPointsResult struct {
	GeoJSONPath    string
	SubmissionPath string
	Points         int
	Undefined      int
}

// PredictPoints scores a points file against the stack and writes the
// predictions GeoJSON and the submission CSV.
func (a *App) PredictPoints(ctx context.Context, in PredictPointsInput) (PredictPointsResult, error) {
	res, err := a.predictPoints(ctx, in)
	if err != nil {
		return PredictPointsResult{}, a.fail(ctx, "predict points", err)
	}
	return res, nil
}

func (a *App) predictPoints(ctx context.Context, in PredictPointsInput) (PredictPointsResult, error) {
	model, err := ml.LoadModel(resolve(a.Config.ModelsPath, in.Model, ".json"))
	if err != nil {
		return PredictPointsResult{}, err
	}
	stack, _, err := predictor.Load(resolve(a.Config.PredictorsPath, in.Stack, ".tif"))
	if err != nil {
		return PredictPointsResult{}, err
	}
	points, err := ReadPoints(in.Points)
	if err != nil {
		return PredictPointsResult{}, err
	}

	table, outside, err := pointTable(points, stack)
	if err != nil {
		return PredictPointsResult{}, err
	}
	if outside > 0 {
		a.Log.Warnf("%d of %d points fall outside the predictor grid", outside, len(points))
	}
	if usesWeather(model) {
		if in.WeatherDays <= 0 {
			return PredictPointsResult{}, fmt.Errorf("model uses weather inputs; a weather window is required")
		}
		if err := dataset.Enrich(ctx, table, a.Weather(), in.WeatherDays, a.Config.Workers); err != nil {
			return PredictPointsResult{}, err
		}
	}

	results, err := model.PredictTable(table)
	if err != nil {
		return PredictPointsResult{}, err
	}

	threshold := model.Threshold
	if in.Threshold > 0 {
		threshold = in.Threshold
	}
	name := baseName(in.Output)
	res := PredictPointsResult{
		GeoJSONPath:    a.Config.ResultPath(name + "_predictions.geojson"),
		SubmissionPath: a.Config.ResultPath(name + "_submission.csv"),
		Points:         len(results),
	}
	if err := output.WritePredictionsGeoJSON(res.GeoJSONPath, results); err != nil {
		return PredictPointsResult{}, err
	}
	res.Undefined, err = output.WriteSubmissionCSV(res.SubmissionPath, results, threshold)
	if err != nil {
		return PredictPointsResult{}, err
	}
	if res.Undefined > 0 {
		a.Log.Warnf("%d points had no prediction and were written as absent", res.Undefined)
	}
	a.Log.WithFields(logrus.Fields{"points": res.Points, "threshold": threshold}).Infof("submission written to %s", res.SubmissionPath)
	return res, nil
}
