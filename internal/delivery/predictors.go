package delivery

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/alecsharpie/ey-frog-challenge/internal/predictor"
)

type BuildPredictorsInput struct {
	Bound      orb.Bound
	Resolution float64
	Start      time.Time
	End        time.Time
	// Specs defaults to predictor.DefaultSpecs.
	Specs  []predictor.Spec
	Output string
}

// BuildPredictors builds the predictor stack over in.Bound and saves it with
// its manifest. It returns the GeoTIFF path.
func (a *App) BuildPredictors(ctx context.Context, in BuildPredictorsInput) (string, error) {
	path, err := a.buildPredictors(ctx, in, a.Catalog())
	if err != nil {
		return "", a.fail(ctx, "build predictors", err)
	}
	return path, nil
}

func (a *App) buildPredictors(ctx context.Context, in BuildPredictorsInput, c predictor.Catalog) (string, error) {
	req := predictor.Request{Bound: in.Bound, Resolution: in.Resolution, Start: in.Start, End: in.End, Specs: in.Specs}
	if len(req.Specs) == 0 {
		req.Specs = predictor.DefaultSpecs()
	}

	builder := a.Predictors(c)
	stack, err := builder.Build(ctx, req)
	if err != nil {
		return "", err
	}
	path := resolve(a.Config.PredictorsPath, in.Output, ".tif")
	if _, err := builder.Save(path, stack, req); err != nil {
		return "", err
	}
	return path, nil
}
