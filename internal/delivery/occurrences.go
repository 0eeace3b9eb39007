package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
)

var ErrNoRecords = errors.New("no occurrence records")

// resolve maps an artefact name onto dir unless it is already absolute and
// adds ext when the name has no extension.
func resolve(dir func(string) string, name, ext string) string {
	if filepath.Ext(name) == "" {
		name += ext
	}
	if filepath.IsAbs(name) {
		return name
	}
	return dir(name)
}

func baseName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

type FetchOccurrencesInput struct {
	Query occurrence.Query
	// ThinMeters drops records closer than this to an already kept one.
	ThinMeters float64
	Output     string
}

// FetchOccurrences downloads the records matching in.Query, keeps those
// inside the query bound, thins them and writes the CSV. It returns the
// written path.
func (a *App) FetchOccurrences(ctx context.Context, in FetchOccurrencesInput) (string, error) {
	path, err := a.fetchOccurrences(ctx, in)
	if err != nil {
		return "", a.fail(ctx, "fetch occurrences", err)
	}
	return path, nil
}

func (a *App) fetchOccurrences(ctx context.Context, in FetchOccurrencesInput) (string, error) {
	if in.Output == "" {
		return "", fmt.Errorf("output name is required")
	}
	records, err := a.Occurrences().Search(ctx, in.Query)
	if err != nil {
		return "", err
	}
	a.Metrics.RecordsFetched.Add(float64(len(records)))

	fetched := len(records)
	if !in.Query.Bound.IsZero() {
		records = occurrence.FilterBound(records, in.Query.Bound)
	}
	records, err = occurrence.Thin(records, in.ThinMeters)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	path := resolve(a.Config.OccurrencesPath, in.Output, ".csv")
	if err := occurrence.WriteCSV(path, records); err != nil {
		return "", err
	}
	a.Log.WithFields(logrus.Fields{
		"fetched": fetched,
		"kept":    len(records),
		"species": len(occurrence.Species(records)),
	}).Infof("occurrences written to %s", path)
	return path, nil
}
