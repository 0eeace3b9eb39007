package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alecsharpie/ey-frog-challenge/internal/delivery"
	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
	"github.com/alecsharpie/ey-frog-challenge/internal/properties"
	"github.com/alecsharpie/ey-frog-challenge/internal/ui"
)

type cli struct {
	app *delivery.App
	log *logrus.Logger
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(); err != nil {
		c.log.WithError(err).Warn("failed to close")
	}
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: invalid date %q, use YYYY-MM-DD", flag, value)
	}
	return t, nil
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "frog-sdm",
		Short:         "Frog species distribution modelling from open biodiversity and satellite data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := properties.Load(".env", "../.env")
			if err != nil {
				return err
			}
			c.log = logger.New(cfg.LogLevel, cfg.LogFormat)
			c.app = delivery.NewApp(cmd.Context(), cfg, c.log)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { c.close() },
		RunE: func(cmd *cobra.Command, _ []string) error {
			printBanner()
			ui.ShowMenu(cmd.Context(), c.app)
			return nil
		},
	}

	menu := &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		RunE:  root.RunE,
	}

	occurrences := &cobra.Command{Use: "occurrences", Short: "Occurrence records"}
	occurrences.AddCommand(c.fetchOccurrences())

	predictors := &cobra.Command{Use: "predictors", Short: "Predictor stacks"}
	predictors.AddCommand(c.buildPredictors())

	dataset := &cobra.Command{Use: "dataset", Short: "Feature tables"}
	dataset.AddCommand(c.createDataset(), c.exportDataset())

	model := &cobra.Command{Use: "model", Short: "Training and prediction"}
	model.AddCommand(c.trainModel(), c.predictMap(), c.predictPoints())

	root.AddCommand(menu, occurrences, predictors, dataset, model, c.runPipeline())
	return root
}

type occurrenceFlags struct {
	species []string
	taxa    []int
	country string
	bbox    string
	start   string
	end     string
	max     int
	thin    float64
}

func (f *occurrenceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.species, "species", nil, "scientific names to fetch")
	cmd.Flags().IntSliceVar(&f.taxa, "taxon-key", nil, "GBIF taxon keys to fetch")
	cmd.Flags().StringVar(&f.country, "country", "", "ISO country code")
	cmd.Flags().StringVar(&f.bbox, "bbox", "", "minLon,minLat,maxLon,maxLat")
	cmd.Flags().StringVar(&f.start, "from", "", "first event date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "to", "", "last event date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.max, "max-records", 0, "stop after this many records (0 for all)")
	cmd.Flags().Float64Var(&f.thin, "thin", 0, "minimum distance between kept records in metres")
}

func (f *occurrenceFlags) input(output string) (delivery.FetchOccurrencesInput, error) {
	in := delivery.FetchOccurrencesInput{
		Query:      occurrence.Query{ScientificNames: f.species, TaxonKeys: f.taxa, Country: f.country, MaxRecords: f.max},
		ThinMeters: f.thin,
		Output:     output,
	}
	if len(f.species) == 0 && len(f.taxa) == 0 {
		return in, fmt.Errorf("--species or --taxon-key is required")
	}
	var err error
	if f.bbox != "" {
		if in.Query.Bound, err = ui.ParseBound(f.bbox); err != nil {
			return in, err
		}
	}
	if in.Query.Start, err = parseDate("from", f.start); err != nil {
		return in, err
	}
	if in.Query.End, err = parseDate("to", f.end); err != nil {
		return in, err
	}
	return in, nil
}

func (c *cli) fetchOccurrences() *cobra.Command {
	var f occurrenceFlags
	var output string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download occurrence records into data/occurrences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := f.input(output)
			if err != nil {
				return err
			}
			path, err := c.app.FetchOccurrences(cmd.Context(), in)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Occurrences written to %s", path))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file name")
	cmd.MarkFlagRequired("output")
	return cmd
}

type predictorFlags struct {
	bbox       string
	resolution float64
	start      string
	end        string
}

func (f *predictorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bbox, "bbox", "", "minLon,minLat,maxLon,maxLat")
	cmd.Flags().Float64Var(&f.resolution, "resolution", 0.0002695, "pixel size in degrees")
	cmd.Flags().StringVar(&f.start, "from", "", "imagery start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "to", "", "imagery end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("bbox")
}

func (f *predictorFlags) input(output string) (delivery.BuildPredictorsInput, error) {
	in := delivery.BuildPredictorsInput{Resolution: f.resolution, Output: output}
	var err error
	if in.Bound, err = ui.ParseBound(f.bbox); err != nil {
		return in, err
	}
	if in.Start, err = parseDate("from", f.start); err != nil {
		return in, err
	}
	if in.End, err = parseDate("to", f.end); err != nil {
		return in, err
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return in, fmt.Errorf("--from and --to are required")
	}
	return in, nil
}

func (c *cli) buildPredictors() *cobra.Command {
	var f predictorFlags
	var output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the predictor stack GeoTIFF into data/predictors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := f.input(output)
			if err != nil {
				return err
			}
			path, err := c.app.BuildPredictors(cmd.Context(), in)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Predictor stack written to %s", path))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file name")
	cmd.MarkFlagRequired("output")
	return cmd
}

type datasetFlags struct {
	target      string
	background  int
	seed        int64
	exclusion   float64
	onePerPixel bool
	weatherDays int
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.target, "target", "", "species labelled present; others become absences")
	cmd.Flags().IntVar(&f.background, "background", 0, "number of background pseudo-absences")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "random seed")
	cmd.Flags().Float64Var(&f.exclusion, "exclusion", 0, "background exclusion radius around presences in metres")
	cmd.Flags().BoolVar(&f.onePerPixel, "one-per-pixel", false, "keep a single row per pixel")
	cmd.Flags().IntVar(&f.weatherDays, "weather-days", 0, "append weather metrics over this many days before each event")
}

func (f *datasetFlags) input() delivery.CreateDatasetInput {
	return delivery.CreateDatasetInput{
		Target:          f.target,
		Background:      f.background,
		Seed:            f.seed,
		ExclusionMeters: f.exclusion,
		OnePerPixel:     f.onePerPixel,
		WeatherDays:     f.weatherDays,
	}
}

func (c *cli) createDataset() *cobra.Command {
	var f datasetFlags
	var occurrences, stack, output string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Join occurrences to a predictor stack into data/datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := f.input()
			in.Occurrences, in.Stack, in.Output = occurrences, stack, output
			path, summary, err := c.app.CreateDataset(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Println(summary.String())
			ui.PrintSuccess(fmt.Sprintf("Dataset written to %s", path))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&occurrences, "occurrences", "", "occurrences file name")
	cmd.Flags().StringVar(&stack, "stack", "", "predictor stack name")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file name")
	for _, name := range []string{"occurrences", "stack", "output"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) exportDataset() *cobra.Command {
	var in delivery.ExportDatasetInput
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a dataset into a PostgreSQL table (DATABASE_URL)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.ExportDataset(cmd.Context(), in)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("%d rows exported", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Dataset, "dataset", "", "dataset name")
	cmd.Flags().StringVar(&in.Table, "table", "", "table name (defaults to the dataset name)")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

type trainFlags struct {
	folds       int
	seed        int64
	c           float64
	maxIter     int
	threshold   float64
	categorical []string
}

func (f *trainFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.folds, "folds", 5, "cross validation folds")
	cmd.Flags().Int64Var(&f.seed, "cv-seed", 1, "fold assignment seed")
	cmd.Flags().Float64Var(&f.c, "c", 1, "inverse L2 regularisation strength")
	cmd.Flags().IntVar(&f.maxIter, "max-iter", 1000, "optimiser iterations")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0.5, "presence probability threshold")
	cmd.Flags().StringSliceVar(&f.categorical, "categorical", []string{"land_cover"}, "bands to one-hot encode")
}

func (f *trainFlags) input() delivery.TrainModelInput {
	return delivery.TrainModelInput{
		Folds:       f.folds,
		Seed:        f.seed,
		C:           f.c,
		MaxIter:     f.maxIter,
		Threshold:   f.threshold,
		Categorical: f.categorical,
	}
}

func (c *cli) trainModel() *cobra.Command {
	var f trainFlags
	var ds, output string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Cross-validate and fit a logistic regression into data/models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := f.input()
			in.Dataset, in.Output = ds, output
			if in.Output == "" {
				in.Output = ds
			}
			res, err := c.app.TrainModel(cmd.Context(), in)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Mean AUC %.3f (±%.3f). Model saved to %s, report at %s",
				res.Report.Mean.AUC, res.Report.Std.AUC, res.ModelPath, res.ReportPath))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&ds, "dataset", "", "dataset name")
	cmd.Flags().StringVarP(&output, "output", "o", "", "model name (defaults to the dataset name)")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

func (c *cli) predictMap() *cobra.Command {
	var in delivery.PredictMapInput
	cmd := &cobra.Command{
		Use:   "predict-map",
		Short: "Write the presence probability GeoTIFF of a stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Output == "" {
				in.Output = in.Model
			}
			path, err := c.app.PredictMap(cmd.Context(), in)
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Probability map written to %s", path))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Model, "model", "", "model name")
	cmd.Flags().StringVar(&in.Stack, "stack", "", "predictor stack name")
	cmd.Flags().StringVarP(&in.Output, "output", "o", "", "output name (defaults to the model name)")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("stack")
	return cmd
}

func (c *cli) predictPoints() *cobra.Command {
	var in delivery.PredictPointsInput
	cmd := &cobra.Command{
		Use:   "predict-points",
		Short: "Score a points CSV and write the predictions GeoJSON and submission CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Output == "" {
				in.Output = in.Model
			}
			res, err := c.app.PredictPoints(cmd.Context(), in)
			if err != nil {
				return err
			}
			if res.Undefined > 0 {
				ui.PrintWarning(fmt.Sprintf("%d of %d points had no prediction", res.Undefined, res.Points))
			}
			ui.PrintSuccess(fmt.Sprintf("Submission written to %s, predictions to %s", res.SubmissionPath, res.GeoJSONPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Model, "model", "", "model name")
	cmd.Flags().StringVar(&in.Stack, "stack", "", "predictor stack name")
	cmd.Flags().StringVar(&in.Points, "points", "", "CSV with id, decimalLatitude, decimalLongitude and optional eventDate")
	cmd.Flags().IntVar(&in.WeatherDays, "weather-days", 0, "weather window the model was trained with")
	cmd.Flags().Float64Var(&in.Threshold, "threshold", 0, "override the model threshold")
	cmd.Flags().StringVarP(&in.Output, "output", "o", "", "output name (defaults to the model name)")
	for _, name := range []string{"model", "stack", "points"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) runPipeline() *cobra.Command {
	var (
		occ      occurrenceFlags
		pred     predictorFlags
		ds       datasetFlags
		train    trainFlags
		name     string
		points   string
		exportTo string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, build, join, train and predict in one go",
		RunE: func(cmd *cobra.Command, _ []string) error {
			occIn, err := occ.input(name)
			if err != nil {
				return err
			}
			predIn, err := pred.input(name)
			if err != nil {
				return err
			}
			res, err := c.app.RunPipeline(cmd.Context(), delivery.PipelineInput{
				Name:        name,
				Occurrences: occIn,
				Predictors:  predIn,
				Dataset:     ds.input(),
				Train:       train.input(),
				Points:      points,
				ExportTable: exportTo,
			})
			if err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Pipeline finished. Model %s, mean AUC %.3f", res.Model.ModelPath, res.Model.Report.Mean.AUC))
			return nil
		},
	}
	// --bbox bounds both the occurrence query and the predictor stack.
	pred.register(cmd)
	cmd.Flags().StringSliceVar(&occ.species, "species", nil, "scientific names to fetch")
	cmd.Flags().IntSliceVar(&occ.taxa, "taxon-key", nil, "GBIF taxon keys to fetch")
	cmd.Flags().StringVar(&occ.country, "country", "", "ISO country code")
	cmd.Flags().IntVar(&occ.max, "max-records", 0, "stop after this many records (0 for all)")
	cmd.Flags().Float64Var(&occ.thin, "thin", 0, "minimum distance between kept records in metres")
	ds.register(cmd)
	train.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "name shared by every artefact of the run")
	cmd.Flags().StringVar(&points, "points", "", "points CSV to score after training")
	cmd.Flags().StringVar(&exportTo, "export-table", "", "PostgreSQL table to export the dataset to")
	cmd.MarkFlagRequired("name")
	return cmd
}
