package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/thibautjombart/epichange/adapters/excel"
	"github.com/thibautjombart/epichange/adapters/report"
	"github.com/thibautjombart/epichange/app"
	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/domain/model"
	"github.com/thibautjombart/epichange/domain/timeseries"
	"github.com/thibautjombart/epichange/internal/config"
	"github.com/thibautjombart/epichange/internal/testkit"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "epichange",
		Short: "Automatic model selection and trend-change detection for daily count series",
	}

	rootCmd.AddCommand(
		newDetectCmd(),
		newSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDetectCmd() *cobra.Command {
	var (
		maxK     int
		alpha    float64
		method   string
		group    string
		dateCol  string
		countCol string
		fillGaps bool
		asHTML   bool
	)

	cmd := &cobra.Command{
		Use:   "detect [file.csv|file.xlsx]",
		Short: "Run change detection on a daily count file and print a report",
		Long: `Run the full pipeline on a daily count file: fit the candidate models,
pick the best window size for the held-out recent days, and print a report
per group.

Example: epichange detect pathways.csv --group ccg --max-k 7 --alpha 0.05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts, err := cfg.DetectOptions()
			if err != nil {
				return err
			}
			opts = applyFlags(opts, maxK, alpha, method)

			readerOpts := excel.DefaultOptions()
			readerOpts.DateColumn = dateCol
			readerOpts.CountColumn = countCol
			readerOpts.GroupColumn = group
			readerOpts.FillGaps = fillGaps
			provider := excel.NewDataReader(args[0], readerOpts)

			ctx := cmd.Context()
			series, err := provider.Load(ctx)
			if err != nil {
				return err
			}

			var sink *report.MarkdownReporter
			if asHTML {
				sink = report.NewHTMLReporter(os.Stdout)
			} else {
				sink = report.NewMarkdownReporter(os.Stdout)
			}

			service := app.NewDetectionService(nil, sink)
			batch, err := service.RunBatch(ctx, series, opts)
			if err != nil {
				return err
			}
			for _, failure := range batch.Failures {
				fmt.Fprintf(os.Stderr, "group %q failed: %s\n", failure.Group, failure.Cause)
			}
			if len(batch.Detections) == 0 {
				return fmt.Errorf("no group produced a detection result")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxK, "max-k", 0, "largest held-out window size to try (default 7)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "prediction interval miscoverage (default 0.05)")
	cmd.Flags().StringVar(&method, "method", "", "scoring method: jackknife_rmse or aic")
	cmd.Flags().StringVar(&group, "group", "", "column holding the group key (region, CCG)")
	cmd.Flags().StringVar(&dateCol, "date-column", "date", "column holding the observation date")
	cmd.Flags().StringVar(&countCol, "count-column", "count", "column holding the daily count")
	cmd.Flags().BoolVar(&fillGaps, "fill-gaps", false, "zero-fill missing days between first and last date")
	cmd.Flags().BoolVar(&asHTML, "html", false, "emit the report as HTML instead of markdown")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		seed   int64
		nFlat  int
		nShift int
		lambda float64
		rate   float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the pipeline on a synthetic series with a known change point",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := testkit.NewSeriesGenerator(seed)
			start := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

			var ts timeseries.TimeSeries
			if nShift > 0 {
				ts = gen.ChangePoint(nFlat, nShift, lambda, rate, start)
			} else {
				ts = gen.ConstantPoisson(nFlat, lambda, start)
			}

			det, err := detect.Optimize(cmd.Context(), ts, detect.Options{Method: model.MethodJackknifeRMSE})
			if err != nil {
				return err
			}
			sink := report.NewMarkdownReporter(os.Stdout)
			return sink.Write(cmd.Context(), det)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&nFlat, "flat-days", 25, "days of constant rate before the change point")
	cmd.Flags().IntVar(&nShift, "shift-days", 5, "days of exponential growth after the change point")
	cmd.Flags().Float64Var(&lambda, "lambda", 50, "baseline daily rate")
	cmd.Flags().Float64Var(&rate, "rate", 0.2, "exponential growth rate after the change point")
	return cmd
}

func applyFlags(opts detect.Options, maxK int, alpha float64, method string) detect.Options {
	if maxK > 0 {
		opts.MaxK = maxK
	}
	if alpha > 0 && alpha < 1 {
		opts.Alpha = alpha
	}
	if method != "" {
		if m, err := model.ParseMethod(method); err == nil {
			opts.Method = m
		}
	}
	return opts
}
