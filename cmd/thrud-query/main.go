package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"codeberg.org/mutker/thrud/internal/chart"
	"codeberg.org/mutker/thrud/internal/collector"
	"codeberg.org/mutker/thrud/internal/config"
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/query"
	"codeberg.org/mutker/thrud/internal/rate"
	"github.com/spf13/pflag"
)

const usage = `Usage: thrud-query [charts|rates] [flags]

Commands:
  charts  print the latest pre-computed charts (default)
  rates   print per-core and aggregate utilization over a trailing window

Flags:
`

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	errFactory := errors.New()

	command := "charts"
	if len(args) > 0 && (args[0] == "charts" || args[0] == "rates") {
		command, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet("thrud-query", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	encoding := fs.StringP("chart-type", "c", string(chart.Bar), "Chart encoding: bar or braille")
	limit := fs.IntP("limit", "l", 1, "Number of latest rounds to show")
	format := fs.StringP("format", "f", string(query.FormatCompact), "Output format: compact, text (verbose) or yaml")
	window := fs.DurationP("window", "w", rate.DefaultWindow, "Trailing window for rates")
	database := fs.String("database", "", "Path to the sample database (defaults to the collector's)")
	configFile := fs.String("config", "", "Path to the collector configuration file")
	if err := fs.Parse(args); err != nil {
		return errFactory.Wrap(errors.ErrBindFlags, err)
	}

	var opts []config.Option
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	cfg, err := config.Load(nil, opts...)
	if err != nil {
		return err
	}
	if *database != "" {
		cfg.Database = *database
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, false)
	if level < logger.WarnLevel {
		logger.SetLogLevel(logger.WarnLevel)
	}

	f, err := query.ParseFormat(*format)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Database); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	storeCfg := metrics.DefaultConfig(cfg.Database)
	storeCfg.Driver = cfg.Driver
	store, err := metrics.OpenReader(storeCfg, logger.Default().With("metrics"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch command {
	case "rates":
		res, err := rate.NewService(store, logger.Default().With("rate")).Latest(ctx, *window)
		if err != nil {
			return err
		}
		return query.WriteRates(os.Stdout, res, f)
	default:
		enc, err := chart.ParseEncoding(*encoding)
		if err != nil {
			return err
		}
		charts, err := store.LatestCharts(ctx, collector.ChartMetrics, enc, *limit)
		if err != nil {
			return err
		}
		return query.WriteCharts(os.Stdout, charts, f)
	}
}
