package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wildstyl3r/tracktoy/internal/config"
	"github.com/wildstyl3r/tracktoy/internal/logging"
	"github.com/wildstyl3r/tracktoy/internal/observability"
	"github.com/wildstyl3r/tracktoy/internal/output"
	"github.com/wildstyl3r/tracktoy/internal/sim"
)

func main() {
	var configFileNamePointer = flag.String("input", "tracks", "run configuration in toml format")
	var outputDir = flag.String("out", "", "output directory, overrides OutputDir")
	var threads = flag.Int("threads", runtime.NumCPU(), "tracking workers per scenario")
	var verbose = flag.Bool("v", false, "verbose output")
	var logFormat = flag.String("log-format", "text", "log format: text or json")
	var samples = flag.Bool("samples", false, "sample trajectories every SampleStep")
	var metricsFile = flag.String("metrics", "", "write Prometheus metrics to this textfile")
	dataFlags := output.NewDataFlags(flag.CommandLine)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log := logging.NewFromEnv(logging.Config{Level: level, Format: *logFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, _ = logging.EnsureRunID(ctx)
	ctx = logging.ContextWithLogger(ctx, log)

	if err := run(ctx, *configFileNamePointer, *outputDir, *threads, *verbose, *samples || dataFlags.Plot(), *metricsFile, dataFlags); err != nil {
		log.Error(ctx, "run failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, input, outputDir string, threads int, verbose, samples bool, metricsFile string, df output.DataFlags) error {
	log := logging.FromContext(ctx)
	startTime := time.Now()
	log.Info(ctx, "starting", logging.String("input", input), logging.Int("threads", threads))

	cfg, meta, err := config.LoadConfig(input)
	if err != nil {
		return fmt.Errorf("loading %s: %w", input, err)
	}
	field, err := cfg.Field.Build()
	if err != nil {
		return fmt.Errorf("building field map: %w", err)
	}

	var collector *observability.TrackCollector
	if metricsFile != "" {
		if collector, err = observability.NewTrackCollector(prometheus.NewRegistry()); err != nil {
			return err
		}
	}

	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	df.SetOutputPath(outputDir)

	names := cfg.ScenarioNames()
	if len(names) == 0 {
		log.Info(ctx, "no scenarios provided")
		return nil
	}

	var results []*sim.Result
	var failures []error
	for _, name := range names {
		sp, err := cfg.Scenario(name, &meta)
		if err != nil {
			log.Error(ctx, "scenario skipped", logging.String("scenario", name), logging.Err(err))
			failures = append(failures, err)
			continue
		}
		sp.SetThreads(threads)
		sp.SetVerbosity(verbose)

		res, err := sim.Run(ctx, name, sp, field, sim.Options{
			Threads: sp.Threads(),
			Samples: samples,
			Logger:  log,
			Metrics: collector,
		})
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		s := res.Summary()
		log.Info(ctx, "scenario tracked",
			logging.String("scenario", name),
			logging.Int("particles", s.Particles),
			logging.Int("reached", s.Reached),
			logging.Int("terminated", s.Terminated),
			logging.Int("failed", s.Failed),
			logging.Duration("elapsed", res.Elapsed))

		if err := output.NewDataExtractor(res, &sp, log).Save(ctx, df); err != nil {
			failures = append(failures, err)
			log.Error(ctx, "saving scenario", logging.String("scenario", name), logging.Err(err))
		}
		if df.Plot() {
			saved, err := output.SavePlots(res, df.GetOutputPath(), sp.OutputUnits())
			if err != nil {
				failures = append(failures, err)
				log.Error(ctx, "plotting scenario", logging.String("scenario", name), logging.Err(err))
			}
			for _, f := range saved {
				log.Debug(ctx, "plot saved", logging.String("file", f))
			}
		}
		results = append(results, res)
	}

	if len(results) > 0 {
		if err := output.SaveSummary(results, cfg.MakeDir, df.GetOutputPath(), input, cfg.OutputUnits); err != nil {
			failures = append(failures, err)
		}
	}
	if err := collector.WriteTextfile(metricsFile); err != nil {
		failures = append(failures, err)
	}
	log.Info(ctx, "finished", logging.Duration("elapsed", time.Since(startTime)))
	return errors.Join(failures...)
}
