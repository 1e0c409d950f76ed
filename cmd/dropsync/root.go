package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/cmd/dropsync/opts"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/seqops/dropsync/pkg/report"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	// Flags
	configFile string
	dropFolder string
	logFile    string
	debugLog   bool
	workers    int
)

// newRootOpts creates a new rootOpts with initialized dependencies
func newRootOpts(ctx context.Context) (*opts.RootOpts, error) {
	cfg, err := config.Load(ctx, configFile, dropFolder)
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}

	// The --log-file flag wins over the configured run log
	runLog := logFile
	if runLog == "" {
		runLog = cfg.LogFile
	}

	logger := *zerolog.Ctx(ctx)
	if runLog != "" {
		teed, cleanup, err := teeLogger(runLog)
		if err != nil {
			return nil, err
		}
		cobra.OnFinalize(cleanup)
		logger = teed
	}

	var store metastore.Client
	if cfg.Store != nil {
		store = metastore.NewHTTPClient(*cfg.Store)
	}

	reporter := report.New(os.Stdout, logger)

	return &opts.RootOpts{
		Config:   cfg,
		Store:    store,
		Logger:   logger,
		Reporter: reporter,
		Workers:  workers,
	}, nil
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", ".dropsync.yaml", "config file path")
	cmd.PersistentFlags().StringVarP(&dropFolder, "drop-folder", "f", "", "override the configured drop folder")
	cmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", "", "override the configured run log file")
	cmd.PersistentFlags().BoolVarP(&debugLog, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "concurrent file transfers")
}

// setupLogging configures zerolog's level and console output based on flags
func setupLogging() {
	if debugLog {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log := zerolog.New(consoleWriter()).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
}

// teeLogger builds a logger writing to both the console and the run log file
func teeLogger(runLog string) (zerolog.Logger, func(), error) {
	f, err := os.OpenFile(runLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Logger{}, nil, errors.Errorf("opening run log %s: %w", runLog, err)
	}

	out := zerolog.MultiLevelWriter(consoleWriter(), f)
	log := zerolog.New(out).With().Timestamp().Logger()
	return log, func() { f.Close() }, nil
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})
}
