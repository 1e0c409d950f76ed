package opts

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/seqops/dropsync/pkg/report"
)

// RootOpts contains shared options used by all commands
type RootOpts struct {
	Config   *config.Config
	Store    metastore.Client // nil when no store section is configured
	Logger   zerolog.Logger   // console logger, teed to the run log when one is configured
	Reporter *report.Logger
	Workers  int
}

// Provider builds the shared options after flag parsing
type Provider func(ctx context.Context) (*RootOpts, error)
