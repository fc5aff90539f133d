// Command starpredict predicts satellite positions, ground passes and
// satellite-to-satellite line of sight from two-line element sets, either as
// one-shot commands or as an HTTP service.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/passes"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/tle"
	"github.com/star/starpredict/internal/visibility"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand shares once flags are parsed.
type app struct {
	cfgFile string
	output  string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "starpredict",
		Short: "Predict satellite positions, passes and line-of-sight windows from TLEs",
		Long: `starpredict propagates two-line element sets with SGP4 and answers
observability questions: where a satellite is, when it rises over an observer,
and when two satellites can see each other past the Earth.

The catalog comes from --tle-file, the on-disk cache, or a fetch (--fetch).
Every setting can also be given as a STARPREDICT_* environment variable or in
a --config file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVarP(&a.output, "output", "o", "auto", "output format: table, json, or auto (table on a terminal)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.Int("max-iterations", config.DefaultMaxIterations, "iteration cap for every search loop")
	pf.Bool("debug", false, "log every search step at debug level")
	pf.String("tle-file", "", "load the catalog from this file")
	pf.Bool("fetch", false, "fetch the catalog from the configured source")
	pf.Int("workers", 0, "propagation workers (0 = one per CPU)")

	root.AddCommand(
		a.positionCmd(),
		a.ephemerisCmd(),
		a.transitsCmd(),
		a.windowsCmd(),
		a.passesCmd(),
		a.satvisCmd(),
		a.periodCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.output, err = outputFormat(a.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
	return nil
}

// outputFormat resolves the --output flag. auto picks table when w is a
// terminal and json otherwise.
func outputFormat(flag string, w io.Writer) (string, error) {
	switch f := strings.ToLower(flag); f {
	case "table", "json":
		return f, nil
	case "auto", "":
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			return "table", nil
		}
		return "json", nil
	default:
		return "", errors.Errorf("unknown output format %q, want table, json or auto", flag)
	}
}

func (a *app) sampler() *observe.Sampler {
	return observe.NewSampler(a.cfg.Search, a.logger)
}

func (a *app) scanner() *passes.Scanner {
	return passes.NewScanner(a.sampler())
}

func (a *app) visibility() *visibility.Scanner {
	return visibility.NewScanner(a.cfg.Search, a.logger)
}

// catalog loads the dataset once for a one-shot command.
func (a *app) catalog(ctx context.Context) (*propagation.Catalog, error) {
	ds, err := loadDataset(ctx, a.cfg.TLE, a.logger)
	if err != nil {
		return nil, err
	}
	store := tle.NewStore()
	store.Set(ds)
	return propagation.NewCatalog(store, a.cfg.Workers, a.logger), nil
}

func (a *app) orbit(ctx context.Context, noradID int) (*propagation.Orbit, error) {
	if noradID <= 0 {
		return nil, errors.New("--norad is required")
	}
	cat, err := a.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Orbit(noradID)
}
