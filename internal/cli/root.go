// SPDX-License-Identifier: EPL-2.0

// Package cli implements the uwloc command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ik5/uwloc"
	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/config"
	"github.com/ik5/uwloc/internal/database"
	"github.com/ik5/uwloc/internal/logging"
	"github.com/ik5/uwloc/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time.
var Version = "dev"

type app struct {
	configPath      string
	logLevel        string
	logFormat       string
	metricsTextfile string

	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	metrics  *metrics.Metrics
	store    *arraystore.Context

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		stdin:  in,
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "uwloc",
		Short:         "Store underwater acoustic recordings in a time-aligned array",
		Long:          "uwloc imports recorder WAV files into a database with one row per device and one column per sample since the deployment start date.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "override logging.format: console|json")
	cmd.PersistentFlags().StringVar(&a.metricsTextfile, "metrics-textfile", "", "write import metrics to this node-exporter textfile on exit")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return a.setup()
	}

	cmd.AddCommand(
		newInitDBCmd(a),
		newCreateCmd(a),
		newImportCmd(a),
		newTidyCmd(a),
		newDevicesCmd(a),
		newSliceCmd(a),
		newExportCmd(a),
		newInfoCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
	)

	cmd.SetErrPrefix("uwloc: ")
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	if a.metricsTextfile != "" {
		cfg.Metrics.Textfile = a.metricsTextfile
	}

	log, closeLog, err := logging.New(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.closeLog = closeLog
	a.metrics = metrics.New()
	a.store = arraystore.New(cfg.ArrayStore(log.Named("arraystore")))

	return nil
}

// runE wraps a command body so the metrics textfile and the log are flushed
// whether it fails or not.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		return errors.Join(err, a.teardown())
	}
}

func (a *app) teardown() error {
	var errs []error

	if a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}

	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			errs = append(errs, err)
		}
		a.closeLog = nil
	}

	return errors.Join(errs...)
}

func (a *app) options() []database.Option {
	return []database.Option{
		database.WithLogger(a.log),
		database.WithMetrics(a.metrics),
		database.WithReaders(uwloc.DefaultReaders()),
		database.WithResample(a.cfg.Import.Resample),
	}
}

// openDB opens an existing database, telling the user how to create one
// when path does not hold it.
func (a *app) openDB(ctx context.Context, path string) (*database.Database, error) {
	db, err := database.Open(ctx, a.store, path, a.options()...)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("database %q not found. Run initdb command first: %w", path, err)
	}

	return db, err
}
