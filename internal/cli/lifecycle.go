// SPDX-License-Identifier: EPL-2.0

package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ik5/uwloc"
	"github.com/ik5/uwloc/internal/database"
	"github.com/ik5/uwloc/utils"
	"github.com/spf13/cobra"
)

func newInitDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "initdb DBPATH WAVS_DIR [MAX_UNITS] [MAX_HOURS]",
		Short: "Create a database starting at the earliest recording and import a directory",
		Long: "initdb scans WAVS_DIR for the earliest recording, creates DBPATH with that start date " +
			"and imports every recording. MAX_UNITS and MAX_HOURS default to deployment.max_units and deployment.max_hours.",
		Args: cobra.RangeArgs(2, 4),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			dbPath, dir := args[0], args[1]

			if err := a.applyLimits(args[2:]); err != nil {
				return err
			}

			start, err := database.FindStartDate(dir, uwloc.DefaultReaders(), a.log)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initializing database in %s with start date: %s\n", dbPath, start.Format(time.RFC3339))

			if err := database.Create(cmd.Context(), a.store, dbPath, a.cfg.DeploymentFor(start), a.log); err != nil {
				return err
			}

			return a.importDir(cmd, dbPath, dir)
		}),
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create DBPATH START_DATE [MAX_UNITS] [MAX_HOURS]",
		Short: "Create an empty database",
		Long: "create initialises DBPATH with START_DATE (RFC 3339) as column zero. " +
			"Running it on an existing database changes nothing.",
		Args: cobra.RangeArgs(2, 4),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid START_DATE %q: %w", args[1], err)
			}

			if err := a.applyLimits(args[2:]); err != nil {
				return err
			}

			if err := database.Create(cmd.Context(), a.store, args[0], a.cfg.DeploymentFor(start), a.log); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Database %s ready, start date %s\n", args[0], start.UTC().Format(time.RFC3339))

			return nil
		}),
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import DBPATH WAVS_DIR",
		Short: "Import every recording under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			return a.importDir(cmd, args[0], args[1])
		}),
	}
}

func newTidyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tidy DBPATH",
		Short: "Consolidate and vacuum a database",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			started := time.Now()
			if err := db.Tidy(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tidied %s in %s\n", args[0], time.Since(started).Round(time.Millisecond))

			return nil
		}),
	}
}

// applyLimits overrides the configured units and hours with the optional
// MAX_UNITS and MAX_HOURS arguments.
func (a *app) applyLimits(args []string) error {
	targets := []*int64{&a.cfg.Deployment.MaxUnits, &a.cfg.Deployment.MaxHours}
	names := []string{"MAX_UNITS", "MAX_HOURS"}

	for i, raw := range args {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive integer", names[i], raw)
		}
		*targets[i] = v
	}

	return nil
}

func (a *app) importDir(cmd *cobra.Command, dbPath, dir string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Importing recordings from %s into %s\n", dir, dbPath)

	db, err := a.openDB(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	started := time.Now()

	report, err := db.ImportDir(ctx, dir)
	printReport(cmd, report, db.Deployment().SampleRate, time.Since(started))

	if err != nil {
		return err
	}

	return a.refreshDevices(ctx, db)
}

func printReport(cmd *cobra.Command, report database.Report, rate int, took time.Duration) {
	out := cmd.OutOrStdout()

	for _, res := range report.Imported {
		fmt.Fprintf(out, "Imported %s. Device: %s, row: %d, secs: %d\n",
			res.Path, res.DeviceID, res.Segment.Row, utils.SecondsForSamples(res.Segment.Length, rate))
	}

	for _, path := range report.Skipped {
		fmt.Fprintf(out, "Skipped %s: missing device id\n", path)
	}

	for _, fe := range report.Failed {
		fmt.Fprintf(out, "Failed %s: %v\n", fe.Path, fe.Err)
	}

	fmt.Fprintf(out, "%s imported, %s skipped, %s failed in %s\n",
		humanize.Comma(int64(len(report.Imported))),
		humanize.Comma(int64(len(report.Skipped))),
		humanize.Comma(int64(len(report.Failed))),
		took.Round(time.Millisecond))
}

func (a *app) refreshDevices(ctx context.Context, db *database.Database) error {
	devices, err := db.Devices(ctx)
	if err != nil {
		return err
	}

	a.metrics.SetDevices(int64(len(devices)))

	return nil
}
