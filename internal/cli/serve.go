// SPDX-License-Identifier: EPL-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/ik5/uwloc/internal/server"
	"github.com/ik5/uwloc/internal/watcher"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve DBPATH",
		Short: "Serve a database over a read-only HTTP API",
		Long: "serve exposes /api/v1/info, /api/v1/devices, /api/v1/devices/{id}/samples, " +
			"/metrics and /healthz until interrupted. One samples request reads at most server.max_span.",
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			if err := a.refreshDevices(cmd.Context(), db); err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", args[0], addr)

			srv := server.New(db, a.metrics, a.log, server.WithMaxSpan(a.cfg.Server.MaxSpan))

			return srv.Run(cmd.Context(), server.Config{
				Addr:         addr,
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
			})
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")

	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch DBPATH WAVS_DIR",
		Short: "Import recordings as they appear under a directory",
		Long: "watch imports each new file once it has been quiet for watch.settle, tidies every " +
			"watch.tidy_interval while imports happen, and tidies once more on exit.",
		Args: cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			w := watcher.New(db, watcher.Config{
				Settle:       a.cfg.Watch.Settle,
				TidyInterval: a.cfg.Watch.TidyInterval,
				Initial:      initial,
			}, a.log)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for %s\n", args[1], args[0])

			stats, err := w.Run(cmd.Context(), args[1])

			fmt.Fprintf(cmd.OutOrStdout(), "%d imported, %d skipped, %d failed\n", stats.Imported, stats.Skipped, stats.Failed)

			if err != nil {
				return err
			}

			return a.refreshDevices(context.WithoutCancel(cmd.Context()), db)
		}),
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "import files already present before watching")

	return cmd
}
