// SPDX-License-Identifier: EPL-2.0

package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ik5/uwloc/formats/wav"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDevicesCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "devices DBPATH",
		Short: "List registered devices and their rows",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.Entries(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			switch format := normalizeOutput(output); format {
			case outputTable, "":
				tw := newTable(out)
				fmt.Fprintln(tw, "ROW\tDEVICE\tFIRST SEEN")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", e.RowID, e.DeviceID, e.FirstSeen.Format(time.RFC3339))
				}
				return tw.Flush()
			default:
				return writeStructured(out, format, entries)
			}
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table|json|yaml")

	return cmd
}

func newSliceCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "slice DBPATH DEVICE_ID START END",
		Short: "Write one device's samples between two offsets as a WAV file",
		Long: "slice reads DEVICE_ID over [START, END) whole seconds after the start date and writes a mono WAV. " +
			"Samples never recorded read as silence.",
		Args: cobra.ExactArgs(4),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			start, err := parseSeconds("START", args[2])
			if err != nil {
				return err
			}

			end, err := parseSeconds("END", args[3])
			if err != nil {
				return err
			}

			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			id := args[1]

			if _, ok, err := db.RowFor(cmd.Context(), id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("unknown device %q", id)
			}

			samples, err := db.ReadDevice(cmd.Context(), id, start, end)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = fmt.Sprintf("%s_%d_%d.wav", safeName(id), start, end)
			}

			if outPath == "-" {
				return wav.WriteWAV16(cmd.OutOrStdout(), db.Deployment().SampleRate, samples)
			}

			if err := writeWAVFile(outPath, db.Deployment().SampleRate, samples); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s samples)\n", outPath, humanize.Comma(int64(len(samples))))

			return nil
		}),
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default DEVICE_START_END.wav)")

	return cmd
}

// exportRow is one device in the export listing. Samples stay out of the
// listing; --wav-dir writes them.
type exportRow struct {
	DeviceID  string    `json:"device_id" yaml:"device_id"`
	RowID     int64     `json:"row_id" yaml:"row_id"`
	FirstSeen time.Time `json:"first_seen" yaml:"first_seen"`
	Samples   int       `json:"samples" yaml:"samples"`
	Recorded  int       `json:"recorded" yaml:"recorded"`
	File      string    `json:"file,omitempty" yaml:"file,omitempty"`
}

func newExportCmd(a *app) *cobra.Command {
	var (
		output string
		wavDir string
	)

	cmd := &cobra.Command{
		Use:   "export DBPATH",
		Short: "Export every device row",
		Long: "export loads every registered row and lists it as csv, json or yaml. " +
			"With --wav-dir each row is also written as DEVICE.wav. recorded counts non-zero samples.",
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			format := normalizeOutput(output)
			if format != outputCSV && format != outputJSON && format != outputYAML {
				return fmt.Errorf("unsupported --output %q (supported: csv, json, yaml)", output)
			}

			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			table, err := db.ExportTable(cmd.Context())
			if err != nil {
				return err
			}

			if wavDir != "" {
				if err := os.MkdirAll(wavDir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", wavDir, err)
				}
			}

			rows := make([]exportRow, 0, len(table))

			for _, tr := range table {
				row := exportRow{
					DeviceID:  tr.DeviceID,
					RowID:     tr.RowID,
					FirstSeen: tr.FirstSeen,
					Samples:   len(tr.Samples),
					Recorded:  countNonZero(tr.Samples),
				}

				if wavDir != "" {
					row.File = filepath.Join(wavDir, safeName(tr.DeviceID)+".wav")
					if err := writeWAVFile(row.File, db.Deployment().SampleRate, tr.Samples); err != nil {
						return err
					}
					a.log.Debug("row exported", zap.String("device", tr.DeviceID), zap.String("file", row.File))
				}

				rows = append(rows, row)
			}

			if format == outputCSV {
				return writeExportCSV(cmd.OutOrStdout(), rows)
			}

			return writeStructured(cmd.OutOrStdout(), format, rows)
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputCSV, "output format: csv|json|yaml")
	cmd.Flags().StringVar(&wavDir, "wav-dir", "", "also write each row as a WAV file in this directory")

	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "info DBPATH",
		Short: "Show deployment settings, devices and storage use",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			info, err := db.Info(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			switch format := normalizeOutput(output); format {
			case outputTable, "":
				span := time.Duration(info.MaxHours) * time.Hour

				tw := newTable(out)
				fmt.Fprintf(tw, "Path:\t%s\n", info.Path)
				fmt.Fprintf(tw, "Start date:\t%s\n", info.StartDate.Format(time.RFC3339Nano))
				fmt.Fprintf(tw, "End date:\t%s\n", info.StartDate.Add(span).Format(time.RFC3339Nano))
				fmt.Fprintf(tw, "Sample rate:\t%s Hz\n", humanize.Comma(int64(info.SampleRate)))
				fmt.Fprintf(tw, "Units:\t%d of %d\n", info.Devices, info.MaxUnits)
				fmt.Fprintf(tw, "Hours:\t%d\n", info.MaxHours)
				fmt.Fprintf(tw, "Capacity:\t%s samples per unit\n", humanize.Comma(info.Capacity))
				fmt.Fprintf(tw, "Tile:\t%s samples\n", humanize.Comma(info.TileExtent))
				fmt.Fprintf(tw, "Fragments:\tsamples %d live, %d consolidated; devices %d live, %d consolidated\n",
					info.SampleFragments.Live, info.SampleFragments.Consolidated,
					info.DeviceFragments.Live, info.DeviceFragments.Consolidated)
				fmt.Fprintf(tw, "Size:\t%s\n", humanize.IBytes(uint64(info.SizeBytes)))
				return tw.Flush()
			default:
				return writeStructured(out, format, info)
			}
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table|json|yaml")

	return cmd
}

func parseSeconds(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be whole seconds >= 0", name, raw)
	}

	return v, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName maps a device id to a file name.
func safeName(id string) string {
	if s := unsafeChars.ReplaceAllString(id, "_"); s != "" {
		return s
	}
	return "_"
}

func writeWAVFile(path string, rate int, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := wav.WriteWAV16(f, rate, samples); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return f.Close()
}

func writeExportCSV(w io.Writer, rows []exportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"device_id", "row_id", "first_seen", "samples", "recorded", "file"}); err != nil {
		return err
	}

	for _, r := range rows {
		rec := []string{
			r.DeviceID,
			strconv.FormatInt(r.RowID, 10),
			r.FirstSeen.Format(time.RFC3339Nano),
			strconv.Itoa(r.Samples),
			strconv.Itoa(r.Recorded),
			r.File,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func countNonZero(samples []int16) int {
	n := 0
	for _, s := range samples {
		if s != 0 {
			n++
		}
	}
	return n
}
