package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"lms-migrate/internal/devutil"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/report"
	"lms-migrate/internal/state"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		format string
		fields string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the statistics of the last import run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cfg := a.cfg

			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			logg, err := a.runLogger("report")
			if err != nil {
				return err
			}
			defer logg.Close()

			target, err := a.openDB(cfg.Target.DB, logg)
			if err != nil {
				return err
			}
			defer target.Close()

			stats, err := state.LoadRunStats(ctx, target.KV())
			if err != nil {
				return err
			}
			if stats == nil {
				return errors.WithHint(errors.New("no import run recorded"), "run `lmsmigrate run <snapshot>` first")
			}

			if fields != "" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(devutil.Pick(stats, strings.Split(fields, ",")...))
			}

			path, err := report.Save(cfg.Paths.ReportDir, report.KindRun, f, func(w io.Writer) error {
				return report.WriteRun(w, stats, f)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown, yaml or json")
	cmd.Flags().StringVar(&fields, "fields", "", "print only these comma separated fields as JSON (dotted paths allowed)")
	return cmd
}
