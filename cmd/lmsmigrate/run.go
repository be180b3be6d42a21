package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"lms-migrate/internal/errors"
	"lms-migrate/internal/export"
	"lms-migrate/internal/importer"
	"lms-migrate/internal/media"
	"lms-migrate/internal/report"
	"lms-migrate/internal/state"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		dryRun     bool
		recheck    bool
		noMedia    bool
		uploadSFTP bool
	)
	cmd := &cobra.Command{
		Use:   "run [snapshot]",
		Short: "Import a snapshot into the target LMS",
		Long: `run imports a snapshot written by export. Entities already present in the
id map are never created again, so the command can be repeated safely.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cfg := a.cfg

			path := cfg.Export.Output
			if len(args) == 1 {
				path = args[0]
			}

			logg, err := a.runLogger("run")
			if err != nil {
				return err
			}
			defer logg.Close()

			target, err := a.openDB(cfg.Target.DB, logg)
			if err != nil {
				return err
			}
			defer target.Close()
			kv := target.KV()

			stats := state.NewRunStats(logg.RunID, "run")
			stats.Payload = path
			stats.LogPath = logg.Path
			stats.DryRun = dryRun
			stats.Recheck = recheck

			finish := func(runErr error) error {
				stats.FinishedAt = time.Now().UTC()
				if err := state.SaveRunStats(ctx, kv, stats); err != nil {
					logg.Error("saving run stats failed", "error", err)
				}
				reportPath, err := report.Save(cfg.Paths.ReportDir, report.KindRun, report.Markdown, func(w io.Writer) error {
					return report.WriteRun(w, stats, report.Markdown)
				})
				if err != nil {
					return errors.CombineErrors(runErr, err)
				}
				fmt.Fprintf(out, "report: %s\nlog: %s\n", reportPath, logg.Path)
				if uploadSFTP {
					if err := a.upload(ctx, out, logg, reportPath); err != nil {
						return errors.CombineErrors(runErr, err)
					}
				}
				return runErr
			}

			p, err := export.LoadPayload(path)
			if err != nil {
				stats.Issue("", 0, err)
				return finish(err)
			}
			ids, err := state.LoadIDMap(ctx, kv)
			if err != nil {
				return finish(err)
			}

			var fetcher importer.Media
			if !noMedia {
				fetcher = media.NewFetcher(media.Options{
					Dir:      cfg.Paths.MediaDir,
					Workers:  cfg.Media.Workers,
					Timeout:  cfg.Media.Timeout,
					MaxBytes: cfg.Media.MaxBytes,
				}, logg)
			}

			im := importer.New(target, ids, state.NewEnrollments(kv), fetcher,
				importer.Options{DryRun: dryRun, Recheck: recheck}, logg)
			if err := im.Run(ctx, p, stats); err != nil {
				stats.Issue("", 0, err)
				return finish(err)
			}

			for _, k := range stats.SortedKinds() {
				ks := stats.Kinds[k]
				fmt.Fprintf(out, "%-12s created=%d updated=%d skipped=%d would_create=%d errored=%d\n",
					k, ks.Created, ks.Updated, ks.Skipped, ks.WouldCreate, ks.Errored)
			}
			var runErr error
			if n := stats.Errored(); n > 0 {
				runErr = errors.Newf("%d entities failed, see the report", n)
			}
			return finish(runErr)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "resolve and count everything without writing")
	f.BoolVar(&recheck, "recheck", false, "recreate mapped objects that were deleted or trashed in the target")
	f.BoolVar(&noMedia, "no-media", false, "skip downloading and attaching course media")
	f.BoolVar(&uploadSFTP, "sftp", false, "upload the run report via SFTP")
	return cmd
}
