package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/report"
	"lms-migrate/internal/reset"
	"lms-migrate/internal/state"
)

func newResetCmd(a *app) *cobra.Command {
	var (
		types      string
		scope      string
		force      bool
		deleteAtts bool
		dryRun     bool
		uploadSFTP bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Trash or delete imported objects in the target LMS",
		Long: `reset removes target objects kind by kind. An audit CSV of the selection is
written to the report directory before anything is removed, also with --dry-run.
Without --force objects are moved to the trash.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cfg := a.cfg

			kinds, err := domain.ParseKinds(types)
			if err != nil {
				return err
			}
			sc, err := reset.ParseScope(scope)
			if err != nil {
				return err
			}

			logg, err := a.runLogger("reset")
			if err != nil {
				return err
			}
			defer logg.Close()

			target, err := a.openDB(cfg.Target.DB, logg)
			if err != nil {
				return err
			}
			defer target.Close()

			ids, err := state.LoadIDMap(ctx, target.KV())
			if err != nil {
				return err
			}
			res, err := reset.New(target, ids, logg).Reset(ctx, reset.Options{
				Kinds:           kinds,
				Scope:           sc,
				Force:           force,
				AlsoDeleteMedia: deleteAtts,
				DryRun:          dryRun,
				ReportDir:       cfg.Paths.ReportDir,
			})
			if err != nil {
				return err
			}

			reportPath, err := report.Save(cfg.Paths.ReportDir, report.KindReset, report.Markdown, func(w io.Writer) error {
				return report.WriteReset(w, res, report.Markdown)
			})
			if err != nil {
				return err
			}
			for _, k := range res.Kinds {
				fmt.Fprintf(out, "%-12s selected=%d trashed=%d deleted=%d failed=%d audit=%s\n",
					k.Kind, k.Selected, k.Trashed, k.Deleted, k.Failed, k.AuditPath)
			}
			fmt.Fprintf(out, "report: %s\nlog: %s\n", reportPath, logg.Path)

			if uploadSFTP {
				return a.upload(ctx, out, logg, append(res.AuditPaths(), reportPath)...)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&types, "types", "all", "comma separated kinds: course,unit,quiz,question,assignment,certificate,media")
	f.StringVar(&scope, "scope", "imported", "imported (marker or id map) or all")
	f.BoolVar(&force, "force", false, "delete permanently instead of trashing")
	f.BoolVar(&deleteAtts, "delete-attachments", false, "also remove imported media attachments")
	f.BoolVar(&dryRun, "dry-run", false, "write the audit CSVs only")
	f.BoolVar(&uploadSFTP, "sftp", false, "upload the audit CSVs and report via SFTP")
	return cmd
}
