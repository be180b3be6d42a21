package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/export"
	"lms-migrate/internal/extract"
	"lms-migrate/internal/report"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		mode       string
		scope      string
		outPath    string
		compress   bool
		uploadSFTP bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the source course graph to a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cfg := a.cfg

			if !cmd.Flags().Changed("mode") {
				mode = cfg.Export.Mode
			}
			if !cmd.Flags().Changed("scope") {
				scope = cfg.Export.Scope
			}
			if !cmd.Flags().Changed("out") {
				outPath = cfg.Export.Output
			}
			if !cmd.Flags().Changed("compress") {
				compress = cfg.Export.Compress
			}
			m, err := domain.ParseExportMode(mode)
			if err != nil {
				return err
			}
			sc, err := domain.ParseScope(scope)
			if err != nil {
				return err
			}
			if compress && !export.IsCompressed(outPath) {
				outPath += export.BrotliExt
			}

			logg, err := a.runLogger("export")
			if err != nil {
				return err
			}
			defer logg.Close()

			src, err := a.openDB(cfg.Source.DB, logg)
			if err != nil {
				return err
			}
			defer src.Close()

			p, err := extract.New(src, src, extract.Options{
				Mode:               m,
				Scope:              sc,
				Source:             base(cfg.Source.DB),
				StrictReverseMatch: cfg.Commerce.StrictReverseMatch,
			}, logg).Export(ctx)
			if err != nil {
				return err
			}
			if err := export.SavePayload(outPath, p); err != nil {
				return err
			}

			summary := report.NewExportSummary(p, outPath)
			reportPath, err := report.Save(cfg.Paths.ReportDir, report.KindExport, report.Markdown, func(w io.Writer) error {
				return report.WriteExport(w, summary, report.Markdown)
			})
			if err != nil {
				return err
			}

			s := p.Stats
			fmt.Fprintf(out, "exported %d courses (%d units, %d quizzes, %d orphans) to %s\n",
				s.Courses, s.Units, s.Quizzes, s.Orphans, outPath)
			fmt.Fprintf(out, "report: %s\nlog: %s\n", reportPath, logg.Path)

			if uploadSFTP {
				return a.upload(ctx, out, logg, outPath, reportPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", "strict", "orphan policy: strict, discover_related or discover_all")
	f.StringVar(&scope, "scope", "all", `courses to export: "all" or a comma separated id list`)
	f.StringVar(&outPath, "out", "out/export.json", "snapshot path")
	f.BoolVar(&compress, "compress", false, "write a brotli compressed snapshot (.json.br)")
	f.BoolVar(&uploadSFTP, "sftp", false, "upload the snapshot and report via SFTP")
	return cmd
}
