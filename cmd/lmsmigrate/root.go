package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lms-migrate/internal/config"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/sftpclient"
	"lms-migrate/internal/store/sqlstore"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lmsmigrate",
		Short: "Migrate LMS content between course platforms",
		Long: `lmsmigrate exports the course graph of the source LMS into a snapshot,
imports that snapshot idempotently into the target LMS and can undo an import.

Examples:
  lmsmigrate export --mode discover_related --scope 7,9
  lmsmigrate run out/export.json --dry-run
  lmsmigrate run out/export.json
  lmsmigrate reset --types unit,quiz --dry-run
  lmsmigrate report --format yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (yaml or toml)")

	root.AddCommand(
		newExportCmd(a),
		newRunCmd(a),
		newResetCmd(a),
		newReportCmd(a),
		newIDMapCmd(a),
	)
	return root
}

func (a *app) runLogger(command string) (*logger.Logger, error) {
	return logger.NewRun(a.cfg.Log.Mode, a.cfg.Paths.LogDir, command)
}

func (a *app) openDB(path string, logg *logger.Logger) (*sqlstore.DB, error) {
	return sqlstore.Open(path, logg)
}

// upload sends artifacts to the configured SFTP drop.
func (a *app) upload(ctx context.Context, out io.Writer, logg *logger.Logger, files ...string) error {
	s := a.cfg.SFTP
	upCfg := sftpclient.Config{
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  s.User,
		Pass:                  s.Pass,
		RemoteDir:             s.Dir,
		InsecureIgnoreHostKey: s.InsecureIgnoreHostKey,
		KnownHosts:            s.KnownHosts,
	}
	upCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	remote, err := sftpclient.UploadFiles(upCtx, upCfg, files)
	if err != nil {
		return err
	}
	for _, r := range remote {
		logg.Info("uploaded artifact", "remote", r)
		fmt.Fprintf(out, "uploaded sftp://%s:%d%s\n", s.Host, s.Port, r)
	}
	return nil
}

func base(path string) string {
	return filepath.Base(path)
}
