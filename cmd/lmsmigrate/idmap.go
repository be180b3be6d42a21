package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/importer"
	"lms-migrate/internal/state"
)

func newIDMapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idmap",
		Short: "Inspect or clear the old-id to new-id map",
	}
	cmd.AddCommand(newIDMapShowCmd(a), newIDMapClearCmd(a))
	return cmd
}

func newIDMapShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the number of mapped entities per kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			logg, err := a.runLogger("idmap")
			if err != nil {
				return err
			}
			defer logg.Close()
			target, err := a.openDB(a.cfg.Target.DB, logg)
			if err != nil {
				return err
			}
			defer target.Close()

			ids, err := state.LoadIDMap(ctx, target.KV())
			if err != nil {
				return err
			}
			for _, k := range append(append([]domain.Kind(nil), domain.ContentKinds...), domain.KindMedia) {
				fmt.Fprintf(out, "%-12s %d\n", k, ids.Len(k))
			}
			return nil
		},
	}
}

func newIDMapClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every mapping; the next run recreates everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.WithHint(errors.New("refusing to clear the id map"), "pass --yes to confirm")
			}
			ctx := cmd.Context()

			logg, err := a.runLogger("idmap")
			if err != nil {
				return err
			}
			defer logg.Close()
			target, err := a.openDB(a.cfg.Target.DB, logg)
			if err != nil {
				return err
			}
			defer target.Close()

			ids, err := state.LoadIDMap(ctx, target.KV())
			if err != nil {
				return err
			}
			if err := importer.New(target, ids, nil, nil, importer.Options{}, logg).ClearIDMap(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "id map cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the id map")
	return cmd
}
