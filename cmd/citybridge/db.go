package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the city database",
	}
	cmd.AddCommand(newDBInitCmd(a))
	return cmd
}

func newDBInitCmd(a *app) *cobra.Command {
	var dir string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the city tables and load them from CSV files",
		Long: `Create residents, tenant and traffic and load them from <dir>/<table>.csv.

Loading is skipped when the CSV files are unchanged since the last load, unless
--force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.Database.CSVDir
			}
			db, err := citydb.Open(cmd.Context(), a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			rep, err := db.Provision(cmd.Context(), dir, force)
			if err != nil {
				return err
			}
			a.log.Info("city database provisioned",
				zap.String("dir", dir),
				zap.Bool("skipped", rep.Skipped),
				zap.String("hash", rep.Hash),
			)
			out := cmd.OutOrStdout()
			if rep.Skipped {
				fmt.Fprintln(out, "data unchanged, nothing loaded")
			}
			for _, name := range citydb.TableNames() {
				fmt.Fprintf(out, "%-10s %d rows\n", name, rep.Rows[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "CSV directory (defaults to database.csv_dir)")
	cmd.Flags().BoolVar(&force, "force", false, "reload even when the data is unchanged")
	return cmd
}
