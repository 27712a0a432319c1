package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/server"
)

func sweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweeper pass: start due cycles and expire finished challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			srv := server.New(db, a.cfg.SweepInterval, a.logger)
			report := srv.Sweeper().RunOnce(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
