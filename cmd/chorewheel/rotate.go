package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
)

func rotateCmd(a *app) *cobra.Command {
	var (
		homeID int64
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Deal the current cycle for one home",
		Long: `Deal the current cycle for one home.

Without --force the cycle is only dealt when the home has no assignments
in it yet. With --force the previous cycle is closed and every task is
redealt.

Examples:
  chorewheel rotate --home 3
  chorewheel rotate --home 3 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if homeID <= 0 {
				return fmt.Errorf("--home is required")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			sched := rotation.NewScheduler(store.NewHomeStore(db), store.NewMemberStore(db), store.NewTaskStore(db),
				store.NewAssignmentStore(db), a.logger.With("component", "rotation"))

			var (
				res     *rotation.Result
				started = true
			)
			if force {
				res, err = sched.CloseCycleAndReassign(homeID)
			} else {
				res, started, err = sched.StartCycleIfNeeded(homeID)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"started": started, "result": res})
		},
	}
	cmd.Flags().Int64Var(&homeID, "home", 0, "home id")
	cmd.Flags().BoolVar(&force, "force", false, "close and redeal even if the cycle has started")
	return cmd
}
