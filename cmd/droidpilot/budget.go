package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/budget"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/history"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage token budgets and policies",
	}

	var user string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			hs, err := history.New(cfg.DBPath, 0)
			if err != nil {
				return err
			}
			defer func() { _ = hs.Close() }()

			enforcer := budget.New(cfg.Budget.Policies, hs)

			u := user
			if u == "" {
				u = cfg.User
			}

			statuses, err := enforcer.Status(context.Background(), u)
			if err != nil {
				return err
			}

			if len(statuses) == 0 {
				fmt.Println("No budget policies found for this user.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					s.Policy.User, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&user, "user", "", "user to report (defaults to the configured user)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	cmd.AddCommand(statusCmd)
	return cmd
}
