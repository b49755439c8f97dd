package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath     string
		user           string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			hs, err := history.New(cfg.DBPath, 0)
			if err != nil {
				return err
			}
			defer func() { _ = hs.Close() }()

			ctx := context.Background()

			// Per-turn detail view
			if conversationID != "" {
				turns, err := hs.ConversationTurns(ctx, conversationID)
				if err != nil {
					return err
				}
				if len(turns) == 0 {
					fmt.Println("No turns found for conversation.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "#\tTIME\tACTION\tSCOPE\tTIER\tPROMPT\tCOMPLETION\tLATENCY\tQUERY")
				for _, t := range turns {
					tier := t.CacheTier
					if tier == "" {
						tier = "miss"
					}
					query := t.Query
					if len(query) > 40 {
						query = query[:40] + "…"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%dms\t%s\n",
						t.Seq, t.CreatedAt.Format("2006-01-02T15:04:05"),
						t.Action, t.Scope, tier,
						t.PromptTokens, t.CompletionTokens, t.LatencyMs, query)
				}
				return w.Flush()
			}

			// Conversation list view
			convs, err := hs.ListConversations(ctx, user)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tSTARTED\tLAST ACTIVITY\tTURNS\tCACHE HITS\tTOKENS")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					c.ID, c.UserID,
					c.StartedAt.Format("2006-01-02T15:04:05"),
					c.LastActivity.Format("2006-01-02T15:04:05"),
					c.TurnCount, c.CacheHits, c.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	cmd.Flags().StringVar(&user, "user", "", "filter by user")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "show detail for a specific conversation")
	return cmd
}
