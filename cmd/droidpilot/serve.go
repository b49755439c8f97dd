package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP think API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			comps, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			var statter server.CacheStatter
			if comps.store != nil {
				statter = comps.store
			}
			srv := server.New(cfg.Listen, statter, comps.promReg)
			th := agent.NewCachingProducer(comps.producer, comps.store, agent.Config{
				UserID:        cfg.User,
				SystemPrompt:  systemPrompt(cfg),
				HistoryWindow: cfg.Cache.HistoryWindow,
				MaxEntries:    cfg.Cache.MaxEntries,
				Metrics:       comps.metrics,
				Recorder:      srv.Recorder(comps.hist.ForUser(cfg.User)),
			})
			srv.SetThinker(th)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting droidpilot with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	return cmd
}
