package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/budget"
	cachepkg "github.com/droidpilot-ai/droidpilot/pkg/cache/sqlite"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/device"
	"github.com/droidpilot-ai/droidpilot/pkg/history"
	"github.com/droidpilot-ai/droidpilot/pkg/mcp"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the device tools and agent state as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			hs, err := history.New(cfg.DBPath, 0)
			if err != nil {
				return fmt.Errorf("init history: %w", err)
			}
			defer func() { _ = hs.Close() }()

			var cache mcp.CacheStatter
			if cfg.Cache.Enabled {
				c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
				if err != nil {
					return fmt.Errorf("init cache: %w", err)
				}
				defer func() { _ = c.Close() }()
				cache = c
			}

			var enforcer *budget.Enforcer
			if cfg.Budget.Enabled {
				enforcer = budget.New(cfg.Budget.Policies, hs)
			}

			registry := tools.Default(cfg.Device.ScreenshotDir)
			dev := device.New(cfg.Device.Serial, cfg.Device.ADBPath)

			srv := mcp.New(registry, dev, cache, hs, enforcer, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	return cmd
}
