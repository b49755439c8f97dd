package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/droidpilot-ai/droidpilot/pkg/cache/sqlite"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	openCache := func() (*cachepkg.Cache, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nSize:    %d bytes\nHits:    %d\nMisses:  %d\n",
				stats.Entries, stats.TotalBytes, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Println("Expired cache entries cleared.")
			} else {
				fmt.Println("All cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Cleanup(); err != nil {
				return err
			}
			fmt.Println("Expired cache entries removed.")
			return nil
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune the cache down to the configured entry limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			deleted, err := c.PruneToLimit(cfg.Cache.MaxEntries)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d entries (limit %d).\n", deleted, cfg.Cache.MaxEntries)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd, cleanupCmd, pruneCmd)
	return cmd
}
