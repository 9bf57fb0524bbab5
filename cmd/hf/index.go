package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huntforge/huntforge/internal/hunts/index"
)

var fullRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the hunt index database",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the hunt files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b := index.NewBuilder(cfg.Database, cfg.HuntDirs, logger)
		stats, err := b.Rebuild(cmd.Context(), fullRebuild)
		if err != nil {
			return err
		}
		fmt.Printf("Index rebuilt: %d added, %d updated, %d unchanged, %d removed, %d errors\n",
			stats.Added, stats.Updated, stats.Skipped, stats.Removed, stats.Errors)
		return nil
	},
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch hunt directories and keep the index current",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := index.NewWatcher(index.NewBuilder(cfg.Database, cfg.HuntDirs, logger))
		fmt.Printf("Watching %v, Ctrl-C to stop\n", cfg.HuntDirs)
		return w.Watch(cmd.Context())
	},
}

func init() {
	indexRebuildCmd.Flags().BoolVar(&fullRebuild, "full", false, "drop and rebuild the index from scratch")
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexWatchCmd)
}
