package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huntforge/huntforge/internal/hunts"
)

var (
	listCategory string
	listTactic   string
)

var huntsCmd = &cobra.Command{
	Use:   "hunts",
	Short: "Browse the hunt corpus",
}

var huntsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hunts, optionally filtered by category or tactic",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo := hunts.NewRepository(cfg.Database, cfg.HuntDirs, logger)
		defer repo.Close()

		var all []hunts.Hunt
		switch {
		case listCategory != "":
			all, err = repo.GetByCategory(cmd.Context(), listCategory)
		case listTactic != "":
			all, err = repo.GetByTactic(cmd.Context(), listTactic)
		default:
			all, err = repo.GetAll(cmd.Context())
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(all)
		}
		for _, h := range all {
			fmt.Printf("%-12s %-10s %-20s %s\n", h.ID, h.Category, h.Tactic, truncate(h.Hypothesis, 70))
		}
		fmt.Printf("\n%d hunts\n", len(all))
		return nil
	},
}

var huntsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one hunt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo := hunts.NewRepository(cfg.Database, cfg.HuntDirs, logger)
		defer repo.Close()

		h, err := repo.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("hunt %q not found", args[0])
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(h)
		}
		fmt.Printf("ID:         %s\n", h.ID)
		fmt.Printf("Category:   %s\n", h.Category)
		if h.Tactic != "" {
			fmt.Printf("Tactic:     %s\n", h.Tactic)
		}
		if h.Technique != "" {
			fmt.Printf("Technique:  %s\n", h.Technique)
		}
		if len(h.Tags) > 0 {
			fmt.Printf("Tags:       %s\n", strings.Join(h.Tags, " "))
		}
		if h.Submitter != "" {
			fmt.Printf("Submitter:  %s\n", h.Submitter)
		}
		fmt.Printf("\n%s\n", h.Hypothesis)
		return nil
	},
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func init() {
	huntsListCmd.Flags().StringVar(&listCategory, "category", "", "filter by category (Flames, Embers, Alchemy)")
	huntsListCmd.Flags().StringVar(&listTactic, "tactic", "", "filter by ATT&CK tactic")
	huntsCmd.AddCommand(huntsListCmd)
	huntsCmd.AddCommand(huntsShowCmd)
}
