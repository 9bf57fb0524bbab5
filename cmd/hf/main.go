package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/huntforge/huntforge/internal/configfile"
)

var (
	configDir   string
	verboseFlag bool
	jsonOutput  bool

	logger *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "hf",
	Short: "HuntForge - ticket-driven threat hunt generation",
	Long: `HuntForge turns CTI submissions into threat hunts.

Submissions arrive as tickets. The pipeline extracts the intel content,
validates it, generates a hunt hypothesis, reviews it against the existing
hunt corpus, and posts the finished hunt back on the ticket. All pipeline
state lives in the ticket body so any run can resume where the last one
stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// loadConfig reads the project config and applies HF_* environment
// overrides.
func loadConfig() (*configfile.Config, error) {
	cfg, err := configfile.Load(configDir)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("hf")
	v.AutomaticEnv()
	if repo := v.GetString("repo"); repo != "" {
		cfg.Repo = repo
	}
	if model := v.GetString("model"); model != "" {
		cfg.Model = model
	}
	if db := v.GetString("database"); db != "" {
		cfg.Database = db
	}
	return cfg, nil
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", configfile.DefaultDir, "project configuration directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(huntsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var initCmd = &cobra.Command{
	Use:   "init <owner/repo>",
	Short: "Initialize a HuntForge project in the current directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configfile.DefaultConfig()
		cfg.Repo = args[0]
		if _, _, err := cfg.SplitRepo(); err != nil {
			return err
		}
		if err := cfg.Save(configDir); err != nil {
			return err
		}
		fmt.Printf("Initialized %s for %s\n", configfile.ConfigPath(configDir), cfg.Repo)
		return nil
	},
}
