package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huntforge/huntforge/internal/gateway/github"
	"github.com/huntforge/huntforge/internal/runstate"
)

var (
	submitTitle string
	submitForce bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file-or-url>",
	Short: "Open a submission ticket from CTI content",
	Long: `Creates a submission ticket from a local file or a URL and applies the
trigger label so the pipeline picks it up. Content already submitted
(tracked by hash in the run state file) is skipped unless --force.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		owner, name, err := cfg.SplitRepo()
		if err != nil {
			return err
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			return fmt.Errorf("GITHUB_TOKEN is required")
		}

		source := args[0]
		var body, content, title string
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			content, err = (&httpFetcher{}).Fetch(cmd.Context(), source)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", source, err)
			}
			body = fmt.Sprintf("### Link to Original Source\n%s\n", source)
			title = source
		} else {
			data, err := os.ReadFile(source) // #nosec G304 - user-supplied path
			if err != nil {
				return err
			}
			content = strings.TrimSpace(string(data))
			body = fmt.Sprintf("### CTI Content\n%s\n", content)
			title = filepath.Base(source)
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%s has no content", source)
		}
		if submitTitle != "" {
			title = submitTitle
		}
		title = "CTI submission: " + title

		hash := contentHash(content)
		rs, err := runstate.Load(filepath.Join(configDir, "runstate.json"))
		if err != nil {
			return err
		}
		if rs.IsProcessed(hash) && !submitForce {
			fmt.Println("Already submitted, use --force to submit again")
			return nil
		}

		client := github.NewClient(token, owner, name)
		ticket, err := client.CreateIssue(cmd.Context(), title, body, []string{cfg.TriggerLabel})
		if err != nil {
			return err
		}

		rs.MarkProcessed(hash, ticket, title)
		if err := rs.Save(); err != nil {
			return err
		}
		fmt.Printf("Created ticket #%d\n", ticket)
		return nil
	},
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func init() {
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "ticket title (defaults to the source name)")
	submitCmd.Flags().BoolVar(&submitForce, "force", false, "submit even if this content was already processed")
}
