// Package main provides the rolo CLI entry point.
// rolo maintains a personal contact graph from notes, voice memos and
// bulk imports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rolograph/rolograph/cmd"
	"github.com/rolograph/rolograph/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rolo",
	Short: "Personal contact graph from notes, voice memos and imports",
	Long: `rolo keeps a graph of the people you know and what you know about
them. Drop in free-form notes (English or Russian), voice memos, LinkedIn
exports or calendar attendees; facts are extracted with an LLM, duplicates
are detected but never merged without your confirmation, and the tool asks
a few targeted questions a day to fill the gaps it finds.

COMMON WORKFLOWS:
  Capture:      rolo note add "met Anna at the fintech conf, CTO at Stripe"
  Review dupes: rolo dedup list  ->  rolo dedup merge <primary> <dup>
  Fill gaps:    rolo question next  ->  rolo question answer <id> "..."
  Bulk load:    rolo import linkedin ./Connections.csv
  Find people:  rolo search "who knows payments infrastructure"

FIRST RUN:
  rolo init                 create the config and owner identity
  rolo auth set-key         store the OpenAI API key
  rolo db migrate           create the schema (needs pgvector + pg_trgm)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(c *cobra.Command, args []string) {
		fmt.Fprintln(c.OutOrStdout(), "rolo "+buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.InitCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(cmd.DBCmd)
	rootCmd.AddCommand(cmd.NoteCmd)
	rootCmd.AddCommand(cmd.ContactCmd)
	rootCmd.AddCommand(cmd.SearchCmd)
	rootCmd.AddCommand(cmd.DedupCmd)
	rootCmd.AddCommand(cmd.QuestionCmd)
	rootCmd.AddCommand(cmd.ImportCmd)
	rootCmd.AddCommand(cmd.WorkerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
