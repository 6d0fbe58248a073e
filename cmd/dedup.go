package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	dedupScanLimit int
	dedupListLimit int
)

// DedupCmd represents the dedup command group.
var DedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Find and resolve duplicate contacts",
	Long: `Find likely duplicate contacts and resolve them.

Detection runs in three tiers: shared strong identifiers (email, LinkedIn,
telegram), similar names, and semantic similarity of the facts known about
each person. Candidates are only ever flagged for review; nothing is merged
without confirmation.

Examples:
  rolo dedup scan
  rolo dedup list
  rolo dedup merge <primary-id> <duplicate-id>
  rolo dedup reject <id-a> <id-b>`,
}

var dedupScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the whole graph for duplicate pairs",
	RunE:  runDedupScan,
}

var dedupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending duplicate candidates",
	RunE:  runDedupList,
}

var dedupMergeCmd = &cobra.Command{
	Use:   "merge <primary-id> <duplicate-id>",
	Short: "Merge a confirmed duplicate into its primary",
	Long: `Merge a confirmed duplicate into its primary contact. The
duplicate's identities, facts and relationships move to the primary; the
duplicate record is kept as a tombstone so old references still resolve.`,
	Args: cobra.ExactArgs(2),
	RunE: runDedupMerge,
}

var dedupRejectCmd = &cobra.Command{
	Use:   "reject <id-a> <id-b>",
	Short: "Mark two contacts as distinct people",
	Long: `Mark two contacts as distinct people. The pair is remembered and
never suggested as a duplicate again.`,
	Args: cobra.ExactArgs(2),
	RunE: runDedupReject,
}

func init() {
	dedupScanCmd.Flags().IntVar(&dedupScanLimit, "limit", 100, "maximum new candidates to flag")
	dedupListCmd.Flags().IntVar(&dedupListLimit, "limit", 20, "maximum candidates to show")

	DedupCmd.AddCommand(dedupScanCmd)
	DedupCmd.AddCommand(dedupListCmd)
	DedupCmd.AddCommand(dedupMergeCmd)
	DedupCmd.AddCommand(dedupRejectCmd)
}

func runDedupScan(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	flagged, err := app.Service.RunDedupScan(cmd.Context(), app.OwnerID, dedupScanLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Flagged %d new candidate pair(s)\n", flagged)
	return nil
}

func runDedupList(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	candidates, err := app.Service.ListDedupCandidates(cmd.Context(), app.OwnerID, dedupListLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(candidates) == 0 {
		fmt.Fprintln(out, "No pending duplicate candidates")
		return nil
	}

	for _, c := range candidates {
		fmt.Fprintf(out, "%s  <->  %s  score=%.2f  via=%s\n", c.AID, c.BID, c.Score, c.MatchType)
		if c.Reasons.NameA != "" {
			fmt.Fprintf(out, "    %q vs %q\n", c.Reasons.NameA, c.Reasons.NameB)
		}
		if c.Reasons.SharedNamespace != "" {
			fmt.Fprintf(out, "    shared %s: %s\n", c.Reasons.SharedNamespace, c.Reasons.SharedValue)
		}
	}
	return nil
}

func runDedupMerge(cmd *cobra.Command, args []string) error {
	primaryID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid primary ID: %w", err)
	}
	duplicateID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid duplicate ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	counts, err := app.Service.MergeEntities(cmd.Context(), app.OwnerID, primaryID, duplicateID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Merged: %d facts, %d identities, %d relationships moved\n",
		counts.Assertions, counts.Identities, counts.Edges)
	return nil
}

func runDedupReject(cmd *cobra.Command, args []string) error {
	a, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid entity ID: %w", err)
	}
	b, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid entity ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.RejectPair(cmd.Context(), app.OwnerID, a, b); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Pair marked as distinct; it will not be suggested again")
	return nil
}
