package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
)

var (
	contactListLimit  int
	contactListOffset int
)

// ContactCmd represents the contact command group.
var ContactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Browse contacts",
	Long: `Browse the contact graph.

Examples:
  rolo contact list
  rolo contact show <entity-id>`,
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts, most recently updated first",
	RunE:  runContactList,
}

var contactShowCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show a contact with identities, facts and relationships",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactShow,
}

func init() {
	contactListCmd.Flags().IntVar(&contactListLimit, "limit", 25, "maximum contacts to show")
	contactListCmd.Flags().IntVar(&contactListOffset, "offset", 0, "offset into the list")

	ContactCmd.AddCommand(contactListCmd)
	ContactCmd.AddCommand(contactShowCmd)
}

func runContactList(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	entities, err := app.Repo.ListActiveEntities(ctx, app.OwnerID, contactListLimit, contactListOffset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entities) == 0 {
		fmt.Fprintln(out, "No contacts yet")
		return nil
	}

	total, err := app.Repo.CountActiveEntities(ctx, app.OwnerID)
	if err != nil {
		return err
	}

	for _, e := range entities {
		fmt.Fprintf(out, "%s  %s\n", e.ID, e.DisplayName)
	}
	fmt.Fprintf(out, "\n%d of %d contact(s)\n", len(entities), total)
	return nil
}

func runContactShow(cmd *cobra.Command, args []string) error {
	entityID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid entity ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	// Merged entities redirect to their primary.
	entity, err := app.Repo.ResolveEntity(ctx, app.OwnerID, entityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: contact %s", apperrors.ErrNotFound, entityID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", entity.DisplayName)
	fmt.Fprintf(out, "ID: %s\n", entity.ID)
	if entity.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", entity.Summary)
	}

	identities, err := app.Repo.ListIdentities(ctx, app.OwnerID, entity.ID)
	if err != nil {
		return err
	}
	if len(identities) > 0 {
		fmt.Fprintln(out, "\nIdentities:")
		for _, ident := range identities {
			fmt.Fprintf(out, "  %-18s %s\n", ident.Namespace, ident.Value)
		}
	}

	assertions, err := app.Repo.ListAssertionsBySubject(ctx, app.OwnerID, entity.ID, 100)
	if err != nil {
		return err
	}
	if len(assertions) > 0 {
		fmt.Fprintln(out, "\nFacts:")
		for _, a := range assertions {
			fmt.Fprintf(out, "  %-18s %s  (%.2f, %s)\n", a.Predicate, a.Value, a.Confidence, a.Scope)
		}
	}

	edges, err := app.Repo.ListEdges(ctx, app.OwnerID, entity.ID)
	if err != nil {
		return err
	}
	if len(edges) > 0 {
		fmt.Fprintln(out, "\nRelationships:")
		for _, e := range edges {
			other := e.DstID
			if other == entity.ID {
				other = e.SrcID
			}
			fmt.Fprintf(out, "  %-18s %s\n", e.Type, other)
		}
	}

	gap, err := app.Scanner.GapForEntity(ctx, app.OwnerID, entity.ID)
	if err != nil {
		return err
	}
	if gap != nil {
		fmt.Fprintf(out, "\nProfile completeness: %.0f%%\n", gap.Completeness*100)
		if len(gap.Missing) > 0 {
			fmt.Fprint(out, "Missing: ")
			for i, d := range gap.Missing {
				if i > 0 {
					fmt.Fprint(out, ", ")
				}
				fmt.Fprint(out, string(d))
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
