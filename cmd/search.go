package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchTopK          int
	searchMinSimilarity float64
	searchExplain       bool
)

// SearchCmd finds contacts by semantic similarity over their facts.
var SearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search facts semantically",
	Long: `Search the facts known about your contacts by meaning rather than
keywords. The query is embedded with the same model as stored facts and
matched by cosine similarity.

With --explain the matching facts are passed back to the model, which
ranks the people and explains each match in the language of the query.

Examples:
  rolo search "who knows payments infrastructure"
  rolo search --explain "кто разбирается в логистике"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	SearchCmd.Flags().IntVar(&searchTopK, "top", 10, "maximum results")
	SearchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0.3, "minimum cosine similarity")
	SearchCmd.Flags().BoolVar(&searchExplain, "explain", false, "rank and explain matches with the model")
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	query := strings.Join(args, " ")

	vector, err := app.AI.Embed(ctx, query)
	if err != nil {
		return err
	}

	matches, err := app.Repo.SemanticSearch(ctx, app.OwnerID, vector, searchTopK, searchMinSimilarity)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches")
		return nil
	}

	facts := make([]string, 0, len(matches))
	for _, m := range matches {
		entity, err := app.Repo.GetEntity(ctx, app.OwnerID, m.Assertion.SubjectID)
		if err != nil {
			return err
		}
		name := m.Assertion.SubjectID.String()
		if entity != nil {
			name = entity.DisplayName
		}
		fact := fmt.Sprintf("%s: %s %s", name, m.Assertion.Predicate, m.Assertion.Value)
		facts = append(facts, fact)
		if !searchExplain {
			fmt.Fprintf(out, "%.2f  %s\n", m.Similarity, fact)
		}
	}

	if searchExplain {
		answer, err := app.AI.Reason(ctx, query, facts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
	}
	return nil
}
