package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NoteCmd represents the note command group.
var NoteCmd = &cobra.Command{
	Use:   "note",
	Short: "Capture and inspect notes about people",
	Long: `Capture free-form notes and voice memos. Each note is stored as
evidence, run through LLM fact extraction, and the resulting facts are
attached to the people it mentions. Notes may be in English or Russian.

Examples:
  rolo note add "Met Anna Kovaleva at the fintech conf, she's CTO at Stripe"
  rolo note voice ./memo.m4a
  rolo note status 4f6b...
  rolo note reextract 4f6b...`,
}

var noteAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a text note",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNoteAdd,
}

var noteVoiceCmd = &cobra.Command{
	Use:   "voice <audio-file>",
	Short: "Add a voice memo (transcribed before extraction)",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteVoice,
}

var noteStatusCmd = &cobra.Command{
	Use:   "status <evidence-id>",
	Short: "Show processing status of a note",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteStatus,
}

var noteReextractAll bool

var noteReextractCmd = &cobra.Command{
	Use:   "reextract [evidence-id]",
	Short: "Re-run fact extraction over processed notes",
	Long: `Re-run fact extraction over a note that was already processed.
Previously extracted facts from this note are replaced; facts from other
notes are untouched.

With --all, every finished note is re-extracted, oldest first. Useful
after switching the extraction model.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNoteReextract,
}

func init() {
	noteReextractCmd.Flags().BoolVar(&noteReextractAll, "all", false, "re-extract every processed note")

	NoteCmd.AddCommand(noteAddCmd)
	NoteCmd.AddCommand(noteVoiceCmd)
	NoteCmd.AddCommand(noteStatusCmd)
	NoteCmd.AddCommand(noteReextractCmd)
}

func runNoteAdd(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ev, err := app.Service.SubmitNote(cmd.Context(), app.OwnerID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Note processed (evidence %s)\n", ev.ID)
	return nil
}

func runNoteVoice(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ev, err := app.Service.SubmitVoice(cmd.Context(), app.OwnerID, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Voice memo processed (evidence %s)\n", ev.ID)
	return nil
}

func runNoteStatus(cmd *cobra.Command, args []string) error {
	evidenceID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid evidence ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	ev, err := app.Service.EvidenceStatus(cmd.Context(), app.OwnerID, evidenceID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evidence: %s\n", ev.ID)
	fmt.Fprintf(out, "Kind:     %s\n", ev.Kind)
	fmt.Fprintf(out, "Status:   %s\n", ev.Status)
	if ev.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", ev.ErrorMessage)
	}
	return nil
}

func runNoteReextract(cmd *cobra.Command, args []string) error {
	if noteReextractAll {
		if len(args) > 0 {
			return fmt.Errorf("--all does not take an evidence ID")
		}

		app, err := NewApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.Service.ReextractAll(cmd.Context(), app.OwnerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Re-extracted %d note(s)\n", n)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("an evidence ID is required unless --all is given")
	}
	evidenceID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid evidence ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Service.ProcessEvidence(cmd.Context(), app.OwnerID, evidenceID, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Re-extracted: %d facts across %d entities\n",
		result.AssertionsCreated, len(result.TouchedEntityIDs))
	return nil
}
