package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "github.com/rolograph/rolograph/pkg/errors"
	"github.com/rolograph/rolograph/pkg/graph"
)

var (
	questionLang  string
	questionForce bool
)

// QuestionCmd represents the question command group.
var QuestionCmd = &cobra.Command{
	Use:   "question",
	Short: "Work through proactive questions",
	Long: `Surface and answer proactive questions about your contacts.

The gap scanner queues questions about missing information (how you met,
what someone is good at, how to reach them) and the dedup engine queues
merge confirmations. Questions respect a daily cap and a cooldown; repeated
dismissals pause them for a day.

Examples:
  rolo question next
  rolo question answer <id> "we met at YC demo day"
  rolo question answer <id> yes          # merge confirmation
  rolo question dismiss <id>
  rolo question snooze <id>`,
}

var questionNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next question, subject to rate limits",
	RunE:  runQuestionNext,
}

var questionAnswerCmd = &cobra.Command{
	Use:   "answer <question-id> <answer...>",
	Short: "Answer a question",
	Long: `Answer a question. Gap answers are stored as facts about the
contact; duplicate confirmations ("yes"/"да" or anything else for no)
trigger a merge or mark the pair as distinct.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuestionAnswer,
}

var questionDismissCmd = &cobra.Command{
	Use:   "dismiss <question-id>",
	Short: "Dismiss a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionDismiss,
}

var questionSnoozeCmd = &cobra.Command{
	Use:   "snooze <question-id>",
	Short: "Push a question back without dismissing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionSnooze,
}

func init() {
	questionNextCmd.Flags().StringVar(&questionLang, "lang", "en", "question language (en or ru)")
	questionNextCmd.Flags().BoolVar(&questionForce, "force", false, "bypass the rate limiter without consuming budget")

	QuestionCmd.AddCommand(questionNextCmd)
	QuestionCmd.AddCommand(questionAnswerCmd)
	QuestionCmd.AddCommand(questionDismissCmd)
	QuestionCmd.AddCommand(questionSnoozeCmd)
}

func runQuestionNext(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	q, err := app.Service.NextQuestion(cmd.Context(), app.OwnerID, questionForce)
	if err != nil {
		if apperrors.IsRateLimited(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No questions right now: %v\n", err)
			return nil
		}
		return err
	}
	if q == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No open questions")
		return nil
	}

	text := q.TextEN
	if questionLang == "ru" && q.TextRU != "" {
		text = q.TextRU
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[%s] %s\n", q.ID, text)
	if q.Kind == graph.QuestionKindDedupConfirm {
		fmt.Fprintln(out, "Answer yes to merge, no to keep them separate")
	}
	return nil
}

func runQuestionAnswer(cmd *cobra.Command, args []string) error {
	questionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	answer := strings.Join(args[1:], " ")
	if err := app.Service.AnswerQuestion(cmd.Context(), app.OwnerID, questionID, answer); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Answer recorded")
	return nil
}

func runQuestionDismiss(cmd *cobra.Command, args []string) error {
	questionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.DismissQuestion(cmd.Context(), app.OwnerID, questionID); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Question dismissed")
	return nil
}

func runQuestionSnooze(cmd *cobra.Command, args []string) error {
	questionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.SnoozeQuestion(cmd.Context(), app.OwnerID, questionID); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Question snoozed")
	return nil
}
