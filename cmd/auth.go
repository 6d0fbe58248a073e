package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rolograph/rolograph/credentials"
)

var authAPIKey string

// AuthCmd represents the auth command group.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the OpenAI API key",
	Long: `Manage the OpenAI API key used for fact extraction, embeddings and
voice transcription.

The key is stored in the system keyring, never in config files. The
OPENAI_API_KEY environment variable takes precedence over the stored key.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the OpenAI API key in the system keyring",
	Long: `Store the OpenAI API key in the system keyring.

Examples:
  # Interactive (prompts without echoing)
  rolo auth set-key

  # Non-interactive
  rolo auth set-key --api-key sk-...`,
	RunE: runAuthSetKey,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	RunE:  runAuthStatus,
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Long: `Remove the API key from the system keyring.

The OPENAI_API_KEY environment variable is not affected.`,
	RunE: runAuthClear,
}

func init() {
	authSetKeyCmd.Flags().StringVar(&authAPIKey, "api-key", "", "API key (omit to be prompted)")

	AuthCmd.AddCommand(authSetKeyCmd)
	AuthCmd.AddCommand(authStatusCmd)
	AuthCmd.AddCommand(authClearCmd)
}

func runAuthSetKey(cmd *cobra.Command, args []string) error {
	key := authAPIKey
	if key == "" {
		fmt.Fprint(cmd.OutOrStdout(), "OpenAI API key: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
		key = strings.TrimSpace(string(raw))
	}

	store := credentials.NewStore()
	if err := store.SetAPIKey(key); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "API key stored in the system keyring")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if os.Getenv(credentials.EnvAPIKey) != "" {
		fmt.Fprintf(out, "Using %s from the environment\n", credentials.EnvAPIKey)
		return nil
	}

	store := credentials.NewStore()
	if _, err := store.APIKey(); err != nil {
		fmt.Fprintln(out, "No API key configured")
		return nil
	}
	fmt.Fprintln(out, "Using the API key from the system keyring")
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	store := credentials.NewStore()
	if err := store.DeleteAPIKey(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Stored API key removed")
	return nil
}
