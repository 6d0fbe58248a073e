package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rolograph/rolograph/config"
)

// InitCmd creates the local configuration and owner identity.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local configuration",
	Long: `Create ~/.rolograph/config.yaml with default settings and a freshly
generated owner ID. All contacts, facts and questions are scoped to this
owner.

Examples:
  rolo init

Re-running init is safe: an existing owner ID is kept so the graph stays
reachable.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if existing, err := config.Load(); err == nil && existing.OwnerID != "" {
		cfg = existing
	}

	if cfg.OwnerID == "" {
		cfg.OwnerID = uuid.New().String()
	}

	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Owner ID: %s\n", cfg.OwnerID)
	return nil
}
