package main

import (
	"fmt"
	"os"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for cfstatic.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfstatic",
		Short: "Static site exporter for sites behind Cloudflare Access",
		Long: `cfstatic exports a live site protected by Cloudflare Access into a
self-contained static mirror.

It authenticates with an Access service token, crawls every public page,
mirrors uploads, theme and plugin assets, copies the scripts the pages
need, removes administrative scripts and seals the result into a
timestamped zip archive. The mirror can then be deployed to Cloudflare
Pages with wrangler.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("credentials-file", "",
		"Credential store path (default: credentials.yaml in the XDG config directory)")

	cmd.AddCommand(NewGenerateCmd())
	cmd.AddCommand(NewDeployCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewCredentialsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// credentialStore returns the store selected by --credentials-file.
func credentialStore(cmd *cobra.Command) *config.CredentialStore {
	path, err := cmd.Flags().GetString("credentials-file")
	if err != nil {
		path = ""
	}
	return config.NewCredentialStore(path)
}
