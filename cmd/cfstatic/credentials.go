package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/spf13/cobra"
)

// NewCredentialsCmd creates the credentials command.
func NewCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Show or clear remembered credentials",
		Long: `Credentials manages the credential store written by 'generate --remember'
and 'deploy'. The store is a YAML file readable only by its owner. Secrets
are never printed in full.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the remembered credentials with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showCredentials(cmd.OutOrStdout(), credentialStore(cmd))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the credential store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := credentialStore(cmd)
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed credential store: %s\n", store.Path())
			return nil
		},
	})

	return cmd
}

// showCredentials prints the content of store with secrets masked.
func showCredentials(out io.Writer, store *config.CredentialStore) error {
	secrets, err := store.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Credential store: %s\n\n", store.Path())

	fmt.Fprintln(out, "Access")
	fmt.Fprintf(out, "  Remember:      %t\n", secrets.Access.Remember)
	fmt.Fprintf(out, "  Client ID:     %s\n", valueOrNone(secrets.Access.ClientID))
	fmt.Fprintf(out, "  Client secret: %s\n", maskSecret(secrets.Access.ClientSecret))

	fmt.Fprintln(out, "\nPages")
	fmt.Fprintf(out, "  Project:       %s\n", valueOrNone(secrets.Pages.Project))
	fmt.Fprintf(out, "  Branch:        %s\n", valueOrNone(secrets.Pages.Branch))
	fmt.Fprintf(out, "  Remember:      %t\n", secrets.Pages.Remember)
	fmt.Fprintf(out, "  Account ID:    %s\n", valueOrNone(secrets.Pages.AccountID))
	fmt.Fprintf(out, "  API token:     %s\n", maskSecret(secrets.Pages.APIToken))
	return nil
}

// maskSecret keeps the last four characters of long secrets only.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(none)"
	case len(s) <= 8:
		return strings.Repeat("*", 8)
	default:
		return strings.Repeat("*", 8) + s[len(s)-4:]
	}
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
