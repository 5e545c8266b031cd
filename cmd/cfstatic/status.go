package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/nao1215/cfstatic/internal/archive"
	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/deploy"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest archive and credential warnings",
		Long: `Status shows the archive of the latest generation run and its age,
the remembered deployment settings, and warnings about the gateway
credentials, such as a client id without a client secret.`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	cmd.Flags().String("archive-dir", config.XDGArchiveDir(),
		"Directory holding the versioned archive")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	archiveDir, err := cmd.Flags().GetString("archive-dir")
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), archiveDir, credentialStore(cmd), time.Now())
}

// printStatus writes the status of archiveDir and store as of now.
func printStatus(out io.Writer, archiveDir string, store *config.CredentialStore, now time.Time) error {
	fmt.Fprintln(out, "Archive")
	latest, err := archive.Latest(osfs.New(archiveDir, osfs.WithBoundOS()))
	switch {
	case errors.Is(err, archive.ErrNoArchive):
		fmt.Fprintln(out, "  No archive yet. Run 'cfstatic generate <site-url>' to create one.")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "  Name:     %s\n", latest.Name)
		fmt.Fprintf(out, "  Created:  %s (%s)\n",
			latest.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.RelTime(latest.CreatedAt, now, "ago", "from now"))
		fmt.Fprintf(out, "  Size:     %s\n", humanize.Bytes(uint64(max(latest.Size, 0))))
		fmt.Fprintf(out, "  Location: %s\n", filepath.Join(archiveDir, latest.Name))
	}

	secrets, err := store.Load()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nAccess")
	if secrets.Access.Remember && secrets.Access.Complete() {
		fmt.Fprintf(out, "  Remembered client id: %s\n", secrets.Access.ClientID)
	} else {
		fmt.Fprintln(out, "  No remembered credentials")
	}

	fmt.Fprintln(out, "\nPages")
	if secrets.Pages.Project != "" {
		fmt.Fprintf(out, "  Project: %s (branch %s)\n", secrets.Pages.Project, firstNonEmpty(secrets.Pages.Branch, deploy.DefaultBranch))
		if secrets.Pages.Remember && secrets.Pages.APIToken != "" {
			fmt.Fprintln(out, "  API token remembered")
		}
	} else {
		fmt.Fprintln(out, "  No deployment configured")
	}

	warnings := credentialWarnings(secrets)
	if len(warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings")
		for _, w := range warnings {
			fmt.Fprintf(out, "  ! %s\n", w)
		}
	}
	return nil
}

// credentialWarnings returns the standing warnings about half-configured
// credentials in the environment and the store.
func credentialWarnings(secrets *config.Secrets) []string {
	var warnings []string

	env := config.Credentials{
		ClientID:     os.Getenv(envClientID),
		ClientSecret: os.Getenv(envClientSecret),
	}
	if env.Partial() {
		warnings = append(warnings, "environment: "+env.Warning())
	}
	if secrets.Access.Remember && secrets.Access.Partial() {
		warnings = append(warnings, "credential store: "+secrets.Access.Warning())
	}
	return warnings
}
