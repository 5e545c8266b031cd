package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/deploy"
	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Environment variables read when the deploy flags are not given. They are
// the names wrangler itself understands.
const (
	envAccountID = "CLOUDFLARE_ACCOUNT_ID"
	envAPIToken  = "CLOUDFLARE_API_TOKEN"
)

// NewDeployCmd creates the deploy command.
func NewDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the Output Tree to Cloudflare Pages",
		Long: `Deploy uploads the Output Tree to a Cloudflare Pages project with wrangler.

The deploy tool is checked first; a tool that cannot be started stops the
command. The tool's output is printed whatever the outcome.

Project and branch are remembered for the next deployment. The account
id and API token are remembered only with --remember.

Examples:
  # Deploy ./static to the my-site project
  cfstatic deploy --project my-site --account-id 0123 --api-token abc

  # Deploy a preview branch with a globally installed wrangler
  cfstatic deploy --project my-site --branch preview --command wrangler`,
		Args: cobra.NoArgs,
		RunE: runDeployCmd,
	}

	cmd.Flags().String("dir", config.DefaultOutputDir,
		"Directory to upload")
	cmd.Flags().String("project", "",
		"Pages project name")
	cmd.Flags().String("branch", "",
		"Pages branch (default: "+deploy.DefaultBranch+")")
	cmd.Flags().String("account-id", "",
		"Cloudflare account id (env: "+envAccountID+")")
	cmd.Flags().String("api-token", "",
		"Cloudflare API token (env: "+envAPIToken+")")
	cmd.Flags().Bool("remember", false,
		"Store the account id and API token for later deployments")
	cmd.Flags().String("command", strings.Join(deploy.DefaultCommand, " "),
		"Command used to run wrangler")

	return cmd
}

// runDeployCmd executes the deploy command.
func runDeployCmd(cmd *cobra.Command, _ []string) error {
	store := credentialStore(cmd)

	req, settings, err := buildDeployRequest(cmd.Flags(), store)
	if err != nil {
		return err
	}
	if err := store.RememberPages(settings); err != nil {
		return err
	}

	command, err := cmd.Flags().GetString("command")
	if err != nil {
		return err
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return errors.New("deploy command is empty")
	}

	logger := applog.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	runner := deploy.NewWrangler(deploy.WithCommand(argv...), deploy.WithLogger(logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDeploy(ctx, cmd.OutOrStdout(), runner, req)
}

// buildDeployRequest resolves the deployment from flags, the environment
// and the remembered settings, in that order. It also returns the settings
// to remember afterwards.
func buildDeployRequest(flags *pflag.FlagSet, store *config.CredentialStore) (deploy.Request, config.PagesSettings, error) {
	var req deploy.Request

	secrets, err := store.Load()
	if err != nil {
		return req, config.PagesSettings{}, err
	}
	saved := secrets.Pages

	if req.Dir, err = flags.GetString("dir"); err != nil {
		return req, saved, err
	}
	if req.Project, err = flags.GetString("project"); err != nil {
		return req, saved, err
	}
	if req.Branch, err = flags.GetString("branch"); err != nil {
		return req, saved, err
	}
	if req.AccountID, err = flags.GetString("account-id"); err != nil {
		return req, saved, err
	}
	if req.APIToken, err = flags.GetString("api-token"); err != nil {
		return req, saved, err
	}

	req.Project = firstNonEmpty(req.Project, saved.Project)
	req.Branch = firstNonEmpty(req.Branch, saved.Branch, deploy.DefaultBranch)
	req.AccountID = firstNonEmpty(req.AccountID, os.Getenv(envAccountID), saved.AccountID)
	req.APIToken = firstNonEmpty(req.APIToken, os.Getenv(envAPIToken), saved.APIToken)

	remember := saved.Remember
	if flags.Changed("remember") {
		if remember, err = flags.GetBool("remember"); err != nil {
			return req, saved, err
		}
	}

	settings := config.PagesSettings{
		Project:   req.Project,
		Branch:    req.Branch,
		AccountID: req.AccountID,
		APIToken:  req.APIToken,
		Remember:  remember,
	}
	return req, settings, nil
}

// runDeploy checks the tool, runs the deployment and prints every output
// line. A non-zero exit status is returned as an error after the output.
func runDeploy(ctx context.Context, out io.Writer, runner deploy.Runner, req deploy.Request) error {
	if err := runner.Check(ctx); err != nil {
		return fmt.Errorf("deploy tool check failed: %w", err)
	}

	fmt.Fprintf(out, "Deploying %s to Pages project %s (branch %s)...\n", req.Dir, req.Project, req.Branch)

	result, err := runner.Deploy(ctx, req)
	if result != nil {
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
	}
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}
	if !result.Succeeded() {
		return fmt.Errorf("deployment failed: deploy tool exited with status %d", result.ExitCode)
	}

	fmt.Fprintln(out, "\nDeployment completed.")
	return nil
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
