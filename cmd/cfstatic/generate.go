package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/database"
	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/pipeline"
	"github.com/nao1215/cfstatic/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Environment variables read when no credential flag is given.
const (
	envClientID     = "CF_ACCESS_CLIENT_ID"
	envClientSecret = "CF_ACCESS_CLIENT_SECRET"
)

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <site-url>",
		Short: "Mirror a site into the Output Tree and seal an archive",
		Long: `Generate exports a live site into a static Output Tree.

The run authenticates with the Access gateway, crawls every page reachable
from the site root, mirrors uploads, theme and plugin assets, copies the
runtime and component scripts from the local installation, removes
administrative scripts and writes a timestamped zip archive. Earlier
archives are deleted so exactly one archive exists after the run.

Credentials are taken from --client-id/--client-secret, then from
CF_ACCESS_CLIENT_ID/CF_ACCESS_CLIENT_SECRET, then from the credential
store when they were remembered with --remember.

Examples:
  # Mirror a protected site
  cfstatic generate --client-id abc.access --client-secret s3cret https://example.com

  # Copy scripts of two plugins from the local installation
  cfstatic generate --install-root /var/www/html \
    --component gallery/gallery.php --component forms/forms.php https://example.com

  # Write a Markdown report to a file
  cfstatic generate -m -o report.md https://example.com

Configuration file (.cfstatic) example:
  defaults:
    generate404: true
  sites:
    https://example.com:
      installRoot: /var/www/html
      components:
        - gallery/gallery.php
      exclude:
        - members`,
		Args: cobra.ExactArgs(1),
		RunE: runGenerateCmd,
	}

	// Gateway flags
	cmd.Flags().String("client-id", "",
		"Access service token client id (env: "+envClientID+")")
	cmd.Flags().String("client-secret", "",
		"Access service token client secret (env: "+envClientSecret+")")
	cmd.Flags().Bool("remember", false,
		"Store the credentials for later runs (--remember=false forgets stored ones)")
	cmd.Flags().Bool("require-credentials", false,
		"Fail instead of warning when only one credential is set")

	// Output flags
	cmd.Flags().StringP("output-dir", "d", config.DefaultOutputDir,
		"Output Tree directory")
	cmd.Flags().String("archive-dir", config.XDGArchiveDir(),
		"Directory holding the versioned archive (must not be inside the Output Tree)")
	cmd.Flags().String("install-root", "",
		"Local site installation to copy runtime and component scripts from")
	cmd.Flags().StringSlice("component", nil,
		"Selected component id such as gallery/gallery.php (repeatable)")
	cmd.Flags().Bool("generate-404", false,
		"Write 404.html from the origin's not-found page")

	// Crawl behavior flags
	cmd.Flags().Int("asset-concurrency", config.DefaultAssetConcurrency,
		"Number of parallel asset downloads")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of pages to mirror (0 = unlimited)")
	cmd.Flags().Duration("delay", 0,
		"Pause between page fetches")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum bytes read per response")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for all requests (host:port)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .cfstatic in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("log-json", false,
		"Write log records to stderr as JSON")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runGenerateCmd executes the generate command.
func runGenerateCmd(cmd *cobra.Command, args []string) error {
	store := credentialStore(cmd)

	cfg, site, err := buildConfig(cmd, args, store)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cmd.Flags().Changed("remember") {
		if err := store.RememberAccess(cfg.Credentials, cfg.RememberCredentials); err != nil {
			return err
		}
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}

	journal := applog.NewJournal(slog.LevelInfo)
	logger := applog.NewRunLogger(cmd.ErrOrStderr(), cfg.Verbose, logJSON, journal)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runGenerate(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, site, logger, journal)
}

// runGenerate executes one generation, records it and renders the report.
// The report is written whether or not the run succeeded.
func runGenerate(ctx context.Context, out, status io.Writer, cfg *config.Config, site config.SiteConfig, logger *slog.Logger, journal *applog.Journal) error {
	gen, err := pipeline.NewGeneration(cfg, site, pipeline.WithRunLogger(logger))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	fmt.Fprintf(status, "Generating static site for %s...\n", cfg.SiteURL)
	run, runErr := gen.Execute(ctx)
	if runErr != nil {
		logger.Error("generation failed", "site", run.Site, "error", runErr)
	} else {
		fmt.Fprintf(status, "Generation completed in %s\n\n", run.Duration().Round(time.Millisecond))
	}

	// The run is recorded even after cancellation.
	if err := saveRun(context.WithoutCancel(ctx), cfg, run, logger); err != nil {
		logger.Error("failed to save run", "site", run.Site, "error", err)
	}

	if err := outputReport(out, cfg, run, journal.Entries()); err != nil {
		logger.Error("report failed", "site", run.Site, "error", err)
	}

	return runErr
}

// buildConfig creates a Config from cobra command flags, the environment,
// the credential store and the configuration file. The returned SiteConfig
// is the file's merged entry for the site.
func buildConfig(cmd *cobra.Command, args []string, store *config.CredentialStore) (*config.Config, config.SiteConfig, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var site config.SiteConfig

	var err error

	cfg.SiteURL = args[0]
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.Credentials, err = resolveCredentials(flags, store)
	if err != nil {
		return nil, site, err
	}

	cfg.RememberCredentials, err = flags.GetBool("remember")
	if err != nil {
		return nil, site, err
	}

	cfg.RequireCredentials, err = flags.GetBool("require-credentials")
	if err != nil {
		return nil, site, err
	}

	cfg.OutputDir, err = flags.GetString("output-dir")
	if err != nil {
		return nil, site, err
	}

	cfg.ArchiveDir, err = flags.GetString("archive-dir")
	if err != nil {
		return nil, site, err
	}

	cfg.InstallRoot, err = flags.GetString("install-root")
	if err != nil {
		return nil, site, err
	}

	cfg.SelectedComponents, err = flags.GetStringSlice("component")
	if err != nil {
		return nil, site, err
	}

	cfg.Generate404, err = flags.GetBool("generate-404")
	if err != nil {
		return nil, site, err
	}

	cfg.AssetConcurrency, err = flags.GetInt("asset-concurrency")
	if err != nil {
		return nil, site, err
	}

	cfg.Timeout, err = flags.GetDuration("timeout")
	if err != nil {
		return nil, site, err
	}

	cfg.MaxPages, err = flags.GetInt("max-pages")
	if err != nil {
		return nil, site, err
	}

	cfg.CrawlDelay, err = flags.GetDuration("delay")
	if err != nil {
		return nil, site, err
	}

	cfg.UserAgent, err = flags.GetString("user-agent")
	if err != nil {
		return nil, site, err
	}

	cfg.MaxBodySize, err = flags.GetInt64("max-body-size")
	if err != nil {
		return nil, site, err
	}

	cfg.ProxyAddress, err = flags.GetString("proxy")
	if err != nil {
		return nil, site, err
	}

	cfg.JSONReport, err = flags.GetBool("json")
	if err != nil {
		return nil, site, err
	}

	cfg.MarkdownReport, err = flags.GetBool("markdown")
	if err != nil {
		return nil, site, err
	}

	cfg.ReportFile, err = flags.GetString("report")
	if err != nil {
		return nil, site, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, site, err
	}
	cfg.SaveToDB = !noHistory

	cfg.DBDir, err = flags.GetString("db-dir")
	if err != nil {
		return nil, site, err
	}

	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, site, err
	}

	// If the user named a config file it must exist; otherwise a missing
	// file means an empty configuration.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, site, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, site, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	site = cfg.SiteConfigs.GetSiteConfig(cfg.SiteURL)
	applySiteConfig(cfg, site, flags)

	return cfg, site, nil
}

// applySiteConfig fills the settings the configuration file may also hold.
// A flag given on the command line wins over the file, and the file wins
// over the flag default.
func applySiteConfig(cfg *config.Config, site config.SiteConfig, flags *pflag.FlagSet) {
	if !flags.Changed("install-root") && site.InstallRoot != "" {
		cfg.InstallRoot = site.InstallRoot
	}
	if !flags.Changed("component") && len(site.Components) > 0 {
		cfg.SelectedComponents = site.Components
	}
	if !flags.Changed("asset-concurrency") && site.AssetConcurrency > 0 {
		cfg.AssetConcurrency = site.AssetConcurrency
	}
	if !flags.Changed("max-pages") && site.MaxPages > 0 {
		cfg.MaxPages = site.MaxPages
	}
	if !flags.Changed("generate-404") && site.Generate404 {
		cfg.Generate404 = true
	}
}

// resolveCredentials returns the gateway credentials from the flags, the
// environment or the credential store, in that order. The first source
// holding any value is used as is, so a half-filled pair is reported
// rather than completed from another source.
func resolveCredentials(flags *pflag.FlagSet, store *config.CredentialStore) (config.Credentials, error) {
	var creds config.Credentials
	var err error

	if flags.Changed("client-id") || flags.Changed("client-secret") {
		creds.ClientID, err = flags.GetString("client-id")
		if err != nil {
			return creds, err
		}
		creds.ClientSecret, err = flags.GetString("client-secret")
		if err != nil {
			return creds, err
		}
		return creds, nil
	}

	creds = config.Credentials{
		ClientID:     os.Getenv(envClientID),
		ClientSecret: os.Getenv(envClientSecret),
	}
	if !creds.Empty() {
		return creds, nil
	}

	secrets, err := store.Load()
	if err != nil {
		return creds, err
	}
	if secrets.Access.Remember {
		return secrets.Access.Credentials, nil
	}
	return creds, nil
}

// outputReport writes the run report in the requested format to out or,
// when cfg.ReportFile is set, to that file.
func outputReport(out io.Writer, cfg *config.Config, run *model.Run, entries []applog.Entry) error {
	output := out
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list every mirrored path and may contain upload metadata,
		// so only the owner may read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(run, entries)
	return err
}

// saveRun records run in the history database and logs how its pages
// differ from the previous successful run. It is a no-op when history is
// disabled.
func saveRun(ctx context.Context, cfg *config.Config, run *model.Run, logger *slog.Logger) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, run)
	if err != nil {
		return err
	}
	logger.Debug("run saved to database", "id", id, "path", db.Path())

	if !run.Succeeded() {
		return nil
	}
	prev, err := db.PreviousRun(ctx, run.Site, id)
	if err != nil || prev == nil {
		return err
	}

	diff := model.DiffPages(prev, run)
	logger.Info("compared with previous run",
		"previous_run", prev.ID,
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"changed", len(diff.Changed),
		"unchanged", diff.Unchanged,
	)
	return nil
}
