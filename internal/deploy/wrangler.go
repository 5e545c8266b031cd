package deploy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	// ErrToolUnavailable is returned by Check when the deploy tool cannot
	// be started or does not report a version.
	ErrToolUnavailable = errors.New("deploy tool is not available")

	// ErrMissingProject is returned when no Pages project is given.
	ErrMissingProject = errors.New("no Pages project specified")

	// ErrMissingDir is returned when the directory to upload does not exist.
	ErrMissingDir = errors.New("deploy directory does not exist")
)

// DefaultBranch is the Pages branch used when none is given.
const DefaultBranch = "main"

// DefaultCommand starts wrangler through npx.
var DefaultCommand = []string{"npx", "wrangler"}

// Request describes one deployment.
type Request struct {
	// Dir is the directory uploaded to Pages, normally the Output Tree.
	Dir string
	// Project is the Pages project name.
	Project string
	// Branch is the Pages branch. Empty means DefaultBranch.
	Branch string
	// AccountID and APIToken are handed to the tool through its environment.
	AccountID string
	APIToken  string
}

// Result is the outcome of a deployment.
type Result struct {
	// ExitCode is the tool's exit status, -1 when it never ran.
	ExitCode int
	// Lines is the interleaved stdout and stderr of the tool.
	Lines []string
}

// Succeeded reports whether the tool exited with status 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Runner deploys a directory to Pages.
type Runner interface {
	Check(ctx context.Context) error
	Deploy(ctx context.Context, req Request) (*Result, error)
}

// Wrangler runs the wrangler CLI as a child process. Arguments are passed
// as discrete argv entries and never through a shell.
type Wrangler struct {
	// Command is the program and leading arguments. Empty means DefaultCommand.
	Command []string
	// Env is appended to the inherited environment.
	Env []string

	logger *slog.Logger
}

var _ Runner = (*Wrangler)(nil)

// Option configures a Wrangler.
type Option func(*Wrangler)

// WithCommand overrides the command used to start wrangler.
func WithCommand(command ...string) Option {
	return func(w *Wrangler) {
		if len(command) > 0 {
			w.Command = command
		}
	}
}

// WithEnv appends entries to the child environment.
func WithEnv(env ...string) Option {
	return func(w *Wrangler) {
		w.Env = append(w.Env, env...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrangler) {
		w.logger = logger
	}
}

// NewWrangler creates a Wrangler runner.
func NewWrangler(opts ...Option) *Wrangler {
	w := &Wrangler{
		Command: DefaultCommand,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Check verifies that the tool starts by asking for its version.
func (w *Wrangler) Check(ctx context.Context) error {
	cmd := w.command(ctx, nil, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolUnavailable, strings.Join(w.Command, " "), err)
	}

	version := strings.TrimSpace(string(out))
	if version == "" {
		return fmt.Errorf("%w: %s printed no version", ErrToolUnavailable, strings.Join(w.Command, " "))
	}
	w.logger.Debug("deploy tool available", "version", firstLine(version))
	return nil
}

// Deploy uploads req.Dir to the Pages project. A non-zero exit status is
// reported through Result rather than as an error; the error is reserved
// for a tool that could not be started. The output lines are returned in
// both cases.
func (w *Wrangler) Deploy(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Project) == "" {
		return nil, ErrMissingProject
	}
	if info, err := os.Stat(req.Dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMissingDir, req.Dir)
	}

	branch := req.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	env := []string{
		"CLOUDFLARE_API_TOKEN=" + req.APIToken,
		"CLOUDFLARE_ACCOUNT_ID=" + req.AccountID,
	}
	cmd := w.command(ctx, env,
		"pages", "deploy", req.Dir,
		"--project-name="+req.Project,
		"--branch="+branch,
	)

	w.logger.Info("deploying to pages", "project", req.Project, "branch", branch, "dir", req.Dir)

	result := &Result{ExitCode: -1}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var wg sync.WaitGroup
	wg.Go(func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			result.Lines = append(result.Lines, scanner.Text())
		}
		// Drain whatever is left so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	})

	if err := cmd.Start(); err != nil {
		pw.Close()
		wg.Wait()
		return result, fmt.Errorf("failed to start deploy tool: %w", err)
	}

	waitErr := cmd.Wait()
	pw.Close()
	wg.Wait()

	result.ExitCode = cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("deploy tool failed: %w", waitErr)
	}

	if result.Succeeded() {
		w.logger.Info("deployment finished", "project", req.Project, "lines", len(result.Lines))
	} else {
		w.logger.Error("deployment failed", "project", req.Project, "exit_code", result.ExitCode)
	}
	return result, nil
}

func (w *Wrangler) command(ctx context.Context, env []string, args ...string) *exec.Cmd {
	command := w.Command
	if len(command) == 0 {
		command = DefaultCommand
	}

	argv := append(append([]string{}, command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], argv...) //nolint:gosec // argv comes from configuration, no shell is involved
	cmd.Env = append(append(os.Environ(), w.Env...), env...)
	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
