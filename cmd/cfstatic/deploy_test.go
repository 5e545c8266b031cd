package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/deploy"
	"github.com/spf13/pflag"
)

type fakeRunner struct {
	checkErr  error
	result    *deploy.Result
	deployErr error
	got       deploy.Request
	deployed  bool
}

func (f *fakeRunner) Check(context.Context) error {
	return f.checkErr
}

func (f *fakeRunner) Deploy(_ context.Context, req deploy.Request) (*deploy.Result, error) {
	f.deployed = true
	f.got = req
	return f.result, f.deployErr
}

func TestRunDeploy(t *testing.T) {
	t.Parallel()

	req := deploy.Request{Dir: "static", Project: "site", Branch: "main"}

	t.Run("prints output on success", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{result: &deploy.Result{ExitCode: 0, Lines: []string{"Uploading...", "Deployment complete"}}}
		var out bytes.Buffer
		if err := runDeploy(t.Context(), &out, runner, req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.got != req {
			t.Errorf("expected request %+v, got %+v", req, runner.got)
		}
		if !strings.Contains(out.String(), "Deployment complete") {
			t.Errorf("expected tool output, got %q", out.String())
		}
	})

	t.Run("check failure stops before deploying", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{checkErr: deploy.ErrToolUnavailable}
		err := runDeploy(t.Context(), &bytes.Buffer{}, runner, req)
		if !errors.Is(err, deploy.ErrToolUnavailable) {
			t.Fatalf("expected ErrToolUnavailable, got %v", err)
		}
		if runner.deployed {
			t.Error("expected no deployment after a failed check")
		}
	})

	t.Run("non-zero exit prints output and fails", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{result: &deploy.Result{ExitCode: 1, Lines: []string{"Authentication error"}}}
		var out bytes.Buffer
		err := runDeploy(t.Context(), &out, runner, req)
		if err == nil || !strings.Contains(err.Error(), "status 1") {
			t.Fatalf("expected exit status error, got %v", err)
		}
		if !strings.Contains(out.String(), "Authentication error") {
			t.Errorf("expected tool output to be printed, got %q", out.String())
		}
	})

	t.Run("tool that cannot start", func(t *testing.T) {
		t.Parallel()

		errStart := errors.New("exec: not found")
		runner := &fakeRunner{result: &deploy.Result{ExitCode: -1}, deployErr: errStart}
		if err := runDeploy(t.Context(), &bytes.Buffer{}, runner, req); !errors.Is(err, errStart) {
			t.Errorf("expected start error, got %v", err)
		}
	})
}

func TestBuildDeployRequest(t *testing.T) {
	t.Setenv(envAccountID, "")
	t.Setenv(envAPIToken, "")

	newFlags := func(t *testing.T, args ...string) *pflag.FlagSet {
		t.Helper()
		cmd := NewDeployCmd()
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		return cmd.Flags()
	}

	t.Run("flags and defaults", func(t *testing.T) {
		store := config.NewCredentialStore(filepath.Join(t.TempDir(), "creds.yaml"))
		flags := newFlags(t, "--project", "site", "--account-id", "acc", "--api-token", "tok")

		req, settings, err := buildDeployRequest(flags, store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Dir != config.DefaultOutputDir || req.Branch != deploy.DefaultBranch {
			t.Errorf("expected defaults, got %+v", req)
		}
		if settings.Remember {
			t.Error("expected secrets not to be remembered without --remember")
		}
	})

	t.Run("remembered settings fill missing flags", func(t *testing.T) {
		store := config.NewCredentialStore(filepath.Join(t.TempDir(), "creds.yaml"))
		if err := store.RememberPages(config.PagesSettings{
			Project: "saved", Branch: "preview", AccountID: "acc", APIToken: "tok", Remember: true,
		}); err != nil {
			t.Fatal(err)
		}

		req, settings, err := buildDeployRequest(newFlags(t), store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := deploy.Request{Dir: config.DefaultOutputDir, Project: "saved", Branch: "preview", AccountID: "acc", APIToken: "tok"}
		if req != want {
			t.Errorf("expected %+v, got %+v", want, req)
		}
		if !settings.Remember {
			t.Error("expected the remember choice to be kept")
		}
	})

	t.Run("environment wins over the store", func(t *testing.T) {
		t.Setenv(envAPIToken, "env-token")
		store := config.NewCredentialStore(filepath.Join(t.TempDir(), "creds.yaml"))
		if err := store.RememberPages(config.PagesSettings{Project: "saved", APIToken: "tok", Remember: true}); err != nil {
			t.Fatal(err)
		}

		req, _, err := buildDeployRequest(newFlags(t), store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.APIToken != "env-token" {
			t.Errorf("expected env token, got %q", req.APIToken)
		}
	})

	t.Run("remember=false forgets stored secrets", func(t *testing.T) {
		store := config.NewCredentialStore(filepath.Join(t.TempDir(), "creds.yaml"))
		if err := store.RememberPages(config.PagesSettings{Project: "saved", APIToken: "tok", Remember: true}); err != nil {
			t.Fatal(err)
		}

		_, settings, err := buildDeployRequest(newFlags(t, "--remember=false"), store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.RememberPages(settings); err != nil {
			t.Fatal(err)
		}
		secrets, err := store.Load()
		if err != nil {
			t.Fatal(err)
		}
		if secrets.Pages.APIToken != "" || secrets.Pages.Project != "saved" {
			t.Errorf("expected token to be dropped and project kept, got %+v", secrets.Pages)
		}
	})
}
