package sanitize

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func tree(t *testing.T, files ...string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for _, f := range files {
		if err := util.WriteFile(fs, f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestSanitizer_Plan(t *testing.T) {
	t.Parallel()

	fs := tree(t,
		"index.html",
		"admin.js",
		"wp-includes/js/admin-bar.min.js",
		"wp-content/plugins/p/js/Admin.JS",
		"wp-content/plugins/p/js/app.js",
		"wp-content/plugins/p/js/deep/more/admin-x.js",
		"wp-content/plugins/p/admin/ok.js",
		"wp-content/themes/t/admin.css",
	)

	plan, err := New(fs).Plan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"admin.js",
		"wp-content/plugins/p/js/Admin.JS",
		"wp-content/plugins/p/js/deep/more/admin-x.js",
		"wp-includes/js/admin-bar.min.js",
	}
	if !slices.Equal(plan, want) {
		t.Errorf("expected %v, got %v", want, plan)
	}

	// Plan must not touch the tree.
	if _, err := fs.Stat("admin.js"); err != nil {
		t.Errorf("expected plan to leave files in place: %v", err)
	}
}

func TestSanitizer_Sanitize(t *testing.T) {
	t.Parallel()

	fs := tree(t,
		"a/b/c/admin-panel.js",
		"a/b/front.js",
		"a/admin.js",
	)

	removed, err := New(fs).Sanitize(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removals, got %v", removed)
	}

	remaining, err := New(fs).Plan()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no admin scripts after sanitizing, got %v", remaining)
	}
	if _, err := fs.Stat("a/b/front.js"); err != nil {
		t.Errorf("expected front.js to be kept: %v", err)
	}
}

func TestSanitizer_EmptyTree(t *testing.T) {
	t.Parallel()

	removed, err := New(memfs.New()).Sanitize(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing removed, got %v", removed)
	}
}

func TestSanitizer_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	fs := tree(t, "admin.js")
	_, err := New(fs).Sanitize(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
