package pipeline

import (
	"archive/zip"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/cfstatic/internal/archive"
	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/gateway"
)

// accessSite is an origin behind a fake Access gateway. Page bodies may
// contain {{origin}}, replaced by the absolute origin of the request.
type accessSite struct {
	server *httptest.Server

	mu        sync.Mutex
	requested []string
}

func newAccessSite(t *testing.T, pages map[string]string) *accessSite {
	t.Helper()

	s := &accessSite{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			if r.Header.Get(gateway.HeaderClientID) == "id" && r.Header.Get(gateway.HeaderClientSecret) == "secret" {
				http.SetCookie(w, &http.Cookie{Name: gateway.CookieName, Value: "session-token", Path: "/"})
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		s.mu.Lock()
		s.requested = append(s.requested, r.URL.Path)
		s.mu.Unlock()

		if c, err := r.Cookie(gateway.CookieName); err != nil || c.Value != "session-token" {
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<a href="http://` + r.Host + `/">Back home</a>`)) //nolint:errcheck
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{origin}}", "http://"+r.Host))) //nolint:errcheck
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *accessSite) wasRequested(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.requested, func(p string) bool {
		return strings.HasPrefix(p, prefix)
	})
}

func writeInstallFile(t *testing.T, root, name string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("// "+name), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestGeneration_Execute(t *testing.T) {
	t.Parallel()

	site := newAccessSite(t, map[string]string{
		"/": `<a href="{{origin}}/about/">About</a>
<a href="/wp-json/wp/v2/posts">API</a>
<img src="{{origin}}/wp-content/uploads/2024/photo.png">
<script src="/wp-content/themes/plain/admin-bar.js"></script>`,
		"/about/":                               `<a href="{{origin}}/">Home</a>`,
		"/wp-content/uploads/2024/photo.png":    "png-bytes",
		"/wp-content/themes/plain/admin-bar.js": "admin();",
	})

	installRoot := t.TempDir()
	writeInstallFile(t, installRoot, "wp-includes/js/jquery/jquery.min.js")
	writeInstallFile(t, installRoot, "wp-content/plugins/gallery/gallery.php")
	writeInstallFile(t, installRoot, "wp-content/plugins/gallery/public/main.js")

	work := t.TempDir()
	cfg := config.NewConfig()
	cfg.SiteURL = site.server.URL + "/some/page"
	cfg.Credentials = config.Credentials{ClientID: "id", ClientSecret: "secret"}
	cfg.OutputDir = filepath.Join(work, "static")
	cfg.ArchiveDir = filepath.Join(work, "archives")
	cfg.InstallRoot = installRoot
	cfg.SelectedComponents = []string{"gallery/gallery.php"}
	cfg.Generate404 = true
	cfg.Timeout = 5 * time.Second

	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	gen, err := NewGeneration(cfg, config.SiteConfig{}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSteps := []string{StepAuthenticate, StepCrawl, StepBundle, StepNotFound, StepSanitize, StepAudit, StepArchive}
	if got := gen.StepNames(); !slices.Equal(got, wantSteps) {
		t.Fatalf("expected steps %v, got %v", wantSteps, got)
	}

	run, err := gen.Execute(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Succeeded() || !run.Authenticated {
		t.Fatalf("expected authenticated successful run, got %+v", run)
	}
	if run.Site != site.server.URL {
		t.Errorf("expected site %s, got %s", site.server.URL, run.Site)
	}
	if !slices.Equal(run.Steps, wantSteps) {
		t.Errorf("expected recorded steps %v, got %v", wantSteps, run.Steps)
	}

	for _, f := range []string{
		"index.html",
		"about/index.html",
		"404.html",
		"wp-content/uploads/2024/photo.png",
		"wp-includes/js/jquery/jquery.min.js",
		"wp-content/plugins/gallery/public/main.js",
	} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, filepath.FromSlash(f))); err != nil {
			t.Errorf("expected %s in the output tree: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "wp-content/themes/plain/admin-bar.js")); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected admin script to be removed")
	}
	if !slices.Contains(run.RemovedScripts, "wp-content/themes/plain/admin-bar.js") {
		t.Errorf("expected removed script to be recorded, got %v", run.RemovedScripts)
	}

	index, err := os.ReadFile(filepath.Join(cfg.OutputDir, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(index), site.server.URL) {
		t.Errorf("expected origin to be stripped from index.html, got %s", index)
	}
	if site.wasRequested("/wp-json") {
		t.Error("expected excluded path not to be requested")
	}

	if run.Archive == nil {
		t.Fatal("expected archive info")
	}
	if run.Archive.Name != archive.Name(now) {
		t.Errorf("expected archive %s, got %s", archive.Name(now), run.Archive.Name)
	}
	zr, err := zip.OpenReader(filepath.Join(cfg.ArchiveDir, run.Archive.Name))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != run.Archive.Entries {
		t.Errorf("expected %d entries, got %d", run.Archive.Entries, len(zr.File))
	}
	for _, f := range zr.File {
		if strings.Contains(f.Name, "admin-bar.js") {
			t.Errorf("expected sanitized tree in archive, found %s", f.Name)
		}
	}
}

func TestGeneration_RejectedCredentials(t *testing.T) {
	t.Parallel()

	site := newAccessSite(t, map[string]string{"/": "home"})

	work := t.TempDir()
	cfg := config.NewConfig()
	cfg.SiteURL = site.server.URL
	cfg.Credentials = config.Credentials{ClientID: "id", ClientSecret: "wrong"}
	cfg.OutputDir = filepath.Join(work, "static")
	cfg.ArchiveDir = filepath.Join(work, "archives")

	gen, err := NewGeneration(cfg, config.SiteConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := gen.Execute(t.Context())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if run == nil || run.Succeeded() {
		t.Fatal("expected a failed run to be returned")
	}
	if len(run.Steps) != 0 {
		t.Errorf("expected no completed steps, got %v", run.Steps)
	}
	if site.wasRequested("/") {
		t.Error("expected no page to be fetched after a rejected login")
	}
	entries, err := os.ReadDir(cfg.ArchiveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no archive, found %d entries", len(entries))
	}
}

func TestNewGeneration_OptionalSteps(t *testing.T) {
	t.Parallel()

	disabled := false
	work := t.TempDir()
	cfg := config.NewConfig()
	cfg.SiteURL = "https://example.com"
	cfg.OutputDir = filepath.Join(work, "static")
	cfg.ArchiveDir = filepath.Join(work, "archives")

	gen, err := NewGeneration(cfg, config.SiteConfig{Audit: &disabled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{StepAuthenticate, StepCrawl, StepSanitize, StepArchive}
	if got := gen.StepNames(); !slices.Equal(got, want) {
		t.Errorf("expected steps %v, got %v", want, got)
	}
}

func TestNewGeneration_InvalidConfig(t *testing.T) {
	t.Parallel()

	work := t.TempDir()
	cfg := config.NewConfig()
	cfg.SiteURL = "https://example.com"
	cfg.OutputDir = filepath.Join(work, "static")
	cfg.ArchiveDir = filepath.Join(work, "static", "archives")

	if _, err := NewGeneration(cfg, config.SiteConfig{}); !errors.Is(err, config.ErrArchiveInsideOutput) {
		t.Errorf("expected ErrArchiveInsideOutput, got %v", err)
	}
	if _, err := os.Stat(cfg.OutputDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected nothing to be created for an invalid configuration")
	}
}
