package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nao1215/cfstatic/internal/extract"
	"github.com/nao1215/cfstatic/internal/fetch"
	"github.com/nao1215/cfstatic/internal/mirror"
)

// site is a test origin serving fixed pages and counting requests.
type site struct {
	server *httptest.Server
	origin *url.URL

	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

// newSite starts an origin. Page bodies may contain {{origin}}, which is
// replaced by the server URL.
func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()

	s := &site{hits: make(map[string]int), pages: pages}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.pages[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{origin}}", "http://"+r.Host))) //nolint:errcheck
	}))
	t.Cleanup(s.server.Close)

	origin, err := url.Parse(s.server.URL)
	if err != nil {
		t.Fatal(err)
	}
	s.origin = origin
	return s
}

func (s *site) hitCount(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[p]
}

func newFetcher(t *testing.T) *fetch.Fetcher {
	t.Helper()
	f, err := fetch.New()
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestScheduler_ExcludedLinkScenario(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":          `<a href="/about">About</a> <a href="/wp-json/x">API</a>`,
		"/about":     `<p>about us</p>`,
		"/wp-json/x": `{"secret":true}`,
	})
	fs := memfs.New()

	result, err := New(newFetcher(t), fs, s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, f := range []string{"index.html", "about"} {
		if _, err := fs.Stat(f); err != nil {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}
	if _, err := fs.Stat("wp-json"); err == nil {
		t.Error("expected nothing under wp-json")
	}
	if s.hitCount("/wp-json/x") != 0 {
		t.Error("expected excluded path never to be fetched")
	}
	if result.Excluded != 1 {
		t.Errorf("expected 1 excluded path, got %d", result.Excluded)
	}
	if len(result.Pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(result.Pages))
	}
}

func TestScheduler_RewritesOrigin(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/": `<a href="{{origin}}/blog/">Blog</a>
<script>var cfg = {"url":"{{origin}}\/wp-admin\/admin-ajax.php"};</script>`,
		"/blog/": `<link rel="canonical" href="{{origin}}/blog/"><a href="{{origin}}">home</a>`,
	})
	fs := memfs.New()

	result, err := New(newFetcher(t), fs, s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d: %+v", len(result.Pages), result.Pages)
	}

	escaped := strings.ReplaceAll(s.server.URL, "/", `\/`)
	for _, page := range result.Pages {
		data, err := util.ReadFile(fs, page.File)
		if err != nil {
			t.Fatalf("read %s: %v", page.File, err)
		}
		if strings.Contains(string(data), s.server.URL) || strings.Contains(string(data), escaped) {
			t.Errorf("expected origin to be removed from %s, got %s", page.File, data)
		}
	}

	data, err := util.ReadFile(fs, "blog/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `href="/blog/"`) {
		t.Errorf("expected host-relative link, got %s", data)
	}
}

func TestRewriteOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		origin string
		in     string
		want   string
	}{
		{"plain", "https://example.com", `<a href="https://example.com/a">`, `<a href="/a">`},
		{"json escaped", "https://example.com", `{"u":"https:\/\/example.com\/a"}`, `{"u":"\/a"}`},
		{"nested occurrence", "https://example.com", `https://exhttps://example.comample.com/x`, `/x`},
		{"other host kept", "https://example.com", `https://cdn.example.net/x`, `https://cdn.example.net/x`},
		{"mixed case in page", "https://example.com", `<a href="HTTPS://Example.COM/a">`, `<a href="/a">`},
		{"default port in page", "https://example.com", `<a href="https://example.com:443/a">`, `<a href="/a">`},
		{"default port escaped", "https://example.com", `"https:\/\/example.com:443\/a"`, `"\/a"`},
		{"default port in origin", "https://example.com:443", `<a href="https://example.com/a">`, `<a href="/a">`},
		{"other port kept", "http://example.com:8080", `<a href="http://example.com/a">`, `<a href="http://example.com/a">`},
		{"other port removed", "http://example.com:8080", `<a href="http://example.com:8080/a">`, `<a href="/a">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			origin, err := url.Parse(tt.origin)
			if err != nil {
				t.Fatal(err)
			}
			if got := RewriteOrigin(tt.in, origin); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScheduler_ExcludedPathCountedOnce(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":      `<a href="/feed/">Feed</a> <a href="/a">A</a>`,
		"/a":     `<a href="/b">B</a> <a href="/feed/">Feed</a>`,
		"/b":     `<a href="/feed/">Feed</a>`,
		"/feed/": `<rss></rss>`,
	})

	result, err := New(newFetcher(t), memfs.New(), s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Excluded != 1 {
		t.Errorf("expected 1 excluded path, got %d", result.Excluded)
	}
	if len(result.Pages) != 3 {
		t.Errorf("expected 3 pages, got %d", len(result.Pages))
	}
	if s.hitCount("/feed/") != 0 {
		t.Error("expected excluded path never to be fetched")
	}
}

func TestScheduler_OriginComparison(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/": `<a href="{{origin}}0/lookalike">x</a>
<a href="https://other.example/page">y</a>
<a href="relative/page">z</a>
<a href="/real">r</a>`,
		"/real": `real`,
	})

	sched := New(newFetcher(t), memfs.New(), s.origin)
	if _, err := sched.Crawl(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"/", "/real"}
	if got := sched.Visited(); !slices.Equal(got, want) {
		t.Errorf("expected visited %v, got %v", want, got)
	}
}

func TestScheduler_VisitsEachPathOnce(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  `<a href="/">self</a><a href="/a">a</a><a href="/a?page=2">a2</a><a href="/a#top">a3</a>`,
		"/a": `<a href="/">home</a><a href="/a">self</a>`,
	})

	result, err := New(newFetcher(t), memfs.New(), s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{"/", "/a"} {
		if got := s.hitCount(p); got != 1 {
			t.Errorf("expected %s to be fetched once, got %d", p, got)
		}
	}
	if len(result.Pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(result.Pages))
	}
}

func TestScheduler_FetchFailureIsSkipped(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":      `<a href="/empty">e</a><a href="/ok">ok</a>`,
		"/empty": ``,
		"/ok":    `fine`,
	})
	fs := memfs.New()

	result, err := New(newFetcher(t), fs, s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(result.Failed, []string{"/empty"}) {
		t.Errorf("expected /empty to fail, got %v", result.Failed)
	}
	if _, err := fs.Stat("empty"); err == nil {
		t.Error("expected no file for failed page")
	}
	if _, err := fs.Stat("ok"); err != nil {
		t.Errorf("expected crawl to continue after failure: %v", err)
	}
}

func TestScheduler_MaxPages(t *testing.T) {
	t.Parallel()

	pages := map[string]string{"/": ""}
	var links strings.Builder
	for i := range 5 {
		p := fmt.Sprintf("/page%d", i)
		links.WriteString(`<a href="` + p + `">x</a>`)
		pages[p] = "page"
	}
	pages["/"] = links.String()
	s := newSite(t, pages)

	result, err := New(newFetcher(t), memfs.New(), s.origin, WithMaxPages(3)).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Pages) != 3 {
		t.Errorf("expected 3 pages, got %d", len(result.Pages))
	}
}

func TestScheduler_States(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  `<a href="/a">a</a>`,
		"/a": `leaf`,
	})

	var states []State
	sched := New(newFetcher(t), memfs.New(), s.origin, WithStateHook(func(_, to State) {
		states = append(states, to)
	}))
	if sched.State() != StateIdle {
		t.Fatalf("expected idle before crawl, got %s", sched.State())
	}

	if _, err := sched.Crawl(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []State{StateRunning, StateDraining, StateRunning, StateDraining, StateDone}
	if !slices.Equal(states, want) {
		t.Errorf("expected transitions %v, got %v", want, states)
	}

	if _, err := sched.Crawl(t.Context()); err == nil {
		t.Error("expected error when crawling twice")
	}
}

func TestScheduler_Cancelled(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": "home"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	sched := New(newFetcher(t), memfs.New(), s.origin)
	_, err := sched.Crawl(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.hitCount("/") != 0 {
		t.Error("expected no fetch after cancellation")
	}
	if sched.State() != StateDone {
		t.Errorf("expected done, got %s", sched.State())
	}
}

func TestScheduler_PathConflict(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":       `<a href="/about">file</a><a href="/about/">dir</a>`,
		"/about":  `as file`,
		"/about/": `as dir`,
	})
	fs := osfs.New(t.TempDir(), osfs.WithBoundOS())

	result, err := New(newFetcher(t), fs, s.origin).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(result.Conflicts, []string{"/about/"}) {
		t.Errorf("expected /about/ to conflict, got %v", result.Conflicts)
	}
	data, err := util.ReadFile(fs, "about")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "as file" {
		t.Errorf("expected first page to be kept, got %q", data)
	}
}

func TestScheduler_MirrorsAssets(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":                            `<img src="{{origin}}/wp-content/uploads/a.png" srcset="/wp-content/uploads/a-2x.png 2x"><a href="/b">b</a>`,
		"/b":                           `<img src="/wp-content/uploads/a.png">`,
		"/wp-content/uploads/a.png":    "PNG",
		"/wp-content/uploads/a-2x.png": "PNG2",
	})
	fs := memfs.New()
	fetcher := newFetcher(t)
	assets := mirror.New(fetcher, fs, s.origin)

	_, err := New(fetcher, fs, s.origin,
		WithAssetMirror(assets),
		WithExtractor(extract.NewMarkup()),
	).Crawl(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, f := range []string{"wp-content/uploads/a.png", "wp-content/uploads/a-2x.png"} {
		if _, err := fs.Stat(f); err != nil {
			t.Errorf("expected asset %s: %v", f, err)
		}
	}
	if got := s.hitCount("/wp-content/uploads/a.png"); got != 1 {
		t.Errorf("expected shared asset to be fetched once, got %d", got)
	}
	if got := assets.Stats().Written; got != 2 {
		t.Errorf("expected 2 assets written, got %d", got)
	}
}
