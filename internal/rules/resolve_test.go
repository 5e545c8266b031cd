package rules

import (
	"net/url"
	"testing"
)

func TestSitePath(t *testing.T) {
	t.Parallel()

	origin, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{ref: "/about/", want: "/about/", wantOK: true},
		{ref: "/about?x=1#top", want: "/about", wantOK: true},
		{ref: "https://example.com", want: "/", wantOK: true},
		{ref: "https://example.com/blog/", want: "/blog/", wantOK: true},
		{ref: "HTTPS://EXAMPLE.COM/Case", want: "/Case", wantOK: true},
		{ref: "https://example.com:443/port", want: "/port", wantOK: true},
		{ref: "//example.com/proto-relative", want: "/proto-relative", wantOK: true},
		{ref: "/a/../../etc/passwd", want: "/etc/passwd", wantOK: true},
		{ref: "/a//b/", want: "/a/b/", wantOK: true},
		{ref: "https://example.com.evil.net/x", wantOK: false},
		{ref: "https://example.com:8443/x", wantOK: false},
		{ref: "http://example.com/x", wantOK: false},
		{ref: "https://cdn.example.com/x.js", wantOK: false},
		{ref: "about/", wantOK: false},
		{ref: "#top", wantOK: false},
		{ref: "mailto:a@example.com", wantOK: false},
		{ref: "javascript:void(0)", wantOK: false},
		{ref: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()

			got, ok := SitePath(origin, tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (path %q)", tt.wantOK, ok, got)
			}
			if ok && got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAssetPath(t *testing.T) {
	t.Parallel()

	origin, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{ref: "/wp-content/uploads/a.png", want: "/wp-content/uploads/a.png", wantOK: true},
		{ref: "https://example.com/wp-content/uploads/a.png?ver=2", want: "/wp-content/uploads/a.png", wantOK: true},
		{ref: "wp-content/uploads/a.png", want: "/wp-content/uploads/a.png", wantOK: true},
		{ref: "wp-content/uploads/a.png?ver=2#x", want: "/wp-content/uploads/a.png", wantOK: true},
		{ref: " wp-content/themes/t/app.js ", want: "/wp-content/themes/t/app.js", wantOK: true},
		{ref: "../wp-content/uploads/a.png", wantOK: false},
		{ref: "wp-content/../wp-admin/x.js", wantOK: false},
		{ref: "https://cdn.example.net/wp-content/uploads/a.png", wantOK: false},
		{ref: "data:image/png;base64,AAAA", wantOK: false},
		{ref: "#top", wantOK: false},
		{ref: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()

			got, ok := AssetPath(origin, tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (path %q)", tt.wantOK, ok, got)
			}
			if ok && got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	if !SameOrigin(parse("http://localhost:8080"), parse("http://LOCALHOST:8080/x")) {
		t.Error("expected same origin for matching host and port")
	}
	if SameOrigin(parse("http://localhost:8080"), parse("http://localhost:8081/x")) {
		t.Error("expected different origin for different port")
	}
	if !SameOrigin(parse("http://example.com"), parse("http://example.com:80/")) {
		t.Error("expected default port to match explicit port")
	}
}

func TestOutputFile(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/":               "index.html",
		"/about/":         "about/index.html",
		"/about":          "about",
		"/blog/post.html": "blog/post.html",
		"/a/b/":           "a/b/index.html",
	}
	for in, want := range tests {
		if got := OutputFile(in); got != want {
			t.Errorf("%q: expected %q, got %q", in, want, got)
		}
	}
}
