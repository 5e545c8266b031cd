package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/cfstatic/internal/config"
)

func TestToken_Cookie(t *testing.T) {
	t.Parallel()

	if got := Token("").Cookie(); got != "" {
		t.Errorf("expected empty cookie for zero token, got %q", got)
	}
	if got := Token("abc.def").Cookie(); got != "CF_Authorization=abc.def" {
		t.Errorf("expected CF_Authorization=abc.def, got %q", got)
	}
}

func TestExtractToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header http.Header
		want   Token
		found  bool
	}{
		{
			name:   "set-cookie with attributes",
			header: http.Header{"Set-Cookie": {"CF_Authorization=eyJ.a.b; Path=/; Secure; HttpOnly"}},
			want:   "eyJ.a.b",
			found:  true,
		},
		{
			name: "second set-cookie line",
			header: http.Header{"Set-Cookie": {
				"CF_AppSession=xyz; Path=/",
				"CF_Authorization=tok123; Path=/",
			}},
			want:  "tok123",
			found: true,
		},
		{
			name:   "value in a location header",
			header: http.Header{"Location": {"https://example.com/?CF_Authorization=loc456"}},
			want:   "loc456",
			found:  true,
		},
		{
			name:   "no token",
			header: http.Header{"Set-Cookie": {"CF_AppSession=xyz; Path=/"}},
			found:  false,
		},
		{
			name:   "empty header",
			header: http.Header{},
			found:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractToken(tt.header)
			if ok != tt.found {
				t.Fatalf("expected found=%v, got %v", tt.found, ok)
			}
			if got != tt.want {
				t.Errorf("expected token %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("sends credentials with HEAD and returns token from redirect", func(t *testing.T) {
		t.Parallel()

		var gotMethod, gotID, gotSecret string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotID = r.Header.Get(HeaderClientID)
			gotSecret = r.Header.Get(HeaderClientSecret)
			if r.URL.Path == "/" {
				http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "session-value", Path: "/"})
				http.Redirect(w, r, "/landing", http.StatusFound)
				return
			}
			t.Errorf("redirect should not be followed, got request for %s", r.URL.Path)
		}))
		defer server.Close()

		auth := New(WithHTTPClient(server.Client()))
		token, err := auth.Authenticate(t.Context(), server.URL, config.Credentials{
			ClientID:     "client.access",
			ClientSecret: "secret",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "session-value" {
			t.Errorf("expected token 'session-value', got %q", token)
		}
		if gotMethod != http.MethodHead {
			t.Errorf("expected HEAD, got %s", gotMethod)
		}
		if gotID != "client.access" || gotSecret != "secret" {
			t.Errorf("expected credentials in headers, got id=%q secret=%q", gotID, gotSecret)
		}
	})

	t.Run("successful status without token is a failure", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		auth := New(WithHTTPClient(server.Client()))
		_, err := auth.Authenticate(t.Context(), server.URL, config.Credentials{ClientID: "id", ClientSecret: "secret"})
		if !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("forbidden without token is a failure", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		auth := New(WithHTTPClient(server.Client()))
		_, err := auth.Authenticate(t.Context(), server.URL, config.Credentials{ClientID: "id", ClientSecret: "bad"})
		if !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("partial credentials never reach the network", func(t *testing.T) {
		t.Parallel()

		called := false
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			called = true
		}))
		defer server.Close()

		auth := New(WithHTTPClient(server.Client()))
		_, err := auth.Authenticate(t.Context(), server.URL, config.Credentials{ClientID: "id"})
		if !errors.Is(err, ErrIncompleteCredentials) {
			t.Errorf("expected ErrIncompleteCredentials, got %v", err)
		}
		if called {
			t.Error("expected no request for partial credentials")
		}
	})

	t.Run("transport failure is returned", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()

		auth := New()
		if _, err := auth.Authenticate(t.Context(), url, config.Credentials{ClientID: "id", ClientSecret: "s"}); err == nil {
			t.Error("expected error for closed server")
		}
	})

	t.Run("caller client keeps following redirects", func(t *testing.T) {
		t.Parallel()

		client := &http.Client{}
		_ = New(WithHTTPClient(client))
		if client.CheckRedirect != nil {
			t.Error("expected caller client to be left untouched")
		}
	})
}
