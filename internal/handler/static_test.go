package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestStaticHandler_ServesFiles(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html":       "<html>collage</html>",
		"script.js":        "console.log('hi');",
		"assets/logo.svg":  "<svg></svg>",
		"config/config.js": "window.APP_CONFIG = {};",
	})
	e := newTestEcho(testConfig(root), nil)

	tests := []struct {
		name     string
		path     string
		wantBody string
		wantType string
	}{
		{"index at root", "/", "<html>collage</html>", "text/html"},
		{"script", "/script.js", "console.log('hi');", "javascript"},
		{"nested", "/assets/logo.svg", "<svg></svg>", "image/svg+xml"},
		{"nested js", "/config/config.js", "window.APP_CONFIG = {};", "javascript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, tt.wantType) {
				t.Errorf("Content-Type = %q, want it to contain %q", ct, tt.wantType)
			}
			assertCORS(t, rec.Header())
		})
	}
}

func TestStaticHandler_NotFound(t *testing.T) {
	e := newTestEcho(testConfig(writeSite(t, map[string]string{"index.html": "x"})), nil)

	req := httptest.NewRequest(http.MethodGet, "/missing.png", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	assertCORS(t, rec.Header())
}

func TestStaticHandler_Forbidden(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced for this user")
	}
	root := writeSite(t, map[string]string{"secret.txt": "hidden"})
	if err := os.Chmod(filepath.Join(root, "secret.txt"), 0o000); err != nil {
		t.Fatal(err)
	}
	e := newTestEcho(testConfig(root), nil)

	req := httptest.NewRequest(http.MethodGet, "/secret.txt", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	assertCORS(t, rec.Header())
}

func TestStaticHandler_NoEscapeFromRoot(t *testing.T) {
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, "outside.txt"), []byte("outside"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(parent, "site")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	e := newTestEcho(testConfig(root), nil)

	req := httptest.NewRequest(http.MethodGet, "/../outside.txt", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "outside") && rec.Code == http.StatusOK {
		t.Error("file outside the root was served")
	}
}

func TestStaticHandler_Head(t *testing.T) {
	e := newTestEcho(testConfig(writeSite(t, map[string]string{"index.html": "<html></html>"})), nil)

	req := httptest.NewRequest(http.MethodHead, "/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body length = %d, want 0", rec.Body.Len())
	}
}

func TestPreflight(t *testing.T) {
	e := newTestEcho(testConfig(t.TempDir()), nil)

	for _, path := range []string{"/", "/script.js", "/proxy/https%3A%2F%2Fexample.com%2Fa.png"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			assertCORS(t, rec.Header())
		})
	}
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
