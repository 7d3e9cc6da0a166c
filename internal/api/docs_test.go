package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, Streams{})
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `href="/docs/streams"`) {
		t.Fatalf("docs missing streams link")
	}
}

func TestStreamsDocs(t *testing.T) {
	h := NewServer(&stubService{}, Streams{})
	req := httptest.NewRequest(http.MethodGet, "/docs/streams", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	for _, want := range []string{"/api/v1/events", "/api/v1/feed/ws", "capture.stored"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("streams docs missing %q", want)
		}
	}
}
