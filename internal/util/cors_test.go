package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithCORSAllowsOnlyServedHeaders(t *testing.T) {
	handler := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(allowed, "Content-Type") {
		t.Fatalf("Content-Type not allowed: %q", allowed)
	}
	for _, header := range []string{"Authorization", "X-User-Id", "X-User-Role", "X-Internal-Token"} {
		if strings.Contains(allowed, header) {
			t.Fatalf("allowed header %q has no backing endpoint", header)
		}
	}
	if methods := rec.Header().Get("Access-Control-Allow-Methods"); strings.Contains(methods, "DELETE") || strings.Contains(methods, "PATCH") {
		t.Fatalf("allowed methods not served by this API: %q", methods)
	}
}

func TestWithCORSAnswersPreflight(t *testing.T) {
	handler := WithCORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("preflight must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/generate", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin header")
	}
}
