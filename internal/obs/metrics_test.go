package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                      "/",
		"/metrics":              "/metrics",
		"/api/v1/courses":       "/api/v1/courses",
		"/api/v1/courses?skip=5": "/api/v1/courses",
		"/api/v1/courses/0190b3c4-7a1e-7cc2-a0f1-6f1f5e2a9c11":          "/api/v1/courses/:id",
		"/api/v1/media/0190b3c4-7a1e-7cc2-a0f1-6f1f5e2a9c11/restore":    "/api/v1/media/:id/restore",
		"/api/v1/media/not-an-id/restore":                               "/api/v1/media/not-an-id/restore",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}), func(*http.Request) string { return "/api/v1/things/{id}" })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/things/{id}", "201"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/things/abc", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/things/{id}", "201"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestLLMCacheLookupCounts(t *testing.T) {
	hits := testutil.ToFloat64(llmClientCache.WithLabelValues("hit"))
	LLMCacheLookup(true)
	if got := testutil.ToFloat64(llmClientCache.WithLabelValues("hit")); got != hits+1 {
		t.Fatalf("hit counter = %v, want %v", got, hits+1)
	}
}
