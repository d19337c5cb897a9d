package observability

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/results/123/corrections")
	want := "/api/v1/results/{id}/corrections"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestNormalizedPathKeepsTextSegments(t *testing.T) {
	got := normalizedPath("/api/v1/tests/7/questions/q-abc")
	want := "/api/v1/tests/{id}/questions/q-abc"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestMiddlewareLogsResultID(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	c := NewCollector(nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/results/456/corrections", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if !strings.Contains(line, `"result_id":456`) {
		t.Fatalf("log line missing result id: %s", line)
	}
	if !strings.Contains(line, `"path":"/api/v1/results/{id}/corrections"`) {
		t.Fatalf("log line missing normalized path: %s", line)
	}
}

func TestExtractResultID(t *testing.T) {
	if id := extractResultID("/api/v1/results/456/recalculate"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractResultID("/api/v1/tests/1"); id != 0 {
		t.Fatalf("expected 0 for non-result path, got %d", id)
	}
}
