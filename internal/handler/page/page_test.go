package page

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPageRendersSocketPath(t *testing.T) {
	h, err := New("Chat with your document", "/chat", nil)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<title>Chat with your document</title>") {
		t.Fatal("title not rendered")
	}
	if !strings.Contains(body, `const socketPath = "`) || !strings.Contains(body, `chat";`) {
		t.Fatal("socket path not rendered as a JS string")
	}
}

func TestPageEscapesTitle(t *testing.T) {
	h, err := New("<script>alert(1)</script>", "/chat", nil)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Contains(rec.Body.String(), "<script>alert(1)</script>") {
		t.Fatal("title must be escaped")
	}
}
