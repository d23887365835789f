package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mlefebvre/ragtree/config"
)

func newTestServer() *Server {
	return New(config.Config{}, nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Message != "ok" {
		t.Errorf("unexpected message: %q", body.Message)
	}
}

func TestHealthRejectsPost(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("expected Allow: GET, got %q", allow)
	}
}

func TestChatRequiresQuestion(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"question": "  "}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatRejectsUnknownFields(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"question": "hi", "bogus": true}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/clear", strings.NewReader(`{"confirm": false}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(body.Error, "confirm") {
		t.Errorf("expected confirmation error, got %q", body.Error)
	}
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"dir": 42}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
