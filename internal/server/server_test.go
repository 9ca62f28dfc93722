package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xrplevm/docsbot/internal/conversation"
	"github.com/xrplevm/docsbot/internal/handlers"
	"github.com/xrplevm/docsbot/internal/logger"
)

type fakeAsker struct {
	answer string
}

func (f *fakeAsker) Ask(ctx context.Context, turns []conversation.Turn) (string, error) {
	return f.answer, nil
}

func testServer() *Server {
	log := logger.L
	return NewServer(":0", log,
		handlers.NewPingHandler(log),
		handlers.NewAskHandler(log, &fakeAsker{answer: "forty-two"}, nil),
		nil,
	)
}

func TestPingRoute(t *testing.T) {
	t.Parallel()

	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"uptime"`) {
		t.Fatalf("body = %q, want an uptime field", rec.Body.String())
	}
}

func TestAskRoute(t *testing.T) {
	t.Parallel()

	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"what is the gas limit?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "forty-two") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAskRoute_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncRouteUnavailableWithoutJob(t *testing.T) {
	t.Parallel()

	log := logger.L
	s := NewServer(":0", log, nil, nil, handlers.NewSyncHandler(log, nil))
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
