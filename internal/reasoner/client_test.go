package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xrplevm/docsbot/internal/conversation"
)

type fakeAssistantAPI struct {
	pollsUntilComplete int32
	finalStatus        string
	reply              []map[string]any
	threadFailures     int32

	polls   atomic.Int32
	threads atomic.Int32
}

func (a *fakeAssistantAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		if a.threads.Add(1) <= a.threadFailures {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		writeJSON(t, w, map[string]any{"id": "thread_1"})
	})
	mux.HandleFunc("POST /threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("GET /threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		status := "in_progress"
		if a.polls.Add(1) >= a.pollsUntilComplete {
			status = a.finalStatus
		}
		writeJSON(t, w, map[string]any{"id": "run_1", "status": status})
	})
	mux.HandleFunc("GET /threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"data": a.reply})
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func assistantMessage(parts ...string) map[string]any {
	content := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		content = append(content, map[string]any{"type": "text", "text": map[string]any{"value": p}})
	}
	return map[string]any{"role": "assistant", "content": content}
}

func newTestClient(t *testing.T, api *fakeAssistantAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(nil, Options{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		Model:         "gpt-4o-mini",
		PollInterval:  time.Millisecond,
		PollTimeout:   200 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		HTTPClient:    srv.Client(),
	})
	c.SetAssistantID("asst_1")
	return c
}

func TestAsk_PollsUntilCompleteAndExtractsReply(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{
		pollsUntilComplete: 3,
		finalStatus:        "completed",
		reply:              []map[string]any{assistantMessage("part one", "part two")},
	}
	c := newTestClient(t, api)

	answer, err := c.Ask(context.Background(), []conversation.Turn{
		{Role: conversation.RoleUser, Content: "what is X?"},
	})
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer != "part one\npart two" {
		t.Fatalf("Ask = %q, want joined multi-part reply", answer)
	}
	if api.polls.Load() < 3 {
		t.Fatalf("polls = %d, want at least 3", api.polls.Load())
	}
}

func TestAsk_SkipsUserMessagesWhenExtracting(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{
		pollsUntilComplete: 1,
		finalStatus:        "completed",
		reply: []map[string]any{
			{"role": "user", "content": []map[string]any{{"type": "text", "text": map[string]any{"value": "question"}}}},
			assistantMessage("the answer"),
		},
	}
	c := newTestClient(t, api)

	answer, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("Ask = %q, want assistant reply", answer)
	}
}

func TestAsk_RetriesTransientThreadCreation(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{
		pollsUntilComplete: 1,
		finalStatus:        "completed",
		reply:              []map[string]any{assistantMessage("ok")},
		threadFailures:     2,
	}
	c := newTestClient(t, api)

	answer, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Ask error after retries: %v", err)
	}
	if answer != "ok" {
		t.Fatalf("Ask = %q", answer)
	}
	if got := api.threads.Load(); got != 3 {
		t.Fatalf("thread creation attempts = %d, want 3", got)
	}
}

func TestAsk_RunTimeout(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{
		pollsUntilComplete: 1 << 30, // never completes
		finalStatus:        "completed",
	}
	c := newTestClient(t, api)

	_, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("Ask error = %v, want ErrRunTimeout", err)
	}
}

func TestAsk_FailedRunStatus(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{pollsUntilComplete: 1, finalStatus: "failed"}
	c := newTestClient(t, api)

	_, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("Ask = nil error, want failed-run error")
	}
}

func TestAsk_NoReplyFound(t *testing.T) {
	t.Parallel()

	api := &fakeAssistantAPI{pollsUntilComplete: 1, finalStatus: "completed"}
	c := newTestClient(t, api)

	_, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("Ask error = %v, want ErrNoReply", err)
	}
}

func TestAsk_RequiresProvisionedAssistant(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, Options{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Ask(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("Ask without assistant id must fail")
	}
}
