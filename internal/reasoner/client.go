// Package reasoner calls the hosted assistants API that turns an ordered turn
// list into an answer.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// ErrRunTimeout reports a remote run that never left the queued/in-progress
// state within the poll timeout.
var ErrRunTimeout = errors.New("run polling timed out")

// ErrNoReply reports a completed run with no assistant message to extract.
var ErrNoReply = errors.New("no assistant reply found")

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 120 * time.Second
	defaultRetries      = 3
	defaultRetryDelay   = 2 * time.Second
)

type Options struct {
	BaseURL             string
	APIKey              string
	Model               string
	EmbeddingModel      string
	AssistantName       string
	Instructions        string
	PollInterval        time.Duration
	PollTimeout         time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	MaxPromptTokens     int
	MaxCompletionTokens int
	HTTPClient          *http.Client
}

// Client drives the create-thread / create-run / poll / extract-reply
// sequence against the assistants service.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.RWMutex
	assistantID string
}

func NewClient(log *slog.Logger, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		opts:       opts,
		httpClient: httpClient,
		logger:     log.With(slog.String("service", "reasoner")),
	}
}

// SetAssistantID swaps the assistant used for subsequent runs. The sync job
// calls this after re-provisioning.
func (c *Client) SetAssistantID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assistantID = id
}

func (c *Client) AssistantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assistantID
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type threadResponse struct {
	ID string `json:"id"`
}

type runRequest struct {
	AssistantID         string `json:"assistant_id"`
	Instructions        string `json:"instructions,omitempty"`
	MaxPromptTokens     int    `json:"max_prompt_tokens,omitempty"`
	MaxCompletionTokens int    `json:"max_completion_tokens,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

type threadMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Some gateway implementations inline the produced messages on the run.
	Messages []threadMessage `json:"messages,omitempty"`
}

type listMessagesResponse struct {
	Data []threadMessage `json:"data"`
}

// Ask seeds a remote conversation with turns, runs the configured assistant
// against it and returns the reply text. Multi-part replies are concatenated
// in order.
func (c *Client) Ask(ctx context.Context, turns []conversation.Turn) (string, error) {
	assistantID := c.AssistantID()
	if assistantID == "" {
		return "", errors.New("assistant not provisioned")
	}

	messages := make([]apiMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, apiMessage{Role: string(turn.Role), Content: turn.Content})
	}

	var thread threadResponse
	err := c.withRetry(ctx, "create thread", func() error {
		return c.postJSON(ctx, "/threads", map[string]any{"messages": messages}, &thread)
	})
	if err != nil {
		return "", err
	}

	var run runResponse
	err = c.withRetry(ctx, "create run", func() error {
		return c.postJSON(ctx, "/threads/"+thread.ID+"/runs", runRequest{
			AssistantID:         assistantID,
			Instructions:        c.opts.Instructions,
			MaxPromptTokens:     c.opts.MaxPromptTokens,
			MaxCompletionTokens: c.opts.MaxCompletionTokens,
		}, &run)
	})
	if err != nil {
		return "", err
	}

	run, err = c.waitForRun(ctx, thread.ID, run)
	if err != nil {
		return "", err
	}

	if answer, ok := replyFromMessages(run.Messages); ok {
		return answer, nil
	}

	// The run result carried no reply; list the thread's messages directly.
	var listed listMessagesResponse
	err = c.withRetry(ctx, "list thread messages", func() error {
		return c.getJSON(ctx, "/threads/"+thread.ID+"/messages", &listed)
	})
	if err != nil {
		return "", err
	}
	if answer, ok := replyFromMessages(listed.Data); ok {
		return answer, nil
	}
	return "", ErrNoReply
}

// waitForRun polls the run at a fixed interval until it leaves the
// queued/in-progress state or the poll timeout elapses.
func (c *Client) waitForRun(ctx context.Context, threadID string, run runResponse) (runResponse, error) {
	deadline := time.Now().Add(c.opts.PollTimeout)
	for run.Status == "queued" || run.Status == "in_progress" {
		if time.Now().After(deadline) {
			return run, fmt.Errorf("run %s after %s: %w", run.ID, c.opts.PollTimeout, ErrRunTimeout)
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}
		if err := c.getJSON(ctx, "/threads/"+threadID+"/runs/"+run.ID, &run); err != nil {
			return run, fmt.Errorf("poll run: %w", err)
		}
	}
	if run.Status != "completed" {
		return run, fmt.Errorf("run %s ended with status %q", run.ID, run.Status)
	}
	return run, nil
}

// replyFromMessages finds the most recent assistant message and joins its
// text segments. Message lists arrive newest-first.
func replyFromMessages(messages []threadMessage) (string, bool) {
	for _, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		parts := make([]string, 0, len(msg.Content))
		for _, part := range msg.Content {
			if part.Type == "text" || part.Type == "" {
				parts = append(parts, part.Text.Value)
			}
		}
		if len(parts) == 0 {
			continue
		}
		return strings.Join(parts, "\n"), true
	}
	return "", false
}

// withRetry runs fn up to the configured attempt count with a fixed delay
// between attempts, re-raising the last error after exhaustion.
func (c *Client) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("attempt failed",
			slog.String("op", what),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))
		if attempt == c.opts.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
	return fmt.Errorf("%s: %w", what, lastErr)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
