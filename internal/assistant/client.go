// Package assistant is the HTTP client for the conversation runtime: the
// OpenAI Assistants v2 threads/runs API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sdrlabs/leadqual/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is a custom HTTP client for the Assistants API.
type Client struct {
	apiKey      string
	assistantID string
	baseURL     string
	httpClient  *http.Client
}

// NewClient creates a new Assistants API client bound to one assistant.
func NewClient(apiKey, assistantID string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:      apiKey,
		assistantID: assistantID,
		baseURL:     defaultBaseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do executes one API call and decodes the response into out (when non-nil).
// Any transport or non-2xx failure is wrapped as a domain.UpstreamError
// carrying the operation name.
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &domain.UpstreamError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.UpstreamError{Op: op, Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
		}
	}
	return nil
}

// CreateThread creates a fresh conversation and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var t thread
	if err := c.do(ctx, "create-thread", http.MethodPost, "/threads", map[string]any{}, &t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// DeleteThread removes a conversation from the runtime.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.do(ctx, "delete-thread", http.MethodDelete, "/threads/"+threadID, nil, nil)
}

// AddUserMessage appends a user-authored entry to the conversation.
func (c *Client) AddUserMessage(ctx context.Context, threadID, text string) error {
	payload := map[string]string{"role": "user", "content": text}
	return c.do(ctx, "append-message", http.MethodPost, "/threads/"+threadID+"/messages", payload, nil)
}

// ListMessages returns the thread history, oldest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var list messageList
	if err := c.do(ctx, "list-messages", http.MethodGet, "/threads/"+threadID+"/messages?order=asc", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// LatestAssistantMessage fetches the single most recent assistant-authored
// message and returns its text.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var list messageList
	if err := c.do(ctx, "list-latest-message", http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=1", nil, &list); err != nil {
		return "", err
	}
	if len(list.Data) == 0 || list.Data[0].Role != "assistant" {
		return "", nil
	}
	return list.Data[0].Text(), nil
}

// CreateRun starts a run of the bound assistant against the thread.
func (c *Client) CreateRun(ctx context.Context, threadID string) (*Run, error) {
	payload := map[string]string{"assistant_id": c.assistantID}
	var run Run
	if err := c.do(ctx, "start-run", http.MethodPost, "/threads/"+threadID+"/runs", payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, "get-run", http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// SubmitToolOutputs resubmits the full batch of invocation outputs in one
// call. Partial submission is not a legal state; callers collect every
// output first.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (*Run, error) {
	payload := map[string]any{"tool_outputs": outputs}
	var run Run
	if err := c.do(ctx, "submit-invocation-outputs", http.MethodPost,
		"/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun requests cancellation of an in-flight run. Best effort; the
// returned run reflects whatever state the runtime left it in.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, "cancel-run", http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateAssistant declares the assistant definition with the runtime and
// returns its id. Used by the assistantctl command, not the serving path.
func (c *Client) CreateAssistant(ctx context.Context, req *AssistantRequest) (*Assistant, error) {
	var a Assistant
	if err := c.do(ctx, "create-assistant", http.MethodPost, "/assistants", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
