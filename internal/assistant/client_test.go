package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sdrlabs/leadqual/internal/domain"
)

func TestClient_HeadersAndThreadLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "assistants=v2" {
			t.Errorf("OpenAI-Beta = %q", got)
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "thread_123"})
		case r.Method == http.MethodDelete && r.URL.Path == "/threads/thread_123":
			_ = json.NewEncoder(w).Encode(map[string]any{"deleted": true})
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient("test-key", "asst_1", WithBaseURL(srv.URL))

	id, err := c.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if id != "thread_123" {
		t.Errorf("thread id = %q", id)
	}
	if err := c.DeleteThread(context.Background(), id); err != nil {
		t.Fatalf("DeleteThread() error = %v", err)
	}
}

func TestClient_GetRunParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "run_1",
			"thread_id": "thread_1",
			"status": "requires_action",
			"required_action": {
				"type": "submit_tool_outputs",
				"submit_tool_outputs": {
					"tool_calls": [
						{"id": "call_a", "type": "function", "function": {"name": "oferecerHorarios", "arguments": "{\"dias\": 5}"}},
						{"id": "call_b", "type": "function", "function": {"name": "registrarLead", "arguments": "{\"nome\": \"Maria\"}"}}
					]
				}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "asst_1", WithBaseURL(srv.URL))
	run, err := c.GetRun(context.Background(), "thread_1", "run_1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	if run.Status != domain.RunStatusRequiresAction {
		t.Errorf("status = %q", run.Status)
	}
	invocations := run.ToolInvocations()
	if len(invocations) != 2 {
		t.Fatalf("got %d invocations, want 2", len(invocations))
	}
	if invocations[0].Name != domain.ToolOfferSlots || invocations[0].ID != "call_a" {
		t.Errorf("invocation[0] = %+v", invocations[0])
	}
	var args struct {
		Dias int `json:"dias"`
	}
	if err := json.Unmarshal(invocations[0].Arguments, &args); err != nil || args.Dias != 5 {
		t.Errorf("arguments did not survive: %v %+v", err, args)
	}
}

func TestClient_SubmitToolOutputsBatch(t *testing.T) {
	var received struct {
		ToolOutputs []domain.ToolOutput `json:"tool_outputs"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/thread_1/runs/run_1/submit_tool_outputs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id": "run_1", "status": "queued"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "asst_1", WithBaseURL(srv.URL))
	outputs := []domain.ToolOutput{
		{InvocationID: "call_a", Output: `{"status":"success"}`},
		{InvocationID: "call_b", Output: `{"error":"boom"}`},
	}

	run, err := c.SubmitToolOutputs(context.Background(), "thread_1", "run_1", outputs)
	if err != nil {
		t.Fatalf("SubmitToolOutputs() error = %v", err)
	}
	if run.Status != domain.RunStatusQueued {
		t.Errorf("status = %q", run.Status)
	}
	if len(received.ToolOutputs) != 2 {
		t.Fatalf("submitted %d outputs, want the full batch of 2", len(received.ToolOutputs))
	}
}

func TestClient_LatestAssistantMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("limit = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "msg_1", "role": "assistant", "content": [{"type": "text", "text": {"value": "Olá! Como posso ajudar?"}}]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "asst_1", WithBaseURL(srv.URL))
	text, err := c.LatestAssistantMessage(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("LatestAssistantMessage() error = %v", err)
	}
	if text != "Olá! Como posso ajudar?" {
		t.Errorf("text = %q", text)
	}
}

func TestClient_APIErrorIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", "asst_1", WithBaseURL(srv.URL))
	_, err := c.CreateThread(context.Background())

	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if upstream.Op != "create-thread" {
		t.Errorf("op = %q", upstream.Op)
	}
}
