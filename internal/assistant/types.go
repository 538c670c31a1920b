package assistant

import (
	"encoding/json"

	"github.com/sdrlabs/leadqual/internal/domain"
)

// Run is one execution cycle of the conversation runtime.
type Run struct {
	ID             string            `json:"id"`
	ThreadID       string            `json:"thread_id"`
	Status         domain.RunStatus  `json:"status"`
	RequiredAction *RequiredAction   `json:"required_action,omitempty"`
	LastError      *RunError         `json:"last_error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RunError is the upstream-reported failure detail on a terminal run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequiredAction carries the tool calls a run is blocked on.
type RequiredAction struct {
	Type              string `json:"type"`
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

// ToolCall is the wire form of a requested function invocation.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolInvocations flattens the run's pending tool calls into domain form.
// Returns nil when the run is not blocked on tool outputs.
func (r *Run) ToolInvocations() []domain.ToolInvocation {
	if r.RequiredAction == nil {
		return nil
	}
	calls := r.RequiredAction.SubmitToolOutputs.ToolCalls
	out := make([]domain.ToolInvocation, 0, len(calls))
	for _, tc := range calls {
		out = append(out, domain.ToolInvocation{
			ID:        tc.ID,
			Name:      domain.ToolName(tc.Function.Name),
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

// Message is one entry of a thread's history.
type Message struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	CreatedAt int64            `json:"created_at"`
	Content   []messageContent `json:"content"`
}

type messageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

// Text returns the first text block of the message, or "".
func (m *Message) Text() string {
	for _, c := range m.Content {
		if c.Type == "text" {
			return c.Text.Value
		}
	}
	return ""
}

type messageList struct {
	Data []Message `json:"data"`
}

type thread struct {
	ID string `json:"id"`
}

// AssistantRequest declares (or redeclares) the hosted assistant: its
// instructions, model, and function tools.
type AssistantRequest struct {
	Name         string         `json:"name"`
	Instructions string         `json:"instructions"`
	Model        string         `json:"model"`
	Tools        []ToolSpec     `json:"tools"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ToolSpec is one declared function tool.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a callable function and its JSON-schema parameters.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Assistant is the runtime's record of a declared assistant.
type Assistant struct {
	ID string `json:"id"`
}
