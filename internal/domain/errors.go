package domain

import (
	"fmt"
	"time"
)

// UpstreamError wraps any failed call to the conversation runtime.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("conversation runtime %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ToolExecutionError scopes a failure to a single tool invocation. It never
// propagates past the dispatch loop; it is serialized back to the runtime
// so the assistant can react conversationally.
type ToolExecutionError struct {
	Tool ToolName
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RunTimeoutError indicates the polling loop exceeded its wall-clock
// ceiling. Distinct from upstream-reported terminal states.
type RunTimeoutError struct {
	RunID   string
	Elapsed time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s did not settle within %s", e.RunID, e.Elapsed)
}

// UnknownRunStatusError is a protocol violation: the runtime reported a
// status outside the documented enumeration.
type UnknownRunStatusError struct {
	RunID  string
	Status RunStatus
}

func (e *UnknownRunStatusError) Error() string {
	return fmt.Sprintf("run %s reported unknown status %q", e.RunID, e.Status)
}

// SlotNotFoundError means a chosen display string has no live entry in the
// correlation store for the conversation. The caller must re-prompt for a
// valid choice; a time is never fabricated.
type SlotNotFoundError struct {
	ConversationID string
	DisplayKey     string
}

func (e *SlotNotFoundError) Error() string {
	return fmt.Sprintf("no slot %q mapped for conversation %s", e.DisplayKey, e.ConversationID)
}

// UpstreamAPIError is a non-2xx or malformed response from the CRM or
// scheduling providers.
type UpstreamAPIError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s API: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamAPIError) Unwrap() error { return e.Err }
