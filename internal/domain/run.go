package domain

import "encoding/json"

// RunStatus is the lifecycle state of a single conversation-runtime run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
)

// Known reports whether the status belongs to the documented enumeration.
// Anything else is a protocol violation from the runtime.
func (s RunStatus) Known() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction,
		RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the run reached a final outcome. requires_action
// is not terminal: control returns to the dispatcher, not the caller.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// ToolName identifies one of the declared assistant tools. Dispatch is over
// this enumerated type, one handler per variant.
type ToolName string

const (
	ToolRegisterLead    ToolName = "registrarLead"
	ToolOfferSlots      ToolName = "oferecerHorarios"
	ToolScheduleMeeting ToolName = "agendarReuniao"
)

// ToolInvocation is a single provider-requested function call. One run in
// requires_action may carry several; all must be resolved before the batch
// is resubmitted.
type ToolInvocation struct {
	ID        string
	Name      ToolName
	Arguments json.RawMessage
}

// ToolOutput pairs a resolved invocation with its serialized result.
type ToolOutput struct {
	InvocationID string `json:"tool_call_id"`
	Output       string `json:"output"`
}
