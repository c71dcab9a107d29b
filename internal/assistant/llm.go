package assistant

import (
	"context"
)

// RunStatus is the lifecycle state of a run on the assistant platform
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Pending reports whether the run is still being worked on by the platform.
func (s RunStatus) Pending() bool {
	return s == RunStatusQueued || s == RunStatusInProgress || s == RunStatusCancelling
}

// Failed reports whether the run ended without an answer.
func (s RunStatus) Failed() bool {
	switch s {
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// Run is one asynchronous execution of the assistant against a thread
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []ToolCall // set when Status is requires_action
	LastError string
}

// ToolCall represents a request from the assistant to execute a tool
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall represents the details of a function execution request
type FunctionCall struct {
	Name      string
	Arguments string // JSON string of arguments
}

// ToolOutput answers exactly one ToolCall
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// ThreadMessage is a message stored in a server-side thread
type ThreadMessage struct {
	ID   string
	Role string // "user" or "assistant"
	Text string
}

// ToolDefinition defines a tool that can be used by the assistant
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  interface{} // JSON Schema describing the parameters
}

// AssistantSpec describes an assistant to create on the platform
type AssistantSpec struct {
	Name         string
	Instructions string
	Model        string
}

// Platform is the hosted assistant service: threads, runs and tool output submission.
type Platform interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec, tools []ToolDefinition) (string, error)
	CreateThread(ctx context.Context, firstMessage string) (string, error)
	AppendMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns the thread's messages newest first.
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}
