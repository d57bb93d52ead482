package event

import "github.com/agentd-ai/agentd/pkg/types"

// SessionInitializedData announces a session that finished its startup
// sequence.
type SessionInitializedData struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Model     string `json:"model"`
}

// SessionClearedData announces a session removed from the registry.
type SessionClearedData struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

// SessionErrorData carries a failure surfaced to the caller.
type SessionErrorData struct {
	SessionID string `json:"sessionId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// TurnStartedData marks the start of an agentic turn.
type TurnStartedData struct {
	SessionID string `json:"sessionId"`
}

// TurnCompletedData marks the end of an agentic turn.
type TurnCompletedData struct {
	SessionID string       `json:"sessionId"`
	Usage     *types.Usage `json:"usage,omitempty"`
}

// ContentDeltaData is one chunk of streamed assistant text.
type ContentDeltaData struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// ToolPendingData announces a tool call awaiting approval.
type ToolPendingData struct {
	SessionID string `json:"sessionId"`
	CallID    string `json:"callId"`
	Name      string `json:"name"`
}

// ToolExecutedData announces a completed tool execution.
type ToolExecutedData struct {
	SessionID string `json:"sessionId"`
	CallID    string `json:"callId"`
	Name      string `json:"name"`
	Error     string `json:"error,omitempty"`
}

// YoloChangedData announces a yolo-mode flip.
type YoloChangedData struct {
	SessionID string `json:"sessionId"`
	Yolo      bool   `json:"yolo"`
}

// ModelChangedData announces a model switch on a live session.
type ModelChangedData struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}
