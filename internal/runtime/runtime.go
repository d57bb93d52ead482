// Package runtime abstracts the model backend behind narrow interfaces.
// The session layer drives conversations through these types and never
// imports a provider SDK directly.
package runtime

import (
	"context"

	"github.com/agentd-ai/agentd/pkg/types"
)

// SessionConfig describes one conversation to be opened against the
// backend.
type SessionConfig struct {
	// WorkDir is the project directory the conversation serves. Tool
	// executions are rooted here.
	WorkDir string

	// Model names the backend model for this conversation.
	Model string

	// SystemContext is prepended project context, typically the contents
	// of the project's memory file. May be empty.
	SystemContext string

	// Tools is the registry the model may call into. May be nil.
	Tools *Registry
}

// Runtime is a model backend.
type Runtime interface {
	// RefreshAuth validates or renews the backend credentials. Called
	// during session initialization and retried on failure.
	RefreshAuth(ctx context.Context) error

	// NewConversation opens a conversation. The returned Conversation is
	// not safe for concurrent SendTurn calls.
	NewConversation(ctx context.Context, cfg SessionConfig) (Conversation, error)
}

// Conversation is one open exchange with the backend. History is a
// write-only mirror: the session ledger owns the canonical record and
// pushes it down via Rebind before each turn.
type Conversation interface {
	// Rebind replaces the conversation's history mirror with a snapshot
	// of the ledger.
	Rebind(history []*types.Turn)

	// SendTurn submits the mirrored history to the backend and returns a
	// stream of events for one round. The turn to send must already be in
	// the history passed to Rebind.
	SendTurn(ctx context.Context) (EventStream, error)

	// Model returns the model currently bound to the conversation.
	Model() string

	// SetModel switches the conversation to a different model. Takes
	// effect on the next SendTurn.
	SetModel(model string)

	// Close releases backend resources.
	Close() error
}

// EventStream yields the events of one model round. Recv returns io.EOF
// after the final event.
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

// Event is one item on an EventStream. Exactly one of the concrete types
// below.
type Event interface {
	runtimeEvent()
}

// StreamStarted opens a round and names the model serving it.
type StreamStarted struct {
	Model string
}

// ContentDelta carries one chunk of assistant text.
type ContentDelta struct {
	Text string
}

// ThoughtDelta carries one chunk of model reasoning. The orchestrator
// discards it: reasoning is neither relayed to callers nor recorded.
type ThoughtDelta struct {
	Text string
}

// ToolCallRequest asks the orchestrator to execute a tool.
type ToolCallRequest struct {
	Call types.FunctionCallPart
}

// TurnFinished closes a round with its token accounting.
type TurnFinished struct {
	Usage *types.Usage
}

func (StreamStarted) runtimeEvent()   {}
func (ContentDelta) runtimeEvent()    {}
func (ThoughtDelta) runtimeEvent()    {}
func (ToolCallRequest) runtimeEvent() {}
func (TurnFinished) runtimeEvent()    {}
