// Package types defines the conversation data model shared between the
// session registry, the model runtime adapters and the HTTP layer.
package types

import "time"

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser marks turns authored by the caller, including turns that
	// carry function responses back to the model.
	RoleUser Role = "user"
	// RoleModel marks turns produced by the model runtime.
	RoleModel Role = "model"
)

// Turn is one logical message in a conversation. Turns are owned by the
// session ledger; the model runtime only ever receives copies.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasFunctionCalls reports whether the turn contains at least one
// function-call part.
func (t *Turn) HasFunctionCalls() bool {
	for _, p := range t.Parts {
		if _, ok := p.(*FunctionCallPart); ok {
			return true
		}
	}
	return false
}

// Text concatenates the text parts of the turn in order.
func (t *Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		if tp, ok := p.(*TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Usage carries token accounting reported by the model runtime at the end
// of a round.
type Usage struct {
	PromptTokens int `json:"promptTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates usage across the rounds of a single turn.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
