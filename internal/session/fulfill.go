package session

import (
	"context"
	"fmt"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Decision resolves one pending tool call.
type Decision struct {
	CallID   string `json:"callId"`
	Approved bool   `json:"approved"`
}

// rejectedMessage is the function response handed to the model for a
// call the caller declined.
const rejectedMessage = "rejected by user"

// Fulfill resolves pending tool calls for a paused turn. Approved calls
// execute immediately; rejected calls answer the model with an error.
// Once every pending call is resolved the responses are appended as one
// user turn and the turn resumes driving.
func (s *Store) Fulfill(ctx context.Context, path, sessionID string, decisions []Decision, opts PromptOptions) (*Outcome, error) {
	rec, err := s.Get(path, sessionID)
	if err != nil {
		return nil, err
	}
	if !rec.Ready() {
		return nil, ErrWarmingUp
	}
	if len(decisions) == 0 {
		return nil, fmt.Errorf("no decisions supplied")
	}

	rec.mu.Lock()
	if len(rec.pending) == 0 {
		rec.mu.Unlock()
		return nil, ErrNoPendingCalls
	}
	pendingByID := make(map[string]types.FunctionCallPart, len(rec.pending))
	for _, call := range rec.pending {
		pendingByID[call.CallID] = call
	}
	for _, dec := range decisions {
		if _, ok := pendingByID[dec.CallID]; !ok {
			rec.mu.Unlock()
			return nil, fmt.Errorf("unknown tool call %q", dec.CallID)
		}
		if rec.resolved != nil {
			if _, done := rec.resolved[dec.CallID]; done {
				rec.mu.Unlock()
				return nil, fmt.Errorf("tool call %q already resolved", dec.CallID)
			}
		}
	}
	if rec.resolved == nil {
		rec.resolved = make(map[string]*types.FunctionResponsePart)
	}
	rec.mu.Unlock()
	rec.touch()

	d := &driver{
		store:       s,
		rec:         rec,
		sink:        opts.Sink,
		buffered:    opts.Buffered,
		interactive: true,
	}

	for _, dec := range decisions {
		call := pendingByID[dec.CallID]
		var resp *types.FunctionResponsePart
		if dec.Approved {
			resp = d.executeCall(ctx, call, true)
		} else {
			resp = &types.FunctionResponsePart{
				Kind:     "functionResponse",
				CallID:   call.CallID,
				Name:     call.Name,
				Response: map[string]any{"error": rejectedMessage},
			}
			d.emit(ToolResultInfo{CallID: call.CallID, Name: call.Name, Error: rejectedMessage})
			s.bus.Publish(event.Event{Type: event.ToolExecuted, Data: event.ToolExecutedData{
				SessionID: rec.SessionID,
				CallID:    call.CallID,
				Name:      call.Name,
				Error:     rejectedMessage,
			}})
		}
		rec.mu.Lock()
		rec.resolved[call.CallID] = resp
		rec.mu.Unlock()
	}

	rec.mu.Lock()
	if len(rec.resolved) < len(rec.pending) {
		remaining := make([]types.FunctionCallPart, 0, len(rec.pending)-len(rec.resolved))
		for _, call := range rec.pending {
			if _, done := rec.resolved[call.CallID]; !done {
				remaining = append(remaining, call)
			}
		}
		rec.mu.Unlock()
		return &Outcome{State: StateAwaitingApproval, Pending: remaining}, nil
	}

	// The model expects one response per call, in call order.
	responses := make([]types.Part, 0, len(rec.pending))
	for _, call := range rec.pending {
		responses = append(responses, rec.resolved[call.CallID])
	}
	rec.pending = nil
	rec.resolved = nil
	rec.mu.Unlock()

	rec.ledger.Append(types.RoleUser, responses)

	outcome, err := d.drive(ctx)
	if err != nil {
		s.bus.Publish(event.Event{Type: event.SessionError, Data: event.SessionErrorData{
			SessionID: rec.SessionID,
			Code:      "TURN_FAILED",
			Message:   err.Error(),
		}})
		return nil, err
	}
	if outcome.State == StateCompleted {
		s.bus.Publish(event.Event{Type: event.TurnCompleted, Data: event.TurnCompletedData{
			SessionID: rec.SessionID,
			Usage:     outcome.Usage,
		}})
	}
	return outcome, nil
}
