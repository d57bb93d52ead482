package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/runtime"
	"github.com/agentd-ai/agentd/pkg/types"
)

// maxRounds caps the model/tool round trips of a single turn.
const maxRounds = 24

// State names the phase of an agentic turn.
type State string

const (
	// StateDraining: consuming the model's event stream.
	StateDraining State = "draining"
	// StateAwaitingApproval: paused on tool calls that need caller approval.
	StateAwaitingApproval State = "awaiting_approval"
	// StateExecuting: running approved or auto-approved tool calls.
	StateExecuting State = "executing"
	// StateCompleted: the turn produced its final text.
	StateCompleted State = "completed"
)

// StreamEvent is one progress item emitted to a prompt's sink while the
// turn is driven.
type StreamEvent interface{ streamEvent() }

// ModelInfo opens a stream and identifies the session and model.
type ModelInfo struct {
	SessionID string
	Model     string
}

// TextDelta is one chunk of assistant text.
type TextDelta struct {
	Text string
}

// ToolPendingInfo announces a tool call, either awaiting approval or
// about to auto-execute.
type ToolPendingInfo struct {
	CallID string
	Name   string
	Args   map[string]any
}

// ToolResultInfo reports a finished tool execution. Error is empty on
// success.
type ToolResultInfo struct {
	CallID string
	Name   string
	Error  string
}

// TurnResult closes a completed turn with its accumulated text and usage.
type TurnResult struct {
	Text  string
	Usage *types.Usage
}

func (ModelInfo) streamEvent()       {}
func (TextDelta) streamEvent()       {}
func (ToolPendingInfo) streamEvent() {}
func (ToolResultInfo) streamEvent()  {}
func (TurnResult) streamEvent()      {}

// Sink receives StreamEvents in emission order on the driving goroutine.
type Sink func(StreamEvent)

// Outcome is the terminal state of one Prompt or Fulfill call.
type Outcome struct {
	State   State
	Text    string
	Usage   *types.Usage
	Pending []types.FunctionCallPart
}

// PromptOptions select the relay mode for a prompt.
type PromptOptions struct {
	// Buffered collects the whole turn and fails on approval pauses and
	// empty responses instead of streaming progress.
	Buffered bool

	// Ephemeral resets the ledger before the prompt, so the turn starts
	// from a clean conversation.
	Ephemeral bool

	// Attachments ride along with the prompt text in the same user turn,
	// typically image blobs.
	Attachments []types.Part

	// Sink receives progress events. Ignored when nil.
	Sink Sink
}

// driver runs the agentic loop for one turn.
type driver struct {
	store *Store
	rec   *Record
	sink  Sink

	buffered bool
	// interactive turns pause on manual approval instead of failing.
	// Buffered prompts are non-interactive; fulfillment continuations are
	// always interactive.
	interactive bool
}

func (d *driver) emit(ev StreamEvent) {
	if d.sink != nil {
		d.sink(ev)
	}
}

// Prompt appends a user turn and drives it to completion, a pause, or an
// error. The ledger is rolled back to its prior state when the turn
// cannot proceed.
func (s *Store) Prompt(ctx context.Context, path, sessionID, text string, opts PromptOptions) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}

	rec, err := s.GetOrCreate(path, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx, rec); err != nil {
		return nil, err
	}
	if len(rec.Pending()) > 0 {
		return nil, fmt.Errorf("%w: fulfill pending tool calls first", ErrApprovalRequired)
	}
	rec.touch()

	if opts.Ephemeral {
		rec.ledger.Reset()
	}
	parts := make([]types.Part, 0, len(opts.Attachments)+1)
	parts = append(parts, types.NewTextPart(text))
	parts = append(parts, opts.Attachments...)
	rec.ledger.Append(types.RoleUser, parts)

	s.bus.Publish(event.Event{Type: event.TurnStarted, Data: event.TurnStartedData{
		SessionID: rec.SessionID,
	}})

	d := &driver{
		store:       s,
		rec:         rec,
		sink:        opts.Sink,
		buffered:    opts.Buffered,
		interactive: !opts.Buffered,
	}
	outcome, err := d.drive(ctx)
	if err != nil {
		rec.ledger.RollbackLastUser()
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

// drive loops model rounds until the turn completes, pauses for approval,
// or fails.
func (d *driver) drive(ctx context.Context) (*Outcome, error) {
	rec := d.rec
	log := logging.Component("session.driver")
	total := &types.Usage{}

	for round := 0; round < maxRounds; round++ {
		rec.mu.Lock()
		conv := rec.conv
		rec.mu.Unlock()

		conv.Rebind(rec.ledger.Snapshot())
		stream, err := conv.SendTurn(ctx)
		if err != nil {
			return nil, &RuntimeError{Err: err}
		}

		text, calls, usage, err := d.drain(stream)
		if err != nil {
			return nil, &RuntimeError{Err: err}
		}
		if usage != nil {
			total.Add(*usage)
		}

		if len(calls) > 0 {
			if !d.interactive && !rec.Yolo() {
				// The model turn is not recorded: the caller retries with
				// streaming or yolo and the ledger must not hold half a turn.
				return nil, ErrApprovalRequired
			}

			parts := make([]types.Part, 0, len(calls)+1)
			if text != "" {
				parts = append(parts, types.NewTextPart(text))
			}
			for i := range calls {
				parts = append(parts, &calls[i])
			}
			rec.ledger.Append(types.RoleModel, parts)

			if !rec.Yolo() {
				rec.setPending(calls)
				for _, call := range calls {
					d.emit(ToolPendingInfo{CallID: call.CallID, Name: call.Name, Args: call.Args})
					d.store.bus.Publish(event.Event{Type: event.ToolPending, Data: event.ToolPendingData{
						SessionID: rec.SessionID,
						CallID:    call.CallID,
						Name:      call.Name,
					}})
				}
				return &Outcome{State: StateAwaitingApproval, Pending: calls, Usage: total}, nil
			}

			responses := d.executeCalls(ctx, calls, true)
			rec.ledger.Append(types.RoleUser, responses)
			continue
		}

		rec.ledger.Append(types.RoleModel, []types.Part{types.NewTextPart(text)})
		if d.buffered && strings.TrimSpace(text) == "" {
			rec.ledger.RollbackLast()
			return nil, ErrEmptyResponse
		}

		d.emit(TurnResult{Text: text, Usage: total})
		return &Outcome{State: StateCompleted, Text: text, Usage: total}, nil
	}

	log.Warn().Str("sessionId", rec.SessionID).Int("rounds", maxRounds).Msg("turn hit round limit")
	return nil, &RuntimeError{Err: fmt.Errorf("turn exceeded %d rounds", maxRounds)}
}

// drain consumes one model round, relaying deltas as they arrive and
// collecting tool calls in emission order.
func (d *driver) drain(stream runtime.EventStream) (string, []types.FunctionCallPart, *types.Usage, error) {
	defer stream.Close()

	var (
		text  strings.Builder
		calls []types.FunctionCallPart
		usage *types.Usage
	)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", nil, nil, err
		}
		switch e := ev.(type) {
		case runtime.StreamStarted:
			d.emit(ModelInfo{SessionID: d.rec.SessionID, Model: e.Model})
		case runtime.ContentDelta:
			text.WriteString(e.Text)
			d.emit(TextDelta{Text: e.Text})
			d.store.bus.Publish(event.Event{Type: event.ContentDelta, Data: event.ContentDeltaData{
				SessionID: d.rec.SessionID,
				Text:      e.Text,
			}})
		case runtime.ThoughtDelta:
			// Reasoning chunks are relayed nowhere and never recorded.
		case runtime.ToolCallRequest:
			call := e.Call
			if call.CallID == "" {
				call.CallID = ulid.Make().String()
			}
			calls = append(calls, call)
		case runtime.TurnFinished:
			usage = e.Usage
		}
	}
	return text.String(), calls, usage, nil
}

// executeCalls runs tool calls in emission order and returns their
// function-response parts in the same order.
func (d *driver) executeCalls(ctx context.Context, calls []types.FunctionCallPart, approved bool) []types.Part {
	responses := make([]types.Part, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, d.executeCall(ctx, call, approved))
	}
	return responses
}

func (d *driver) executeCall(ctx context.Context, call types.FunctionCallPart, approved bool) *types.FunctionResponsePart {
	resp := &types.FunctionResponsePart{
		Kind:   "functionResponse",
		CallID: call.CallID,
		Name:   call.Name,
	}

	result, err := d.runTool(ctx, call, approved)
	if err != nil {
		resp.Response = map[string]any{"error": err.Error()}
	} else {
		resp.Response = map[string]any{"output": result.Content}
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	d.emit(ToolResultInfo{CallID: call.CallID, Name: call.Name, Error: errMsg})
	d.store.bus.Publish(event.Event{Type: event.ToolExecuted, Data: event.ToolExecutedData{
		SessionID: d.rec.SessionID,
		CallID:    call.CallID,
		Name:      call.Name,
		Error:     errMsg,
	}})
	return resp
}

func (d *driver) runTool(ctx context.Context, call types.FunctionCallPart, approved bool) (*runtime.Result, error) {
	tool, err := d.store.tools.Resolve(call.Name)
	if err != nil {
		return nil, err
	}
	return tool.Execute(ctx, call.Args, runtime.ExecContext{
		WorkDir:  d.rec.Path,
		Approved: approved,
	})
}
