package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/agentd-ai/agentd/internal/runtime"
	"github.com/agentd-ai/agentd/pkg/types"
)

// fakeRuntime scripts model behavior for tests. Each SendTurn consumes
// the next round from the script.
type fakeRuntime struct {
	mu sync.Mutex

	authCalls    int
	authFailures int

	convCalls int
	script    []fakeRound
}

type fakeRound struct {
	events []runtime.Event
	err    error
}

func textRound(chunks ...string) fakeRound {
	events := []runtime.Event{runtime.StreamStarted{Model: "fake-model"}}
	for _, c := range chunks {
		events = append(events, runtime.ContentDelta{Text: c})
	}
	events = append(events, runtime.TurnFinished{Usage: &types.Usage{PromptTokens: 10, OutputTokens: 5, TotalTokens: 15}})
	return fakeRound{events: events}
}

func toolRound(name string, args map[string]any) fakeRound {
	return fakeRound{events: []runtime.Event{
		runtime.StreamStarted{Model: "fake-model"},
		runtime.ToolCallRequest{Call: types.FunctionCallPart{
			Kind:   "functionCall",
			CallID: "call-1",
			Name:   name,
			Args:   args,
		}},
		runtime.TurnFinished{Usage: &types.Usage{PromptTokens: 8, TotalTokens: 8}},
	}}
}

func (f *fakeRuntime) RefreshAuth(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authFailures > 0 {
		f.authFailures--
		return fmt.Errorf("auth unavailable")
	}
	return nil
}

func (f *fakeRuntime) NewConversation(ctx context.Context, cfg runtime.SessionConfig) (runtime.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls++
	return &fakeConversation{rt: f, model: cfg.Model, system: cfg.SystemContext}, nil
}

func (f *fakeRuntime) nextRound() (fakeRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return fakeRound{}, fmt.Errorf("no scripted rounds left")
	}
	round := f.script[0]
	f.script = f.script[1:]
	return round, nil
}

type fakeConversation struct {
	rt     *fakeRuntime
	system string

	mu      sync.Mutex
	model   string
	rebinds [][]*types.Turn
	closed  bool
}

func (c *fakeConversation) Rebind(history []*types.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]*types.Turn, len(history))
	copy(snapshot, history)
	c.rebinds = append(c.rebinds, snapshot)
}

func (c *fakeConversation) SendTurn(ctx context.Context) (runtime.EventStream, error) {
	round, err := c.rt.nextRound()
	if err != nil {
		return nil, err
	}
	return &fakeStream{round: round}, nil
}

func (c *fakeConversation) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *fakeConversation) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

func (c *fakeConversation) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConversation) lastRebind() []*types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rebinds) == 0 {
		return nil
	}
	return c.rebinds[len(c.rebinds)-1]
}

type fakeStream struct {
	round fakeRound
	i     int
}

func (s *fakeStream) Recv() (runtime.Event, error) {
	if s.i >= len(s.round.events) {
		if s.round.err != nil {
			return nil, s.round.err
		}
		return nil, io.EOF
	}
	ev := s.round.events[s.i]
	s.i++
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }
