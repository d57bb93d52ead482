package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/pkg/types"
)

// collector gathers driver events in emission order.
type collector struct {
	events []StreamEvent
}

func (c *collector) sink(ev StreamEvent) {
	c.events = append(c.events, ev)
}

func (c *collector) deltas() string {
	var out string
	for _, ev := range c.events {
		if d, ok := ev.(TextDelta); ok {
			out += d.Text
		}
	}
	return out
}

func readyRecord(t *testing.T, s *Store, dir string) *Record {
	t.Helper()
	rec, err := s.GetOrCreate(dir, "")
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background(), rec))
	return rec
}

func TestPromptStreamsTextTurn(t *testing.T) {
	rt := &fakeRuntime{script: []fakeRound{textRound("hel", "lo")}}
	s := newTestStore(t, rt)
	dir := t.TempDir()
	rec := readyRecord(t, s, dir)

	var c collector
	outcome, err := s.Prompt(context.Background(), dir, "", "hi", PromptOptions{Sink: c.sink})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, "hello", outcome.Text)
	assert.Equal(t, 15, outcome.Usage.TotalTokens)
	assert.Equal(t, "hello", c.deltas())

	// User turn plus model turn.
	require.Equal(t, 2, rec.ledger.Len())
	assert.Equal(t, types.RoleUser, rec.ledger.Snapshot()[0].Role)
	assert.Equal(t, "hello", rec.ledger.Last().Text())
}

func TestPromptRebindsLedgerBeforeEachRound(t *testing.T) {
	rt := &fakeRuntime{script: []fakeRound{textRound("one"), textRound("two")}}
	s := newTestStore(t, rt)
	dir := t.TempDir()
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "first", PromptOptions{})
	require.NoError(t, err)
	_, err = s.Prompt(context.Background(), dir, "", "second", PromptOptions{})
	require.NoError(t, err)

	rec.mu.Lock()
	conv := rec.conv.(*fakeConversation)
	rec.mu.Unlock()

	// The second prompt's mirror carries the whole ledger: both user
	// turns and the first model turn.
	last := conv.lastRebind()
	require.Len(t, last, 3)
	assert.Equal(t, "first", last[0].Text())
	assert.Equal(t, "one", last[1].Text())
	assert.Equal(t, "second", last[2].Text())
}

func TestPromptYoloExecutesToolsAndLoops(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("contents"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".agentd"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".agentd", "agentd.json"),
		[]byte("{\n  // auto-approve tools\n  \"yolo\": true\n}"),
		0o644,
	))

	rt := &fakeRuntime{script: []fakeRound{
		toolRound("read_file", map[string]any{"path": "note.txt"}),
		textRound("the file says contents"),
	}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)
	require.True(t, rec.Yolo())

	var c collector
	outcome, err := s.Prompt(context.Background(), dir, "", "read it", PromptOptions{Sink: c.sink})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, "the file says contents", outcome.Text)

	// user, model(call), user(response), model(text)
	turns := rec.ledger.Snapshot()
	require.Len(t, turns, 4)
	assert.True(t, turns[1].HasFunctionCalls())
	require.Equal(t, types.RoleUser, turns[2].Role)
	resp := turns[2].Parts[0].(*types.FunctionResponsePart)
	assert.Equal(t, "call-1", resp.CallID)
	assert.Equal(t, "contents", resp.Response["output"])

	var sawResult bool
	for _, ev := range c.events {
		if tr, ok := ev.(ToolResultInfo); ok {
			sawResult = true
			assert.Empty(t, tr.Error)
		}
	}
	assert.True(t, sawResult)
}

func TestPromptPausesForApproval(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{
		toolRound("list_directory", nil),
		textRound("done"),
	}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	var c collector
	outcome, err := s.Prompt(context.Background(), dir, "", "look around", PromptOptions{Sink: c.sink})
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingApproval, outcome.State)
	require.Len(t, outcome.Pending, 1)
	assert.Equal(t, "call-1", outcome.Pending[0].CallID)
	assert.Len(t, rec.Pending(), 1)

	// The model turn with the call is recorded; the turn is paused, not
	// failed.
	assert.Equal(t, 2, rec.ledger.Len())

	// A second prompt cannot start while calls are pending.
	_, err = s.Prompt(context.Background(), dir, "", "more", PromptOptions{})
	assert.ErrorIs(t, err, ErrApprovalRequired)

	// Approving resumes the turn to completion.
	outcome, err = s.Fulfill(context.Background(), dir, "", []Decision{{CallID: "call-1", Approved: true}}, PromptOptions{Sink: c.sink})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, "done", outcome.Text)
	assert.Empty(t, rec.Pending())
	assert.Equal(t, 4, rec.ledger.Len())
}

func TestFulfillRejectionAnswersModel(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{
		toolRound("read_file", map[string]any{"path": "secret.txt"}),
		textRound("understood"),
	}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	outcome, err := s.Prompt(context.Background(), dir, "", "read the secret", PromptOptions{})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingApproval, outcome.State)

	outcome, err = s.Fulfill(context.Background(), dir, "", []Decision{{CallID: "call-1", Approved: false}}, PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	turns := rec.ledger.Snapshot()
	require.Len(t, turns, 4)
	resp := turns[2].Parts[0].(*types.FunctionResponsePart)
	assert.Equal(t, "rejected by user", resp.Response["error"])
}

func TestFulfillRejectsUnknownCall(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{toolRound("list_directory", nil)}}
	s := newTestStore(t, rt)
	readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "look", PromptOptions{})
	require.NoError(t, err)

	_, err = s.Fulfill(context.Background(), dir, "", []Decision{{CallID: "nope", Approved: true}}, PromptOptions{})
	assert.Error(t, err)
}

func TestFulfillWithoutPendingCalls(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, &fakeRuntime{})
	readyRecord(t, s, dir)

	_, err := s.Fulfill(context.Background(), dir, "", []Decision{{CallID: "x", Approved: true}}, PromptOptions{})
	assert.ErrorIs(t, err, ErrNoPendingCalls)
}

func TestBufferedPromptFailsOnApproval(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{toolRound("list_directory", nil)}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "look", PromptOptions{Buffered: true})
	assert.ErrorIs(t, err, ErrApprovalRequired)

	// Nothing is left behind: no pending calls, no half-recorded turn.
	assert.Empty(t, rec.Pending())
	assert.Equal(t, 0, rec.ledger.Len())
}

func TestBufferedPromptFailsOnEmptyResponse(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{textRound()}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "say nothing", PromptOptions{Buffered: true})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 0, rec.ledger.Len())
}

func TestPromptRollsBackOnStreamError(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{{err: assert.AnError}}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "boom", PromptOptions{})
	var rtErr *RuntimeError
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, 0, rec.ledger.Len())
}

func TestSetModelPreservesHistory(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{textRound("before"), textRound("after")}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "first", PromptOptions{})
	require.NoError(t, err)

	require.NoError(t, s.SetModel(rec, "switched-model"))
	assert.Equal(t, "switched-model", rec.Model())

	_, err = s.Prompt(context.Background(), dir, "", "second", PromptOptions{})
	require.NoError(t, err)

	// The turns from before the switch still reach the conversation.
	rec.mu.Lock()
	conv := rec.conv.(*fakeConversation)
	rec.mu.Unlock()
	last := conv.lastRebind()
	require.Len(t, last, 3)
	assert.Equal(t, "first", last[0].Text())
	assert.Equal(t, "before", last[1].Text())
}

func TestPromptCarriesAttachments(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{textRound("seen")}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	blob := &types.BlobPart{Kind: "blob", MimeType: "image/png", Data: []byte{1, 2, 3}}
	_, err := s.Prompt(context.Background(), dir, "", "look at this", PromptOptions{
		Attachments: []types.Part{blob},
	})
	require.NoError(t, err)

	turns := rec.ledger.Snapshot()
	require.Len(t, turns, 2)
	require.Len(t, turns[0].Parts, 2)
	assert.Same(t, blob, turns[0].Parts[1])
}

func TestEphemeralPromptResetsHistory(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{script: []fakeRound{textRound("old"), textRound("fresh")}}
	s := newTestStore(t, rt)
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "remember this", PromptOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, rec.ledger.Len())

	outcome, err := s.Prompt(context.Background(), dir, "", "start over", PromptOptions{Ephemeral: true})
	require.NoError(t, err)
	assert.Equal(t, "fresh", outcome.Text)

	// The prior exchange is gone; only the ephemeral prompt's turns remain.
	turns := rec.ledger.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "start over", turns[0].Text())
}

func TestPromptRejectsBlankText(t *testing.T) {
	rt := &fakeRuntime{script: []fakeRound{textRound("never sent")}}
	s := newTestStore(t, rt)
	dir := t.TempDir()
	rec := readyRecord(t, s, dir)

	_, err := s.Prompt(context.Background(), dir, "", "  \n\t", PromptOptions{Buffered: true})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, rec.ledger.Len())
}
