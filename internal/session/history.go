package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentd-ai/agentd/pkg/types"
)

// Ledger is the canonical turn history of a session. The orchestrator is
// its only writer; the model runtime sees snapshots via Conversation.Rebind
// and never mutates it.
type Ledger struct {
	mu    sync.Mutex
	turns []*types.Turn
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a turn with the given role and parts, assigning it an id and
// timestamp, and returns it.
func (l *Ledger) Append(role types.Role, parts []types.Part) *types.Turn {
	turn := &types.Turn{
		ID:        ulid.Make().String(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
	l.mu.Lock()
	l.turns = append(l.turns, turn)
	l.mu.Unlock()
	return turn
}

// RollbackLast removes and returns the most recent turn, or nil when the
// ledger is empty.
func (l *Ledger) RollbackLast() *types.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return nil
	}
	last := l.turns[len(l.turns)-1]
	l.turns = l.turns[:len(l.turns)-1]
	return last
}

// RollbackLastUser removes the most recent turn only if it is a user turn.
// Used to undo a prompt whose turn never completed.
func (l *Ledger) RollbackLastUser() *types.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return nil
	}
	last := l.turns[len(l.turns)-1]
	if last.Role != types.RoleUser {
		return nil
	}
	l.turns = l.turns[:len(l.turns)-1]
	return last
}

// Reset drops all turns.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()
}

// Snapshot returns a copy of the turn slice. The turns themselves are
// shared; callers must not mutate them.
func (l *Ledger) Snapshot() []*types.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*types.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Last returns the most recent turn without removing it, or nil.
func (l *Ledger) Last() *types.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return nil
	}
	return l.turns[len(l.turns)-1]
}
