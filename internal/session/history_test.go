package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/pkg/types"
)

func TestLedgerAppendAssignsIdentity(t *testing.T) {
	l := NewLedger()

	a := l.Append(types.RoleUser, []types.Part{types.NewTextPart("one")})
	b := l.Append(types.RoleModel, []types.Part{types.NewTextPart("two")})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, 2, l.Len())
}

func TestLedgerRollbackLast(t *testing.T) {
	l := NewLedger()
	assert.Nil(t, l.RollbackLast())

	l.Append(types.RoleUser, []types.Part{types.NewTextPart("keep")})
	l.Append(types.RoleModel, []types.Part{types.NewTextPart("drop")})

	dropped := l.RollbackLast()
	require.NotNil(t, dropped)
	assert.Equal(t, "drop", dropped.Text())
	assert.Equal(t, 1, l.Len())
}

func TestLedgerRollbackLastUserOnlyRemovesUserTurns(t *testing.T) {
	l := NewLedger()

	l.Append(types.RoleUser, []types.Part{types.NewTextPart("prompt")})
	l.Append(types.RoleModel, []types.Part{types.NewTextPart("answer")})

	// The last turn is a model turn: nothing is removed.
	assert.Nil(t, l.RollbackLastUser())
	assert.Equal(t, 2, l.Len())

	l.RollbackLast()
	removed := l.RollbackLastUser()
	require.NotNil(t, removed)
	assert.Equal(t, "prompt", removed.Text())
	assert.Equal(t, 0, l.Len())
}

func TestLedgerSnapshotIsIsolated(t *testing.T) {
	l := NewLedger()
	l.Append(types.RoleUser, []types.Part{types.NewTextPart("a")})

	snap := l.Snapshot()
	l.Append(types.RoleModel, []types.Part{types.NewTextPart("b")})

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, l.Len())
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger()
	l.Append(types.RoleUser, []types.Part{types.NewTextPart("a")})
	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Last())
}
