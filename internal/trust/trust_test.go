package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store := storage.New(t.TempDir())
	svc, err := NewService(store)
	require.NoError(t, err)
	return svc, store
}

func TestTrustAndRevoke(t *testing.T) {
	svc, _ := newTestService(t)

	assert.False(t, svc.IsTrusted("/home/dev/project"))
	require.NoError(t, svc.Trust("/home/dev/project"))
	assert.True(t, svc.IsTrusted("/home/dev/project"))

	require.NoError(t, svc.Revoke("/home/dev/project"))
	assert.False(t, svc.IsTrusted("/home/dev/project"))
}

func TestTrustCoversDescendants(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Trust("/home/dev"))

	assert.True(t, svc.IsTrusted("/home/dev"))
	assert.True(t, svc.IsTrusted("/home/dev/project"))
	assert.True(t, svc.IsTrusted("/home/dev/project/deeply/nested"))
	assert.False(t, svc.IsTrusted("/home/other"))
	assert.False(t, svc.IsTrusted("/home"))
}

func TestTrustSurvivesRestart(t *testing.T) {
	svc, store := newTestService(t)
	require.NoError(t, svc.Trust("/srv/app"))

	reloaded, err := NewService(store)
	require.NoError(t, err)
	assert.True(t, reloaded.IsTrusted("/srv/app"))
}

func TestRevokeUnknownPathIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.Revoke("/never/trusted"))
}

func TestListIsSorted(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Trust("/zeta"))
	require.NoError(t, svc.Trust("/alpha"))
	require.NoError(t, svc.Trust("/mid"))

	entries := svc.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "/alpha", entries[0].Path)
	assert.Equal(t, "/mid", entries[1].Path)
	assert.Equal(t, "/zeta", entries[2].Path)
}
