package identity

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBootstrapMintsSessionWhenAnonymous(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(KeySessionID, "session-old"))

	session, err := Bootstrap(store, now)
	require.NoError(t, err)

	assert.NotEqual(t, "session-old", session.ID)
	assert.True(t, strings.HasPrefix(session.ID, "session-"))
	assert.Equal(t, Anonymous, session.Identity.Status)

	persisted, err := store.Get(KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, persisted)
}

func TestBootstrapReusesSessionWhenIdentified(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(KeySessionID, "session-known"))
	require.NoError(t, RememberEmail(store, "a@b.com"))

	session, err := Bootstrap(store, now)
	require.NoError(t, err)

	assert.Equal(t, "session-known", session.ID)
	assert.Equal(t, Identify("a@b.com"), session.Identity)
	assert.True(t, session.Identity.Known())
}

func TestBootstrapMintsSessionWhenEmailButNoSession(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, RememberEmail(store, "a@b.com"))

	session, err := Bootstrap(store, now)
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, Identified, session.Identity.Status)
}

func TestForgetStartsFreshSession(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, RememberEmail(store, "a@b.com"))
	first, err := Bootstrap(store, now)
	require.NoError(t, err)

	require.NoError(t, Forget(store))
	second, err := Bootstrap(store, now.Add(time.Minute))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, Anonymous, second.Identity.Status)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "chat.db")

	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, RememberEmail(store, "a@b.com"))
	first, err := Bootstrap(store, now)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	second, err := Bootstrap(store, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a@b.com", second.Identity.Email)

	missing, err := store.Get("nothing")
	require.NoError(t, err)
	assert.Empty(t, missing)
}
