package inbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Controller {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCloseTabs(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Use("0xme"))

	assert.True(t, c.OpenTab("0xpeer", 100))
	assert.False(t, c.OpenTab("0xpeer", 200)) // already open
	assert.True(t, c.IsOpen("0xpeer"))
	assert.EqualValues(t, 200, c.Cursor("0xpeer"))

	assert.True(t, c.SetFocus("0xpeer"))
	c.CloseTab("0xpeer")
	assert.False(t, c.IsOpen("0xpeer"))
	assert.True(t, c.IsClosed("0xpeer"))
	assert.Equal(t, "", c.Focus()) // fell back to general

	// focusing an unopened peer is refused
	assert.False(t, c.SetFocus("0xpeer"))
}

func TestClosedTabStickiness(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Use("0xme"))

	c.OpenTab("0xpeer", 100)
	c.CloseTab("0xpeer")

	// inbox sync must not resurrect a deliberately closed thread
	assert.False(t, c.SyncOpen("0xpeer"))
	assert.False(t, c.IsOpen("0xpeer"))

	// a new live message from the peer reopens it
	assert.True(t, c.ReopenOnMessage("0xpeer"))
	assert.True(t, c.IsOpen("0xpeer"))
	assert.False(t, c.IsClosed("0xpeer"))
}

func TestSyncOpenSkipsSelf(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Use("0xme"))

	assert.False(t, c.SyncOpen("0xme"))
	assert.False(t, c.SyncOpen(""))
	assert.True(t, c.SyncOpen("0xother"))
}

func TestCursorMonotonic(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Use("0xme"))

	c.AdvanceCursor("0xpeer", 500)
	c.AdvanceCursor("0xpeer", 300) // earlier, ignored
	assert.EqualValues(t, 500, c.Cursor("0xpeer"))

	c.AdvanceCursor("0xpeer", 700)
	assert.EqualValues(t, 700, c.Cursors()["0xpeer"])
}

func TestPersistenceAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Use("0xme"))
	c.OpenTab("0xa", 100)
	c.OpenTab("0xb", 200)
	c.CloseTab("0xb")
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Use("0xme"))

	assert.Equal(t, []string{"0xa"}, c.OpenTabs())
	assert.True(t, c.IsClosed("0xb"))
	assert.EqualValues(t, 100, c.Cursor("0xa"))
}

func TestIdentityIsolation(t *testing.T) {
	c := openTemp(t)

	require.NoError(t, c.Use("0xalice"))
	c.OpenTab("0xpeer", 100)
	c.CloseTab("0xother")

	require.NoError(t, c.Use("0xbob"))
	assert.Empty(t, c.OpenTabs())
	assert.False(t, c.IsClosed("0xother"))
	assert.EqualValues(t, 0, c.Cursor("0xpeer"))
	c.OpenTab("0xbobpeer", 50)

	// switching back restores alice untouched by bob's state
	require.NoError(t, c.Use("0xalice"))
	assert.Equal(t, []string{"0xpeer"}, c.OpenTabs())
	assert.True(t, c.IsClosed("0xother"))
	assert.False(t, c.IsOpen("0xbobpeer"))
}
