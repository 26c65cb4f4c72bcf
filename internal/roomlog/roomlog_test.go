package roomlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

func TestOpenSanitisesRoomName(t *testing.T) {
	dir := t.TempDir()

	logger, err := Open(dir, "my room/../weird name!")
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.LogEvent("session started"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Regexp(t, `^[A-Za-z0-9_-]+\.log$`, entries[0].Name())
}

func TestLogMessageFormat(t *testing.T) {
	dir := t.TempDir()

	logger, err := Open(dir, "lobby")
	require.NoError(t, err)

	require.NoError(t, logger.LogMessage(chatproto.ChatMessage("alice#a1b2", "hello")))
	require.NoError(t, logger.LogMessage(chatproto.SystemMessage("alice#a1b2 joined")))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "lobby.log"))
	require.NoError(t, err)

	require.Contains(t, string(data), "alice#a1b2: hello\n")
	require.Contains(t, string(data), "*** alice#a1b2 joined\n")
}

func TestOpenAppendsAcrossSessions(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, "lobby")
	require.NoError(t, err)
	require.NoError(t, first.LogEvent("first line"))
	require.NoError(t, first.Close())

	second, err := Open(dir, "lobby")
	require.NoError(t, err)
	require.NoError(t, second.LogEvent("second line"))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(filepath.Join(dir, "lobby.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "first line")
	require.Contains(t, string(data), "second line")
}
