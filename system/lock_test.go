package system

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireSessionLockRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ketrace-test.sock")

	first, err := acquireSessionLock(path)
	require.NoError(t, err)
	defer first.release()

	_, err = acquireSessionLock(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireSessionLockReclaimsStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ketrace-stale.sock")

	first, err := acquireSessionLock(path)
	require.NoError(t, err)
	// Simulate a crash: remove the listener without unlinking the path via
	// release, leaving a stale socket file net.Listen would otherwise
	// refuse to rebind. A UnixListener unlinks its file on Close by
	// default, so that is switched off first.
	first.listener.(*net.UnixListener).SetUnlinkOnClose(false)
	first.listener.Close()

	second, err := acquireSessionLock(path)
	require.NoError(t, err)
	defer second.release()
}
