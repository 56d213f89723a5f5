// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package system

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ErrAlreadyRunning is returned by acquireSessionLock when another
// process already holds the kernel trace session's single-instance
// lock (spec.md §9: "a single-instance lock on session start remains
// necessary").
var ErrAlreadyRunning = fmt.Errorf("system: another process already holds the trace session lock")

// sessionLock is a Unix-domain-socket single-instance lock: only one
// process can bind the socket at a time, and a stale socket left behind
// by a crashed process is detected by a failed dial and removed,
// grounded on IntuitionAmiga-IntuitionEngine/runtime_ipc.go's
// newIPCServerAt.
type sessionLock struct {
	listener net.Listener
	path     string
}

func defaultLockPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "ketrace.lock.sock")
	}
	return filepath.Join(os.TempDir(), "ketrace.lock.sock")
}

// acquireSessionLock binds the single-instance socket, cleaning up a
// stale socket from a crashed prior process, or returns
// ErrAlreadyRunning if a live process holds it.
func acquireSessionLock(path string) (*sessionLock, error) {
	if path == "" {
		path = defaultLockPath()
	}
	ln, err := net.Listen("unix", path)
	if err == nil {
		return &sessionLock{listener: ln, path: path}, nil
	}

	conn, dialErr := net.DialTimeout("unix", path, 2*time.Second)
	if dialErr == nil {
		conn.Close()
		return nil, ErrAlreadyRunning
	}
	os.Remove(path)
	ln, err = net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("system: bind session lock: %w", err)
	}
	return &sessionLock{listener: ln, path: path}, nil
}

// release closes the lock socket and removes it from disk.
func (l *sessionLock) release() error {
	err := l.listener.Close()
	os.Remove(l.path)
	return err
}
