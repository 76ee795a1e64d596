// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultLockDir is the default of [LockDir]. It is fixed, as a debug port is
// shared by all processes on the host, whatever their temporary directory is.
const DefaultLockDir = "/tmp"

// LockDir is the directory port lock files are created in.
var LockDir = DefaultLockDir

// PortLock is an exclusive lock on a debug port. It is held by any debugger
// connected to the port, across processes.
type PortLock struct {
	path string
	file *os.File
}

// canonicalHost maps the different names of the local host to one, so they
// share a lock.
func canonicalHost(host string) string {
	switch host = strings.ToLower(host); host {
	case "", "localhost", "127.0.0.1", "::1", "[::1]":
		return "localhost"
	default:
		return strings.NewReplacer(":", "_", "/", "_").Replace(host)
	}
}

// LockPath returns the path of the lock file for the given host and port.
func LockPath(host string, port int) string {
	name := "kernrun-debug-" + canonicalHost(host) + "-" + strconv.Itoa(port) + ".lock"
	return filepath.Join(LockDir, name)
}

// AcquirePortLock takes the exclusive lock for the given host and port. It
// does not wait. If the lock is held, [ErrAlreadyAttached] is returned.
func AcquirePortLock(host string, port int) (*PortLock, error) {
	path := LockPath(host, port)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if errors.Is(err, fs.ErrPermission) {
		// Created by another user. Locking works on read-only files.
		file, err = os.Open(path)
	}

	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s:%d", ErrAlreadyAttached, host, port)
		}

		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Informational only, the lock is what counts.
	_ = file.Truncate(0)
	_, _ = file.WriteString(strconv.Itoa(os.Getpid()) + "\n")

	return &PortLock{path: path, file: file}, nil
}

// Release releases the lock. The lock file is left in place, so concurrent
// lockers always lock the same file.
func (l *PortLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}

	return closeErr //nolint:wrapcheck
}
