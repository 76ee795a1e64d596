// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// terminalFd returns the file descriptor of the input, if it is a terminal.
func terminalFd(input io.Reader) (int, bool) {
	file, ok := input.(*os.File)
	if !ok || file == nil {
		return -1, false
	}

	fd := int(file.Fd())

	return fd, term.IsTerminal(fd)
}

// reclaimTerminal makes the own process group the foreground group of the
// terminal again.
//
// The harness is in a background group at that point, so SIGTTOU is ignored
// while the group is set.
func reclaimTerminal(fd int) error {
	signal.Ignore(unix.SIGTTOU)
	defer signal.Reset(unix.SIGTTOU)

	err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, unix.Getpgrp())
	if err != nil {
		return fmt.Errorf("set foreground process group: %w", err)
	}

	return nil
}
