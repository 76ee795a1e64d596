// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"net"
	"strconv"
)

// CheckPortFree returns an error wrapping [ErrPortInUse] if the given TCP port
// can not be bound on all interfaces, which is what the debug stub does.
//
// A port held by another process is never reclaimed.
func CheckPortFree(port int) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: %d: %w", ErrPortInUse, port, err)
	}

	return listener.Close() //nolint:wrapcheck
}
