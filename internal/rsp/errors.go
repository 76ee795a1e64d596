// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"errors"
	"strconv"
)

var (
	// ErrChecksum is returned if a received packet has an invalid checksum.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrNotAcknowledged is returned if the stub rejected a packet
	// repeatedly.
	ErrNotAcknowledged = errors.New("packet not acknowledged")

	// ErrUnsupported is returned if the stub does not support a command.
	ErrUnsupported = errors.New("command not supported by stub")

	// ErrInvalidReply is returned if a reply can not be parsed.
	ErrInvalidReply = errors.New("invalid reply")
)

// StubError is an error reply of the stub.
type StubError struct {
	Command string
	Code    int
}

// Error implements the [error] interface.
func (e *StubError) Error() string {
	return "stub error " + strconv.Itoa(e.Code) + " for " + e.Command
}

// Is implements the [errors.Is] interface.
func (*StubError) Is(other error) bool {
	_, ok := other.(*StubError)
	return ok
}
