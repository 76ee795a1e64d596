// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import "errors"

var (
	// ErrImageMissing is returned if the kernel binary to boot does not
	// exist.
	ErrImageMissing = errors.New("kernel image missing")

	// ErrEmulatorNotFound is returned if the emulator executable can not be
	// found.
	ErrEmulatorNotFound = errors.New("emulator not found")

	// ErrPortInUse is returned if the debug port is already bound by another
	// process.
	ErrPortInUse = errors.New("debug port in use")

	// ErrArgumentCollision is returned if two [Argument]s are considered equal.
	ErrArgumentCollision = errors.New("colliding args")

	// ErrSerialNotAnnounced is returned if the emulator terminated without
	// announcing the pseudo-terminal of the bridged serial channel.
	ErrSerialNotAnnounced = errors.New("serial pseudo-terminal not announced")
)

// ArgumentError indicates an issue with an input argument.
type ArgumentError struct {
	msg string
}

// Error implements the [error] interface.
func (e *ArgumentError) Error() string {
	return "argument error: " + e.msg
}

// Is implements the [errors.Is] interface.
func (*ArgumentError) Is(other error) bool {
	_, ok := other.(*ArgumentError)
	return ok
}

// CommandError wraps any error occurred during emulator execution.
type CommandError struct {
	Err      error
	ExitCode int
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	return "qemu: " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CommandError) Unwrap() error {
	return e.Err
}
