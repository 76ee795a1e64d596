// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import "errors"

var (
	// ErrNoSymbols is returned if the kernel file carries no symbols, like a
	// raw binary.
	ErrNoSymbols = errors.New("no symbols")

	// ErrArchMismatch is returned if the kernel executable or the target is
	// not of the expected architecture.
	ErrArchMismatch = errors.New("architecture mismatch")

	// ErrAlreadyAttached is returned if another debugger is connected to the
	// debug port.
	ErrAlreadyAttached = errors.New("debug port already attached")

	// ErrInvalidState is returned if an operation is not permitted in the
	// current state of the session.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnknownSymbol is returned if a symbol can not be resolved.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrStubUnreachable is returned if the debug stub does not accept
	// connections.
	ErrStubUnreachable = errors.New("debug stub not reachable")

	// ErrDebuggerNotFound is returned if no debugger front end executable is
	// found.
	ErrDebuggerNotFound = errors.New("debugger not found")
)

// AttachError is returned if a debugger can not attach to a debug port. The
// emulator is not affected.
type AttachError struct {
	Address string
	Err     error
}

// Error implements the [error] interface.
func (e *AttachError) Error() string {
	return "attach " + e.Address + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*AttachError) Is(other error) bool {
	_, ok := other.(*AttachError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *AttachError) Unwrap() error {
	return e.Err
}
