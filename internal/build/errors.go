// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"errors"
	"strings"
)

var (
	// ErrToolchainMissing is returned if the compiler or the converter can
	// not be found.
	ErrToolchainMissing = errors.New("toolchain missing")

	// ErrImageTooLarge is returned if the raw binary does not fit into the
	// memory region the board loads kernels to.
	ErrImageTooLarge = errors.New("image too large")

	// ErrInvalidTarget is returned for incomplete build targets.
	ErrInvalidTarget = errors.New("invalid build target")

	// ErrInvalidProfile is returned for unknown build profiles.
	ErrInvalidProfile = errors.New("invalid build profile")
)

// ToolError is returned if a tool of the toolchain is not available.
type ToolError struct {
	Tool string
	Hint string
	Err  error
}

// Error implements the [error] interface.
func (e *ToolError) Error() string {
	return e.Tool + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*ToolError) Is(other error) bool {
	_, ok := other.(*ToolError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// BuildError is returned if a tool of the toolchain failed. It carries the
// tool's diagnostic output as is.
type BuildError struct {
	Step   string
	Output []byte
	Err    error
}

// Error implements the [error] interface.
func (e *BuildError) Error() string {
	msg := e.Step + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*BuildError) Is(other error) bool {
	_, ok := other.(*BuildError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Diagnostics returns the tool output without surrounding whitespace.
func (e *BuildError) Diagnostics() string {
	return strings.TrimSpace(string(e.Output))
}
