// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import "fmt"

// State is the execution state of a debugged target.
//
//	Disconnected -> Halted        attach
//	Halted       -> Running       continue
//	Running      -> Halted        breakpoint, interrupt
//	Halted       -> Halted        step
//	Halted       -> Disconnected  detach
//	any          -> Terminated    target exited
//
// Terminated is final.
type State int

// States of a [Session].
const (
	StateDisconnected State = iota
	StateHalted
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHalted:
		return "halted"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func invalidState(operation string, state State) error {
	return fmt.Errorf("%w: %s not permitted while %s",
		ErrInvalidState, operation, state)
}
