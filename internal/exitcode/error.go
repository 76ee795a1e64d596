// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package exitcode

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// signalOffset is added to the signal number of processes terminated by a
// signal, like shells do.
const signalOffset = 128

// Error is an exit code that is considered an error.
type Error int

func (e Error) Error() string {
	return fmt.Sprintf("non-zero exit code: %d", e)
}

func (Error) Is(other error) bool {
	_, ok := other.(Error)
	return ok
}

// Code returns the exit code as basic int type.
func (e Error) Code() int {
	return int(e)
}

// FromProcessState returns the exit code of the terminated process.
//
// Processes terminated by a signal get the signal number plus 128.
func FromProcessState(state *os.ProcessState) int {
	if state == nil {
		return -1
	}

	status, ok := state.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		return signalOffset + int(status.Signal())
	}

	return state.ExitCode()
}

// From returns an exit code based on the given error and if the error carried
// an exit code.
//
// If the error is nil, the exit code is 0. If the error is an [Error] the exit
// code is the return value of [Error.Code]. If it is an [exec.ExitError], the
// exit code of the process is returned. Otherwise the exit code is -1.
func From(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var exitErr Error
	if errors.As(err, &exitErr) {
		return exitErr.Code(), true
	}

	var execErr *exec.ExitError
	if errors.As(err, &execErr) {
		return FromProcessState(execErr.ProcessState), true
	}

	return -1, false
}
