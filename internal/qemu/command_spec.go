// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"strconv"
)

// DefaultDebugPort is the TCP port the emulator's debug stub listens on.
const DefaultDebugPort = 1234

const (
	serialBackendNull  = "null"
	serialBackendPTY   = "pty"
	serialBackendStdio = "mon:stdio"
)

// CommandSpec defines the parameters for an emulator invocation.
type CommandSpec struct {
	// Board is the hardware profile.
	Board BoardProfile

	// Executable is the resolved path of the qemu-system binary. If empty,
	// the board's executable is used.
	Executable string

	// Kernel is the path of the raw kernel binary to boot.
	Kernel string

	// Debug enables the debug stub and halts the CPU at the reset vector
	// until a debugger continues it.
	Debug bool

	// DebugPort is the port the debug stub listens on.
	DebugPort int

	// Interactive bridges the serial channel to the controlling terminal
	// instead of a pseudo-terminal. Debug sessions are always interactive.
	Interactive bool

	// ExtraArgs are extra arguments that are passed to the QEMU command.
	// They must not interfere with the essential arguments set by the command
	// itself or an error will be returned.
	ExtraArgs []Argument
}

// executable returns the path of the emulator executable.
func (s *CommandSpec) executable() string {
	if s.Executable != "" {
		return s.Executable
	}

	return s.Board.Executable
}

// interactive returns true if the bridged serial channel is connected to the
// standard IO of the emulator.
func (s *CommandSpec) interactive() bool {
	return s.Interactive || s.Debug
}

// Validate checks for known incompatibilities.
func (s *CommandSpec) Validate() error {
	err := s.Board.Validate()
	if err != nil {
		return err
	}

	if s.Kernel == "" {
		return &ArgumentError{"no kernel"}
	}

	if s.Debug && (s.DebugPort <= 0 || s.DebugPort > 65535) {
		return &ArgumentError{"invalid debug port: " + strconv.Itoa(s.DebugPort)}
	}

	return checkExtra(s.ExtraArgs)
}

// arguments compiles the argument list for the QEMU command.
//
// The kernel argument is always the last one.
func (s *CommandSpec) arguments() Arguments {
	args := Arguments{
		UniqueArg("machine", s.Board.Machine),
	}

	if !s.Board.Graphics {
		args = append(args, UniqueArg("nographic"))
	}

	for _, channel := range s.Board.SerialChannels {
		backend := serialBackendNull

		if channel == SerialBridged {
			backend = serialBackendPTY
			if s.interactive() {
				backend = serialBackendStdio
			}
		}

		args = append(args, RepeatableArg("serial", backend))
	}

	// Without stdio bridging, the monitor would be multiplexed on stdio by
	// "-nographic". Nobody reads it in that case.
	if !s.interactive() {
		args = append(args, UniqueArg("monitor", "none"))
	}

	if s.Debug {
		args = append(args,
			UniqueArg("gdb", "tcp::"+strconv.Itoa(s.DebugPort)),
			// Halt the CPU at the reset vector.
			UniqueArg("S"),
		)
	}

	if s.Board.SDImage != "" {
		args = append(args, RepeatableArg("drive",
			"file="+s.Board.SDImage, "format=raw", "if=sd"))
	}

	args = append(args, s.ExtraArgs...)

	return append(args, UniqueArg("kernel", s.Kernel))
}

// Arguments returns the validated argument strings of the QEMU command.
func (s *CommandSpec) Arguments() ([]string, error) {
	err := s.Validate()
	if err != nil {
		return nil, err
	}

	return s.arguments().Strings()
}

func serialLabel(idx int) string {
	return "serial" + strconv.Itoa(idx)
}
