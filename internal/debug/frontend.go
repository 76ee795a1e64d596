// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strconv"

	"github.com/aibor/kernrun/internal/sys"
)

// DebuggerCandidates are the debugger executables tried in order.
//
// A plain "gdb" is not among them. Distribution builds usually support the
// host architecture only and fail to connect without a useful exit code.
var DebuggerCandidates = []string{
	"gdb-multiarch",
	"aarch64-none-elf-gdb",
	"aarch64-linux-gnu-gdb",
}

// Frontend runs an interactive cross-architecture debugger connected to the
// debug stub.
type Frontend struct {
	// Candidates are the debugger executables tried in order. Defaults to
	// [DebuggerCandidates].
	Candidates []string

	// Arch is the architecture the kernel executable must be built for.
	Arch sys.Arch

	// GDBArchitecture is set in the debugger before connecting.
	GDBArchitecture string

	// LookPath finds executables. Defaults to [exec.LookPath].
	LookPath func(file string) (string, error)

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewFrontend returns a new [Frontend] for targets of the given architecture.
func NewFrontend(arch sys.Arch) *Frontend {
	return &Frontend{
		Candidates:      DebuggerCandidates,
		Arch:            arch,
		GDBArchitecture: arch.GDBArchitecture(),
		LookPath:        exec.LookPath,
	}
}

// Executable returns the path of the first debugger found.
func (f *Frontend) Executable() (string, error) {
	lookPath := f.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, candidate := range f.Candidates {
		path, err := lookPath(candidate)
		if err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: tried %v", ErrDebuggerNotFound, f.Candidates)
}

// Arguments returns the debugger arguments for the given kernel executable
// and stub address.
func (f *Frontend) Arguments(kernelExecutablePath, host string, port int) []string {
	args := []string{"-q", "-tui"}

	if f.GDBArchitecture != "" {
		args = append(args, "-ex", "set architecture "+f.GDBArchitecture)
	}

	return append(args,
		"-ex", "target remote "+net.JoinHostPort(host, strconv.Itoa(port)),
		"-ex", "layout split",
		kernelExecutablePath,
	)
}

// Run runs the debugger until it exits. The debug port is locked while it
// runs, so no [Session] can attach concurrently.
//
// The debugger only starts if the kernel executable carries symbols for the
// architecture and the debug stub accepts connections. Otherwise an
// [AttachError] is returned.
func (f *Frontend) Run(ctx context.Context, kernelExecutablePath, host string, port int) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	path, err := f.Executable()
	if err != nil {
		return err
	}

	_, err = LoadSymbols(kernelExecutablePath, f.arch())
	if err != nil {
		return &AttachError{Address: address, Err: err}
	}

	lock, err := AcquirePortLock(host, port)
	if err != nil {
		return &AttachError{Address: address, Err: err}
	}

	defer func() {
		err := lock.Release()
		if err != nil {
			slog.Warn("Failed to release debug port lock", slog.Any("error", err))
		}
	}()

	err = ProbeStub(ctx, address)
	if err != nil {
		return &AttachError{Address: address, Err: err}
	}

	cmd := exec.CommandContext(ctx, path, f.Arguments(kernelExecutablePath, host, port)...)
	cmd.Stdin = f.Stdin
	cmd.Stdout = f.Stdout
	cmd.Stderr = f.Stderr

	slog.Debug("Debugger command", slog.String("command", cmd.String()))

	err = cmd.Run()
	if err != nil {
		return fmt.Errorf("debugger: %w", err)
	}

	return nil
}

func (f *Frontend) arch() sys.Arch {
	if f.Arch == "" {
		return sys.ARM64
	}

	return f.Arch
}
