// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aibor/kernrun/internal/pipe"
	"github.com/aibor/kernrun/internal/sys"
)

// Launcher starts emulator [Session]s for a [BoardProfile].
type Launcher struct {
	Board    BoardProfile
	Emulator Emulator

	// DebugPort is the port of the debug stub for debug launches.
	DebugPort int

	// Interactive bridges the serial channel to stdio for launches without
	// debugging as well.
	Interactive bool

	// GracePeriod is the time the emulator has to terminate after SIGTERM.
	GracePeriod time.Duration

	// ExtraArgs are passed to the emulator in addition to the board's
	// arguments.
	ExtraArgs []Argument

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewLauncher returns a [Launcher] for the given board that runs real
// processes connected to the standard IO of the harness.
func NewLauncher(board BoardProfile) *Launcher {
	return &Launcher{
		Board:       board,
		Emulator:    ExecEmulator{},
		DebugPort:   DefaultDebugPort,
		GracePeriod: DefaultGracePeriod,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

// Launch boots the given raw kernel binary in the emulator.
//
// All checks are done before the emulator process is spawned: the binary must
// be present ([ErrImageMissing]), the emulator executable must be found
// ([ErrEmulatorNotFound]) and, if debugging is enabled, the debug port must be
// free ([ErrPortInUse]).
//
// With debugging enabled, the CPU is halted at the reset vector until a
// debugger continues it, and the serial channel is bridged to stdio.
//
// The emulator is terminated once the context is done.
func (l *Launcher) Launch(
	ctx context.Context,
	kernel string,
	debug bool,
) (*Session, error) {
	err := sys.ValidateRegularFile(kernel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageMissing, kernel, err)
	}

	executable, err := l.Emulator.LookPath(l.Board.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w",
			ErrEmulatorNotFound, l.Board.Executable, err)
	}

	spec := CommandSpec{
		Board:       l.Board,
		Executable:  executable,
		Kernel:      kernel,
		Debug:       debug,
		DebugPort:   l.DebugPort,
		Interactive: l.Interactive,
		ExtraArgs:   l.ExtraArgs,
	}

	args, err := spec.Arguments()
	if err != nil {
		return nil, err
	}

	if debug {
		err := CheckPortFree(spec.DebugPort)
		if err != nil {
			return nil, err
		}
	}

	return l.start(ctx, spec, args)
}

func (l *Launcher) start(
	ctx context.Context,
	spec CommandSpec,
	args []string,
) (*Session, error) {
	stderrReader, stderrWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	processSpec := ProcessSpec{
		Path:        spec.executable(),
		Args:        args,
		Stdout:      l.Stdout,
		Stderr:      stderrWriter,
		GracePeriod: l.GracePeriod,
	}

	if spec.interactive() {
		processSpec.Stdin = l.Stdin
		processSpec.Foreground = true
	}

	ctx, cancel := context.WithCancel(ctx)
	session := newSession(spec, cancel)

	session.process, err = l.Emulator.Start(ctx, processSpec)

	// The emulator has its own copy now.
	_ = stderrWriter.Close()

	if err != nil {
		cancel()
		_ = stderrReader.Close()

		return nil, &CommandError{Err: err, ExitCode: -1}
	}

	slog.Debug("Emulator started",
		slog.Int("pid", session.Pid()),
		slog.Bool("debug", spec.Debug),
		slog.String("kernel", spec.Kernel))

	pipes := &pipe.Pipes{}
	pipes.Run(&pipe.Pipe{
		Name:        "qemu-stderr",
		InputReader: stderrReader,
		InputCloser: stderrReader,
		Output:      l.stderr(),
		CopyFunc:    pipe.LineParser(session.parseStderrLine),
		MayBeSilent: true,
	})

	go session.watch(pipes, stderrReader)

	return session, nil
}

func (l *Launcher) stderr() io.Writer {
	if l.Stderr == nil {
		return io.Discard
	}

	return l.Stderr
}
