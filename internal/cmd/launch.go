// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aibor/kernrun/internal/pipe"
	"github.com/aibor/kernrun/internal/qemu"
	"golang.org/x/term"
)

const serialDrainTimeout = 2 * time.Second

func launchKernel(
	ctx context.Context,
	env *environment,
	flags *launchFlags,
	kernel string,
	debugEnabled bool,
) error {
	interactive := flags.serialStdio || debugEnabled

	if interactive {
		return withTerminalRestored(env.Stdin, func() error {
			return runKernel(ctx, env, flags, kernel, debugEnabled)
		})
	}

	return runKernel(ctx, env, flags, kernel, debugEnabled)
}

func runKernel(
	ctx context.Context,
	env *environment,
	flags *launchFlags,
	kernel string,
	debugEnabled bool,
) error {
	interactive := flags.serialStdio || debugEnabled

	session, err := env.launcher(flags).Launch(ctx, kernel, debugEnabled)
	if err != nil {
		return err //nolint:wrapcheck
	}

	slog.Debug("Emulator launched", slog.String("session", session.String()))

	if debugEnabled {
		fmt.Fprintf(env.Stderr, "Waiting for debugger on port %d\n", session.DebugPort())
	}

	if interactive {
		return session.Wait() //nolint:wrapcheck
	}

	return copySerial(ctx, session, env.Stdout)
}

// copySerial copies the output of the bridged serial channel to the given
// writer until the emulator terminates.
func copySerial(ctx context.Context, session *qemu.Session, output io.Writer) error {
	path, err := session.SerialPath(ctx)
	if err != nil {
		if errors.Is(err, qemu.ErrSerialNotAnnounced) {
			return session.Wait() //nolint:wrapcheck
		}

		_ = session.Stop(context.Background())

		return fmt.Errorf("serial: %w", err)
	}

	serial, err := qemu.OpenSerial(path)
	if err != nil {
		_ = session.Stop(context.Background())
		return err //nolint:wrapcheck
	}

	pipes := &pipe.Pipes{}
	pipes.Run(&pipe.Pipe{
		Name:        "serial",
		InputReader: serial,
		InputCloser: serial,
		Output:      output,
		CopyFunc:    pipe.StripCR,
	})

	err = session.Wait()

	pipeErr := pipes.Wait(serialDrainTimeout)
	_ = serial.Close()

	if err != nil {
		return err //nolint:wrapcheck
	}

	return pipeErr //nolint:wrapcheck
}

// withTerminalRestored runs fn and restores the state the terminal had before,
// if the input is one. Emulators with stdio bridged serial channels put the
// terminal into raw mode and can not restore it if they are killed.
func withTerminalRestored(input io.Reader, fn func() error) error {
	restore := saveTerminalState(input)
	defer restore()

	return fn()
}

// saveTerminalState returns a function that restores the current state of the
// terminal, if the input is one.
func saveTerminalState(input io.Reader) func() {
	file, ok := input.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return func() {}
	}

	state, err := term.GetState(int(file.Fd()))
	if err != nil {
		slog.Debug("Failed to get terminal state", slog.Any("error", err))
		return func() {}
	}

	return func() {
		err := term.Restore(int(file.Fd()), state)
		if err != nil {
			slog.Warn("Failed to restore terminal", slog.Any("error", err))
		}
	}
}
