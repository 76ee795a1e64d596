// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"os/exec"

	"github.com/aibor/kernrun/internal/build"
	"github.com/aibor/kernrun/internal/debug"
	"github.com/aibor/kernrun/internal/harness"
	"github.com/aibor/kernrun/internal/qemu"
)

// environment holds the collaborators of the commands, so tests can replace
// the external tools.
type environment struct {
	IO

	board     qemu.BoardProfile
	toolchain build.Toolchain
	emulator  qemu.Emulator
	lookPath  func(file string) (string, error)
}

func newEnvironment(cfg IO) *environment {
	return &environment{
		IO:        cfg,
		board:     qemu.RaspberryPi3(),
		toolchain: build.NewCommandToolchain(),
		emulator:  qemu.ExecEmulator{},
		lookPath:  exec.LookPath,
	}
}

func (e *environment) builder() *build.Builder {
	return build.NewBuilder(e.toolchain)
}

func (e *environment) launcher(flags *launchFlags) *qemu.Launcher {
	board := e.board
	if flags.executable != "" {
		board.Executable = flags.executable
	}

	board.SDImage = flags.sdImage

	launcher := qemu.NewLauncher(board)
	launcher.Emulator = e.emulator
	launcher.DebugPort = flags.port
	launcher.Interactive = flags.serialStdio
	launcher.GracePeriod = flags.gracePeriod
	launcher.ExtraArgs = flags.extraArgs
	launcher.Stdin = e.Stdin
	launcher.Stdout = e.Stdout
	launcher.Stderr = e.Stderr

	return launcher
}

func (e *environment) bridge() *debug.Bridge {
	return debug.NewBridge(e.board.Arch)
}

func (e *environment) frontend() *debug.Frontend {
	frontend := debug.NewFrontend(e.board.Arch)
	frontend.LookPath = e.lookPath
	frontend.Stdin = e.Stdin
	frontend.Stdout = e.Stdout
	frontend.Stderr = e.Stderr

	return frontend
}

func (e *environment) harness(flags *launchFlags) *harness.Harness {
	h := harness.New(e.board)
	h.Builder = e.builder()
	h.Launcher = e.launcher(flags)
	h.Bridge = e.bridge()
	h.Report = e.Stderr

	return h
}
