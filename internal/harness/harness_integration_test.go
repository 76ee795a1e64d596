// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build integration

package harness_test

import (
	"context"
	"debug/elf"
	"flag"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/aibor/kernrun/internal/debug"
	"github.com/aibor/kernrun/internal/harness"
	"github.com/aibor/kernrun/internal/qemu"
	"github.com/aibor/kernrun/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var qemuBin = flag.String("qemu.bin", "qemu-system-aarch64", "emulator executable")

// loopInstruction is "b ." which branches to itself.
var loopInstruction = []byte{0x00, 0x00, 0x00, 0x14}

func TestIntegration_LaunchAndDebug(t *testing.T) {
	_, err := exec.LookPath(*qemuBin)
	if err != nil {
		t.Skipf("emulator not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	lockDir := debug.LockDir
	debug.LockDir = t.TempDir()

	t.Cleanup(func() { debug.LockDir = lockDir })

	binary := filepath.Join(t.TempDir(), "kernel.bin")
	require.NoError(t, os.WriteFile(binary, loopInstruction, 0o600))

	executable := sys.WriteTestELF(t, "kernel.elf", sys.TestELF{
		Machine: elf.EM_AARCH64,
		Entry:   qemu.RaspberryPi3LoadAddress,
		Text:    loopInstruction,
		Symbols: []sys.TestSymbol{
			{Name: "_start", Value: qemu.RaspberryPi3LoadAddress, Size: 4},
		},
	})

	board := qemu.RaspberryPi3()
	board.Executable = *qemuBin

	h := harness.New(board)
	h.Launcher.DebugPort = freePort(t)
	h.Launcher.Stdin = nil
	h.Launcher.Stdout = io.Discard
	h.Report = io.Discard

	emulator, err := h.Launch(ctx, binary, true)
	require.NoError(t, err)

	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()

		assert.NoError(t, emulator.Stop(stopCtx))
	})

	var session *debug.Session

	// The debug stub comes up shortly after the process started.
	require.Eventually(t, func() bool {
		session, err = h.Bind(emulator).Attach(ctx, executable,
			"localhost", emulator.DebugPort())
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	t.Cleanup(func() { _ = session.Close() })

	assert.Equal(t, debug.StateHalted, session.State())
	assert.Equal(t, qemu.StatusHalted, emulator.Status())

	_, err = session.SetBreakpoint(ctx, "_start")
	require.NoError(t, err)

	require.NoError(t, session.Continue(ctx))

	stop, err := session.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, stop.Halted())

	pc, err := session.PC(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(qemu.RaspberryPi3LoadAddress), pc)

	view, err := session.View(ctx)
	require.NoError(t, err)
	assert.Contains(t, view, "in _start")
	assert.Contains(t, view, "14000000")

	require.NoError(t, session.ClearBreakpoint(ctx, "_start"))
	require.NoError(t, session.Detach(ctx))
	assert.Equal(t, qemu.StatusRunning, emulator.Status())
}
