// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/aibor/kernrun/internal/qemu"
	"github.com/pkg/term/termios"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const foregroundHelperEnv = "KERNRUN_TEST_FOREGROUND_HELPER"

// TestForegroundHelper is run by [TestExecEmulator_Start_Foreground] in a new
// session with a pseudo-terminal as controlling terminal.
func TestForegroundHelper(t *testing.T) {
	if os.Getenv(foregroundHelperEnv) != "1" {
		t.Skip("only run as helper process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Like the emulator with a stdio bridged serial channel, the child
	// switches the terminal to raw mode and back.
	process, err := qemu.ExecEmulator{}.Start(ctx, qemu.ProcessSpec{
		Path:        "/bin/sh",
		Args:        []string{"-c", "stty raw -echo && stty sane && echo TERMINAL_CONFIGURED"},
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		GracePeriod: 100 * time.Millisecond,
		Foreground:  true,
	})
	require.NoError(t, err)
	require.NoError(t, process.Wait())

	pgrp, err := unix.IoctlGetInt(0, unix.TIOCGPGRP)
	require.NoError(t, err)
	assert.Equal(t, unix.Getpgrp(), pgrp, "terminal must be handed back")
}

func TestExecEmulator_Start_Foreground(t *testing.T) {
	_, err := exec.LookPath("stty")
	if err != nil {
		t.Skip("stty not available")
	}

	ptm, pts, err := termios.Pty()
	if err != nil {
		t.Skipf("no pseudo-terminal: %v", err)
	}

	helper := exec.Command(os.Args[0], "-test.run=^TestForegroundHelper$", "-test.v")
	helper.Env = append(os.Environ(), foregroundHelperEnv+"=1")
	helper.Stdin = pts
	helper.Stdout = pts
	helper.Stderr = pts
	helper.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}

	var output bytes.Buffer

	copied := make(chan struct{})

	go func() {
		_, _ = io.Copy(&output, ptm)
		close(copied)
	}()

	require.NoError(t, helper.Start())
	_ = pts.Close()

	exited := make(chan error, 1)
	go func() { exited <- helper.Wait() }()

	select {
	case err = <-exited:
	case <-time.After(20 * time.Second):
		_ = helper.Process.Kill()
		err = <-exited
		t.Error("helper did not finish, emulator process probably stopped")
	}

	_ = ptm.Close()
	<-copied

	require.NoError(t, err, output.String())
	assert.Contains(t, output.String(), "TERMINAL_CONFIGURED")
}

func TestLauncher_Launch_Foreground(t *testing.T) {
	tests := []struct {
		name        string
		debug       bool
		interactive bool
		expected    bool
	}{
		{name: "debug", debug: true, expected: true},
		{name: "serial stdio", interactive: true, expected: true},
		{name: "serial pty", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emulator := &qemu.FakeEmulator{}

			launcher := newFakeLauncher(emulator)
			launcher.Stdin = os.Stdin
			launcher.DebugPort = freePort(t)
			launcher.Interactive = tt.interactive

			session, err := launcher.Launch(context.Background(), writeKernel(t), tt.debug)
			require.NoError(t, err)

			emulator.Processes()[0].Exit(0)
			require.NoError(t, session.Wait())

			spec := emulator.Specs()[0]
			assert.Equal(t, tt.expected, spec.Foreground)

			if tt.expected {
				assert.Equal(t, os.Stdin, spec.Stdin)
			} else {
				assert.Nil(t, spec.Stdin)
			}
		})
	}
}
