// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aibor/kernrun/internal/exitcode"
	"github.com/aibor/kernrun/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ptyAnnouncement = "char device redirected to /dev/pts/77 (label serial1)\n"

func writeKernel(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kernel.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x20, 0x03, 0xd5}, 0o644))

	return path
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

func newFakeLauncher(emulator *qemu.FakeEmulator) *qemu.Launcher {
	launcher := qemu.NewLauncher(qemu.RaspberryPi3())
	launcher.Emulator = emulator
	launcher.Stdin = nil
	launcher.Stdout = nil
	launcher.Stderr = &bytes.Buffer{}

	return launcher
}

func stopSession(t *testing.T, session *qemu.Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, session.Stop(ctx))
}

func TestLauncher_Launch_Checks(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = busy.Close() })

	busyPort := busy.Addr().(*net.TCPAddr).Port

	tests := []struct {
		name        string
		kernel      func(t *testing.T) string
		emulator    *qemu.FakeEmulator
		debugPort   int
		expectedErr error
	}{
		{
			name: "image missing",
			kernel: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "kernel.bin")
			},
			emulator:    &qemu.FakeEmulator{},
			expectedErr: qemu.ErrImageMissing,
		},
		{
			name: "image is directory",
			kernel: func(t *testing.T) string {
				return t.TempDir()
			},
			emulator:    &qemu.FakeEmulator{},
			expectedErr: qemu.ErrImageMissing,
		},
		{
			name:        "emulator not found",
			kernel:      writeKernel,
			emulator:    &qemu.FakeEmulator{LookPathErr: assert.AnError},
			expectedErr: qemu.ErrEmulatorNotFound,
		},
		{
			name:        "port in use",
			kernel:      writeKernel,
			emulator:    &qemu.FakeEmulator{},
			debugPort:   busyPort,
			expectedErr: qemu.ErrPortInUse,
		},
		{
			name:        "start fails",
			kernel:      writeKernel,
			emulator:    &qemu.FakeEmulator{StartErr: assert.AnError},
			expectedErr: &qemu.CommandError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := newFakeLauncher(tt.emulator)

			debug := tt.debugPort != 0
			if debug {
				launcher.DebugPort = tt.debugPort
			}

			session, err := launcher.Launch(context.Background(), tt.kernel(t), debug)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, session)

			if tt.emulator.StartErr == nil {
				assert.Empty(t, tt.emulator.Specs(), "no process must be spawned")
			}
		})
	}
}

func TestLauncher_Launch_Debug(t *testing.T) {
	emulator := &qemu.FakeEmulator{}
	launcher := newFakeLauncher(emulator)
	launcher.DebugPort = freePort(t)

	kernel := writeKernel(t)

	session, err := launcher.Launch(context.Background(), kernel, true)
	require.NoError(t, err)

	assert.Equal(t, qemu.StatusHalted, session.Status(),
		"machine must be halted at the reset vector")
	assert.Equal(t, launcher.DebugPort, session.DebugPort())

	specs := emulator.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "/fake/bin/qemu-system-aarch64", specs[0].Path)
	assert.Contains(t, specs[0].Args, "-S")
	assert.Contains(t, specs[0].Args, "mon:stdio")
	assert.Equal(t, kernel, specs[0].Args[len(specs[0].Args)-1])

	_, err = session.SerialPath(context.Background())
	require.ErrorIs(t, err, &qemu.ArgumentError{})

	stopSession(t, session)

	assert.Equal(t, qemu.StatusTerminated, session.Status())
}

func TestLauncher_Launch_Serial(t *testing.T) {
	emulator := &qemu.FakeEmulator{Stderr: "qemu: starting\n" + ptyAnnouncement}
	launcher := newFakeLauncher(emulator)

	session, err := launcher.Launch(context.Background(), writeKernel(t), false)
	require.NoError(t, err)

	assert.Equal(t, qemu.StatusRunning, session.Status())
	assert.Zero(t, session.DebugPort())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	path, err := session.SerialPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/dev/pts/77", path)

	emulator.Processes()[0].Exit(0)

	require.NoError(t, session.Wait())
	assert.Equal(t, qemu.StatusTerminated, session.Status())
	assert.Contains(t, launcher.Stderr.(*bytes.Buffer).String(), "qemu: starting")
}

func TestLauncher_Launch_ExitCode(t *testing.T) {
	emulator := &qemu.FakeEmulator{}
	launcher := newFakeLauncher(emulator)

	session, err := launcher.Launch(context.Background(), writeKernel(t), false)
	require.NoError(t, err)

	emulator.Processes()[0].Exit(3)

	err = session.Wait()

	var cmdErr *qemu.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	require.ErrorIs(t, err, exitcode.Error(3))

	_, err = session.SerialPath(context.Background())
	require.ErrorIs(t, err, qemu.ErrSerialNotAnnounced)
}

func TestLauncher_Launch_ContextCancel(t *testing.T) {
	emulator := &qemu.FakeEmulator{}
	launcher := newFakeLauncher(emulator)

	ctx, cancel := context.WithCancel(context.Background())

	session, err := launcher.Launch(ctx, writeKernel(t), false)
	require.NoError(t, err)

	cancel()

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "session did not terminate")
	}

	var cmdErr *qemu.CommandError
	require.ErrorAs(t, session.Wait(), &cmdErr)
	assert.Equal(t, 143, cmdErr.ExitCode)
}

func TestSession_SetStatus(t *testing.T) {
	emulator := &qemu.FakeEmulator{}
	launcher := newFakeLauncher(emulator)
	launcher.DebugPort = freePort(t)

	session, err := launcher.Launch(context.Background(), writeKernel(t), true)
	require.NoError(t, err)

	session.SetStatus(qemu.StatusRunning)
	assert.Equal(t, qemu.StatusRunning, session.Status())

	stopSession(t, session)

	session.SetStatus(qemu.StatusHalted)
	assert.Equal(t, qemu.StatusTerminated, session.Status(),
		"terminated is final")
}
