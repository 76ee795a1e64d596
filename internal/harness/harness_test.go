// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness_test

import (
	"bytes"
	"context"
	"debug/elf"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aibor/kernrun/internal/build"
	"github.com/aibor/kernrun/internal/debug"
	"github.com/aibor/kernrun/internal/harness"
	"github.com/aibor/kernrun/internal/qemu"
	"github.com/aibor/kernrun/internal/rsp"
	"github.com/aibor/kernrun/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmulator starts a fake debug stub along with each fake process, like
// the emulator opens its debug port.
type stubEmulator struct {
	qemu.FakeEmulator

	tb           testing.TB
	port         int
	architecture string

	mu    sync.Mutex
	stubs []*rsp.FakeStub
}

func (e *stubEmulator) Start(ctx context.Context, spec qemu.ProcessSpec) (qemu.Process, error) {
	process, err := e.FakeEmulator.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	stub := rsp.NewFakeStub(e.tb, rsp.FakeStubConfig{
		Architecture: e.architecture,
		PC:           0x80000,
		Address:      net.JoinHostPort("127.0.0.1", strconv.Itoa(e.port)),
	})

	e.mu.Lock()
	e.stubs = append(e.stubs, stub)
	e.mu.Unlock()

	return process, nil
}

func (e *stubEmulator) stub() *rsp.FakeStub {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stubs[0]
}

// exit makes the emulator exit like it does when the machine powers off.
func (e *stubEmulator) exit(code int) {
	e.stub().Close()
	e.Processes()[0].Exit(code)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

type fixture struct {
	harness   *harness.Harness
	emulator  *stubEmulator
	toolchain *build.FakeToolchain
	report    *syncBuffer
	target    build.Target

	mu     sync.Mutex
	states []debug.State
}

func (f *fixture) recorded() []debug.State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]debug.State(nil), f.states...)
}

func newFixture(t *testing.T, architecture string) *fixture {
	t.Helper()

	lockDir := debug.LockDir
	debug.LockDir = t.TempDir()

	t.Cleanup(func() { debug.LockDir = lockDir })

	board := qemu.RaspberryPi3()
	port := freePort(t)

	f := &fixture{
		emulator: &stubEmulator{
			tb:           t,
			port:         port,
			architecture: architecture,
		},
		toolchain: build.NewFakeToolchain(t, elf.EM_AARCH64,
			sys.TestSymbol{Name: "kmain", Value: 0x80010, Size: 0x10}),
		report: &syncBuffer{},
		target: build.Target{
			Name:      "kernel",
			Triple:    "aarch64-unknown-none",
			Arch:      sys.ARM64,
			OutputDir: filepath.Join(t.TempDir(), "build"),
		},
	}

	launcher := qemu.NewLauncher(board)
	launcher.Emulator = f.emulator
	launcher.DebugPort = port
	launcher.Stdin = nil
	launcher.Stdout = io.Discard
	launcher.Stderr = io.Discard

	bridge := debug.NewBridge(board.Arch)
	bridge.OnStateChange = func(state debug.State) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.states = append(f.states, state)
	}

	f.harness = &harness.Harness{
		Builder:      build.NewBuilder(f.toolchain),
		Launcher:     launcher,
		Bridge:       bridge,
		ReadyTimeout: 5 * time.Second,
		Report:       f.report,
	}

	return f
}

func (f *fixture) continues() int {
	count := 0

	for _, command := range f.emulator.stub().Commands() {
		if command == "c" {
			count++
		}
	}

	return count
}

func TestHarness_Run(t *testing.T) {
	f := newFixture(t, "aarch64")

	done := make(chan error, 1)

	go func() {
		done <- f.harness.Run(context.Background(), harness.RunConfig{
			Target:      f.target,
			Host:        "localhost",
			Breakpoints: []string{"kmain"},
		})
	}()

	// Halted at kmain, then continued again.
	require.Eventually(t, func() bool {
		return len(f.emulator.Processes()) == 1 && f.continues() == 2
	}, 5*time.Second, 10*time.Millisecond)

	specs := f.emulator.Specs()
	require.Len(t, specs, 1)
	assert.Contains(t, specs[0].Args, "-S")
	assert.Equal(t, filepath.Join(f.target.OutputDir, "kernel.bin"),
		specs[0].Args[len(specs[0].Args)-1])

	f.emulator.exit(0)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	expectedStates := []debug.State{
		debug.StateHalted,
		debug.StateRunning,
		debug.StateHalted,
		debug.StateRunning,
		debug.StateTerminated,
	}
	assert.Equal(t, expectedStates, f.recorded())

	report := f.report.String()
	assert.Contains(t, report, "Breakpoint kmain at 0x80010 in kmain\n")
	assert.Contains(t, report, "Target halted by signal 5\n0x80010 in kmain\n")
	assert.Contains(t, report, "Debug connection lost")
}

func TestHarness_Run_AttachFailure(t *testing.T) {
	f := newFixture(t, "riscv:rv64")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- f.harness.Run(ctx, harness.RunConfig{
			Target: f.target,
			Host:   "localhost",
		})
	}()

	// The handshake was done, the emulator keeps running without debugger.
	require.Eventually(t, func() bool {
		return len(f.emulator.Processes()) == 1 &&
			len(f.emulator.stub().Commands()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	assert.NotContains(t, f.emulator.stub().Commands(), "c")

	cancel()

	select {
	case err := <-done:
		var cmdErr *qemu.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, 143, cmdErr.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestHarness_Run_BuildFailure(t *testing.T) {
	f := newFixture(t, "aarch64")
	f.toolchain.CompileErr = &build.BuildError{Step: "compile", Err: assert.AnError}

	err := f.harness.Run(context.Background(), harness.RunConfig{
		Target: f.target,
		Host:   "localhost",
	})
	require.ErrorIs(t, err, &build.BuildError{})
	assert.Empty(t, f.emulator.Specs(), "no emulator spawned")
}

func TestHarness_Run_Terminated(t *testing.T) {
	f := newFixture(t, "aarch64")

	halts := 0

	// The breakpoint is hit first, the second continue exits.
	f.harness.Bridge.OnStateChange = func(state debug.State) {
		switch state {
		case debug.StateHalted:
			halts++
			if halts == 2 {
				f.emulator.stub().ExitOnContinue(7)
			}
		case debug.StateTerminated:
			go f.emulator.exit(7)
		default:
		}
	}

	err := f.harness.Run(context.Background(), harness.RunConfig{
		Target:      f.target,
		Host:        "localhost",
		Breakpoints: []string{"kmain"},
	})

	var cmdErr *qemu.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 7, cmdErr.ExitCode)
	assert.Contains(t, f.report.String(), "Target exited with code 7\n")
}

func TestHarness_Bind(t *testing.T) {
	f := newFixture(t, "aarch64")
	ctx := context.Background()

	image, err := f.harness.Build(ctx, f.target, build.ProfileDebug)
	require.NoError(t, err)

	emulator, err := f.harness.Launch(ctx, image.Binary, true)
	require.NoError(t, err)

	t.Cleanup(func() { _ = emulator.Stop(ctx) })

	assert.Equal(t, qemu.StatusHalted, emulator.Status())

	session, err := f.harness.Bind(emulator).Attach(ctx, image.Executable,
		"localhost", emulator.DebugPort())
	require.NoError(t, err)

	t.Cleanup(func() { _ = session.Close() })

	require.NoError(t, session.Continue(ctx))
	assert.Equal(t, qemu.StatusRunning, emulator.Status())

	_, err = session.Interrupt(ctx)
	require.NoError(t, err)
	assert.Equal(t, qemu.StatusHalted, emulator.Status())

	require.NoError(t, session.Detach(ctx))
	assert.Equal(t, qemu.StatusRunning, emulator.Status())

	// The bridge of the harness is not modified.
	assert.Equal(t, []debug.State{
		debug.StateHalted,
		debug.StateRunning,
		debug.StateHalted,
		debug.StateDisconnected,
	}, f.recorded())
}
