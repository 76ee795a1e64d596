// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aibor/kernrun/internal/rsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, stub *rsp.FakeStub) *rsp.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := rsp.Dial(ctx, stub.Address())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestClient_Handshake(t *testing.T) {
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{Architecture: "aarch64"})
	client := dial(t, stub)

	assert.True(t, client.Supports("qXfer:features:read"))
	assert.True(t, client.Supports("swbreak"))
	assert.False(t, client.Supports("multiprocess"))

	arch, err := client.Architecture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aarch64", arch)

	stop, err := client.HaltReason(context.Background())
	require.NoError(t, err)
	assert.True(t, stop.Halted())
	assert.Equal(t, rsp.SignalTrap, stop.Signal)
}

func TestClient_Architecture_Unsupported(t *testing.T) {
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{})
	client := dial(t, stub)

	_, err := client.Architecture(context.Background())
	require.ErrorIs(t, err, rsp.ErrUnsupported)
}

func TestClient_Execution(t *testing.T) {
	ctx := context.Background()
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{
		Architecture: "aarch64",
		PC:           0x80000,
	})
	client := dial(t, stub)

	stop, err := client.Step(ctx)
	require.NoError(t, err)
	assert.True(t, stop.Halted())

	raw, err := client.Registers(ctx)
	require.NoError(t, err)

	regs, err := rsp.ParseAArch64Registers(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x80004), regs.PC)

	require.NoError(t, client.SetBreakpoint(ctx, 0x80100, 4))
	assert.Equal(t, []uint64{0x80100}, stub.Breakpoints())

	require.NoError(t, client.Continue(ctx))

	stop, err = client.WaitStop(ctx)
	require.NoError(t, err)
	assert.True(t, stop.Halted())
	assert.Contains(t, stop.Info, "swbreak")
	assert.Equal(t, uint64(0x80100), stub.PC())

	require.NoError(t, client.ClearBreakpoint(ctx, 0x80100, 4))
	assert.Empty(t, stub.Breakpoints())

	memory, err := client.ReadMemory(ctx, 0x80000, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, memory)
}

func TestClient_Interrupt(t *testing.T) {
	ctx := context.Background()
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{PC: 0x80000})
	client := dial(t, stub)

	require.NoError(t, client.Continue(ctx))

	stops := make(chan rsp.StopReply, 1)
	errs := make(chan error, 1)

	go func() {
		stop, err := client.WaitStop(ctx)
		stops <- stop
		errs <- err
	}()

	require.NoError(t, client.Interrupt())

	select {
	case stop := <-stops:
		require.NoError(t, <-errs)
		assert.Equal(t, rsp.SignalInterrupt, stop.Signal)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no stop reply")
	}
}

func TestClient_WaitStop_Exit(t *testing.T) {
	ctx := context.Background()
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{})
	client := dial(t, stub)

	stub.ExitOnContinue(3)

	require.NoError(t, client.Continue(ctx))

	stop, err := client.WaitStop(ctx)
	require.NoError(t, err)
	assert.Equal(t, rsp.StopExited, stop.Kind)
	assert.Equal(t, 3, stop.ExitCode)
}

func TestClient_WaitStop_ContextCancel(t *testing.T) {
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{})
	client := dial(t, stub)

	require.NoError(t, client.Continue(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.WaitStop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Unsupported(t *testing.T) {
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{})
	client := dial(t, stub)

	_, err := client.Request(context.Background(), "vMustReplyEmpty")
	require.ErrorIs(t, err, rsp.ErrUnsupported)

	err = client.SetBreakpoint(context.Background(), 0x1, 4)
	require.NoError(t, err)
}

func TestClient_Detach(t *testing.T) {
	stub := rsp.NewFakeStub(t, rsp.FakeStubConfig{})
	client := dial(t, stub)

	require.NoError(t, client.Detach(context.Background()))
	assert.Contains(t, stub.Commands(), "D")
}

func TestDial_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = rsp.Dial(ctx, address)
	require.Error(t, err)
}
