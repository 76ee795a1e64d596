// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/aibor/kernrun/internal/rsp"
	"github.com/aibor/kernrun/internal/sys"
)

// Bridge attaches debugging sessions to the debug stub of an emulator.
type Bridge struct {
	// Arch is the architecture of the debugged kernel. Defaults to
	// [sys.ARM64].
	Arch sys.Arch

	// OnStateChange is called on each state change of a session attached
	// by this bridge. It is called with the session's lock held and must not
	// call methods of the session.
	OnStateChange func(State)
}

// NewBridge returns a new [Bridge] for the given architecture.
func NewBridge(arch sys.Arch) *Bridge {
	return &Bridge{Arch: arch}
}

func (b *Bridge) arch() sys.Arch {
	if b.Arch == "" {
		return sys.ARM64
	}

	return b.Arch
}

// probeTimeout bounds a single connection attempt of [ProbeStub].
const probeTimeout = time.Second

// ProbeStub checks that the debug stub at the given address accepts
// connections. The connection is closed right away.
func ProbeStub(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStubUnreachable, err)
	}

	return conn.Close() //nolint:wrapcheck
}

// Attach connects a new [Session] to the debug stub at host and port.
//
// Symbols are read from the kernel executable, not the raw binary. The debug
// port is locked exclusively for the lifetime of the session. All errors are
// of type [AttachError] and leave the emulator untouched.
func (b *Bridge) Attach(
	ctx context.Context,
	kernelExecutablePath string,
	host string,
	port int,
) (*Session, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	symbols, err := LoadSymbols(kernelExecutablePath, b.arch())
	if err != nil {
		return nil, &AttachError{Address: address, Err: err}
	}

	lock, client, stop, err := b.connect(ctx, host, port)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Symbols:     symbols,
		bridge:      b,
		host:        host,
		port:        port,
		lock:        lock,
		client:      client,
		breakpoints: map[uint64]Breakpoint{},
	}

	session.mu.Lock()
	session.applyStop(stop)
	session.mu.Unlock()

	slog.Debug("Debug session attached",
		slog.String("address", address),
		slog.String("stop", stop.String()),
	)

	return session, nil
}

// connect locks the port and connects to the stub. It returns the halt reason
// of the target.
func (b *Bridge) connect(
	ctx context.Context,
	host string,
	port int,
) (*PortLock, *rsp.Client, rsp.StopReply, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	fail := func(err error) (*PortLock, *rsp.Client, rsp.StopReply, error) {
		return nil, nil, rsp.StopReply{}, &AttachError{Address: address, Err: err}
	}

	lock, err := AcquirePortLock(host, port)
	if err != nil {
		return fail(err)
	}

	client, stop, err := b.handshake(ctx, address)
	if err != nil {
		releaseErr := lock.Release()
		if releaseErr != nil {
			slog.Warn("Failed to release debug port lock", slog.Any("error", releaseErr))
		}

		return fail(err)
	}

	return lock, client, stop, nil
}

func (b *Bridge) handshake(ctx context.Context, address string) (*rsp.Client, rsp.StopReply, error) {
	client, err := rsp.Dial(ctx, address)
	if err != nil {
		return nil, rsp.StopReply{}, err //nolint:wrapcheck
	}

	err = b.checkArchitecture(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, rsp.StopReply{}, err
	}

	stop, err := client.HaltReason(ctx)
	if err != nil {
		_ = client.Close()
		return nil, rsp.StopReply{}, fmt.Errorf("halt reason: %w", err)
	}

	return client, stop, nil
}

// checkArchitecture compares the architecture of the target description with
// the expected one. Stubs without target descriptions are not checked.
func (b *Bridge) checkArchitecture(ctx context.Context, client *rsp.Client) error {
	arch := b.arch()

	targetArch, err := client.Architecture(ctx)
	if errors.Is(err, rsp.ErrUnsupported) {
		slog.Debug("Target description not supported, skip architecture check")
		return nil
	}

	if err != nil {
		return fmt.Errorf("read target description: %w", err)
	}

	if targetArch != arch.GDBArchitecture() {
		return fmt.Errorf("%w: target is %s, want %s",
			ErrArchMismatch, targetArch, arch.GDBArchitecture())
	}

	return nil
}
