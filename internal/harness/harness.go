// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/aibor/kernrun/internal/build"
	"github.com/aibor/kernrun/internal/debug"
	"github.com/aibor/kernrun/internal/qemu"
)

// DefaultReadyTimeout is the time the debug stub of a freshly launched
// emulator has to accept connections.
const DefaultReadyTimeout = 5 * time.Second

// Harness runs the build, launch and debug cycle of a kernel.
type Harness struct {
	Builder  *build.Builder
	Launcher *qemu.Launcher
	Bridge   *debug.Bridge

	// ReadyTimeout is the time the debug stub has to come up after launch.
	ReadyTimeout time.Duration

	// Report receives the stop locations of debug sessions.
	Report io.Writer
}

// New returns a [Harness] for the given board that runs the real toolchain
// and emulator.
func New(board qemu.BoardProfile) *Harness {
	return &Harness{
		Builder:      build.NewBuilder(build.NewCommandToolchain()),
		Launcher:     qemu.NewLauncher(board),
		Bridge:       debug.NewBridge(board.Arch),
		ReadyTimeout: DefaultReadyTimeout,
		Report:       os.Stderr,
	}
}

// Build builds the target with the given profile.
func (h *Harness) Build(
	ctx context.Context,
	target build.Target,
	profile build.Profile,
) (*build.KernelImage, error) {
	return h.Builder.Build(ctx, target, profile) //nolint:wrapcheck
}

// Launch boots the raw kernel binary in the emulator.
func (h *Harness) Launch(
	ctx context.Context,
	kernelBinaryPath string,
	debugEnabled bool,
) (*qemu.Session, error) {
	return h.Launcher.Launch(ctx, kernelBinaryPath, debugEnabled) //nolint:wrapcheck
}

// Attach connects a debug session to the debug stub at host and port.
func (h *Harness) Attach(
	ctx context.Context,
	kernelExecutablePath string,
	host string,
	port int,
) (*debug.Session, error) {
	return h.Bridge.Attach(ctx, kernelExecutablePath, host, port) //nolint:wrapcheck
}

// statusOf maps debug session states to emulator status. The emulator
// resumes the machine once the debugger disconnects.
func statusOf(state debug.State) qemu.Status {
	switch state {
	case debug.StateHalted:
		return qemu.StatusHalted
	case debug.StateTerminated:
		return qemu.StatusTerminated
	default:
		return qemu.StatusRunning
	}
}

// Bind returns a copy of the bridge that keeps the status of the emulator
// session in sync with the states of debug sessions it attaches.
func (h *Harness) Bind(emulator *qemu.Session) *debug.Bridge {
	bridge := *h.Bridge
	next := bridge.OnStateChange

	bridge.OnStateChange = func(state debug.State) {
		// Only the emulator knows when it terminated.
		if state != debug.StateTerminated {
			emulator.SetStatus(statusOf(state))
		}

		if next != nil {
			next(state)
		}
	}

	return &bridge
}

// waitReady waits until the debug stub accepts connections. It returns early
// if the emulator terminates.
func (h *Harness) waitReady(ctx context.Context, emulator *qemu.Session, address string) error {
	timeout := h.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd
	defer ticker.Stop()

	for {
		err := debug.ProbeStub(ctx, address)
		if err == nil {
			return nil
		}

		select {
		case <-ticker.C:
		case <-emulator.Done():
			return fmt.Errorf("emulator terminated before debug stub came up: %w",
				emulator.Wait())
		case <-ctx.Done():
			return fmt.Errorf("debug stub at %s not ready: %w", address, ctx.Err())
		}
	}
}

// RunConfig configures [Harness.Run].
type RunConfig struct {
	Target build.Target

	// Host the debug stub is reached at.
	Host string

	// Breakpoints are symbols or addresses the target halts at.
	Breakpoints []string
}

// Run builds the target with debug profile, launches it with debugging
// enabled, attaches a debug session and continues the target. Breakpoint
// hits are reported and the target is continued again.
//
// If the debug session can not be attached, the error is reported and the
// emulator keeps running until it exits or the context is done. The returned
// error is the emulator's.
func (h *Harness) Run(ctx context.Context, cfg RunConfig) error {
	image, err := h.Build(ctx, cfg.Target, build.ProfileDebug)
	if err != nil {
		return err
	}

	emulator, err := h.Launch(ctx, image.Binary, true)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(emulator.DebugPort()))

	err = h.attachAndFollow(ctx, emulator, image.Executable, address, cfg)
	if err != nil {
		var attachErr *debug.AttachError
		if !errors.As(err, &attachErr) {
			stopEmulator(emulator)
			return err
		}

		slog.Error("Debug session failed, emulator keeps running",
			slog.Any("error", err),
			slog.String("hint", "attach a debugger with \"kernrun debug\""))
	}

	select {
	case <-emulator.Done():
	case <-ctx.Done():
		stopEmulator(emulator)
	}

	return emulator.Wait() //nolint:wrapcheck
}

func (h *Harness) attachAndFollow(
	ctx context.Context,
	emulator *qemu.Session,
	executable string,
	address string,
	cfg RunConfig,
) error {
	err := h.waitReady(ctx, emulator, address)
	if err != nil {
		return &debug.AttachError{Address: address, Err: err}
	}

	session, err := h.Bind(emulator).Attach(ctx, executable, cfg.Host, emulator.DebugPort())
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer session.Close()

	return Follow(ctx, session, cfg.Breakpoints, h.report())
}

func (h *Harness) report() io.Writer {
	if h.Report == nil {
		return io.Discard
	}

	return h.Report
}

func stopEmulator(emulator *qemu.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), qemu.DefaultGracePeriod+time.Second)
	defer cancel()

	err := emulator.Stop(ctx)
	if err != nil {
		slog.Warn("Failed to stop emulator", slog.Any("error", err))
	}
}
