// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is the time the emulator has to terminate after SIGTERM
// before it is killed.
const DefaultGracePeriod = 3 * time.Second

// ProcessSpec describes an emulator process to start.
type ProcessSpec struct {
	Path string
	Args []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod is the time between SIGTERM and SIGKILL once the context
	// is done.
	GracePeriod time.Duration

	// Foreground makes the process group the foreground group of the
	// terminal Stdin is connected to, if it is one. The emulator reads from
	// and configures the terminal for stdio bridged serial channels, which a
	// background group is stopped for. The terminal is handed back once the
	// process exited.
	Foreground bool
}

// Process is a started emulator process.
type Process interface {
	Pid() int

	// Wait waits for the process to exit. It returns an [exec.ExitError] if
	// the process did not exit with exit code 0.
	Wait() error
}

// Emulator starts emulator processes.
type Emulator interface {
	// LookPath searches for the emulator executable.
	LookPath(file string) (string, error)

	// Start starts the process. The process must be terminated once the
	// context is done.
	Start(ctx context.Context, spec ProcessSpec) (Process, error)
}

// ExecEmulator is an [Emulator] that runs real processes.
type ExecEmulator struct{}

var _ Emulator = ExecEmulator{}

// LookPath implements [Emulator].
func (ExecEmulator) LookPath(file string) (string, error) {
	return exec.LookPath(file) //nolint:wrapcheck
}

// Start implements [Emulator].
//
// The process is started in its own process group. Once the context is done,
// SIGTERM is sent to the whole group. If the process does not exit within the
// grace period, it is killed. Any process left in the group after the
// emulator exited is killed as well.
func (ExecEmulator) Start(ctx context.Context, spec ProcessSpec) (Process, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		slog.Debug("Terminate emulator", slog.Int("pid", cmd.Process.Pid))
		return signalGroup(cmd.Process.Pid, unix.SIGTERM)
	}

	cmd.WaitDelay = spec.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultGracePeriod
	}

	process := &execProcess{
		cmd:      cmd,
		terminal: -1,
		done:     make(chan struct{}),
	}

	if spec.Foreground {
		if fd, ok := terminalFd(spec.Stdin); ok {
			cmd.SysProcAttr.Foreground = true
			cmd.SysProcAttr.Ctty = fd
			process.terminal = fd
		}
	}

	slog.Debug("Start emulator",
		slog.String("command", cmd.String()),
		slog.Bool("foreground", process.terminal != -1))

	started := make(chan error)
	go process.run(started)

	err := <-started
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	return process, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	terminal int
	done     chan struct{}
	err      error
}

// run starts the process and waits for it.
//
// Pdeathsig is sent when the thread that started the child exits, not the
// harness. So the goroutine keeps its thread locked until the child exited.
// The thread is terminated together with the goroutine then.
func (p *execProcess) run(started chan<- error) {
	runtime.LockOSThread()

	err := p.cmd.Start()
	started <- err

	if err != nil {
		return
	}

	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	<-p.done

	err := p.err

	// A successful exit after cancellation is reported as context error by
	// [exec.Cmd.Wait]. The process did terminate cleanly, though.
	if err != nil && p.cmd.ProcessState != nil && p.cmd.ProcessState.Success() {
		err = nil
	}

	killErr := signalGroup(p.cmd.Process.Pid, unix.SIGKILL)
	if killErr != nil {
		slog.Debug("Failed to kill emulator process group",
			slog.Any("error", killErr))
	}

	if p.terminal != -1 {
		termErr := reclaimTerminal(p.terminal)
		if termErr != nil {
			slog.Warn("Failed to take back terminal", slog.Any("error", termErr))
		}
	}

	return err //nolint:wrapcheck
}

// signalGroup sends the signal to the process group of the given leader.
// A group that is already gone is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}

	return nil
}
