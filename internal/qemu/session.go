// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aibor/kernrun/internal/exitcode"
	"github.com/aibor/kernrun/internal/pipe"
)

// stderrDrainTimeout is the time the emulator's stderr has to be drained after
// the emulator exited.
const stderrDrainTimeout = time.Second

// Status is the execution status of an emulated machine.
type Status int

// Statuses of a [Session].
const (
	StatusRunning Status = iota
	StatusHalted
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusHalted:
		return "halted"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is a running emulator process.
type Session struct {
	spec    CommandSpec
	process Process
	cancel  context.CancelFunc
	done    chan struct{}

	// serialReady is closed once the pseudo-terminal of the bridged serial
	// channel is known.
	serialReady chan struct{}
	serialOnce  sync.Once

	mu         sync.Mutex
	status     Status
	serialPath string
	err        error
}

func newSession(spec CommandSpec, cancel context.CancelFunc) *Session {
	status := StatusRunning
	if spec.Debug {
		status = StatusHalted
	}

	return &Session{
		spec:        spec,
		cancel:      cancel,
		done:        make(chan struct{}),
		serialReady: make(chan struct{}),
		status:      status,
	}
}

// Pid returns the process ID of the emulator.
func (s *Session) Pid() int {
	return s.process.Pid()
}

// Board returns the board profile the emulator runs with.
func (s *Session) Board() BoardProfile {
	return s.spec.Board
}

// Status returns the current status of the emulated machine.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// SetStatus updates the status. It is used by debuggers that control the
// execution. A terminated session stays terminated.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusTerminated {
		return
	}

	s.status = status
}

// DebugPort returns the port the debug stub listens on, or 0 if debugging is
// disabled.
func (s *Session) DebugPort() int {
	if !s.spec.Debug {
		return 0
	}

	return s.spec.DebugPort
}

// SerialPath returns the pseudo-terminal the bridged serial channel is
// connected to.
//
// It waits until the emulator announced it. For interactive sessions there is
// no pseudo-terminal and an [ArgumentError] is returned.
func (s *Session) SerialPath(ctx context.Context) (string, error) {
	if s.spec.interactive() {
		return "", &ArgumentError{"serial is bridged to stdio"}
	}

	select {
	case <-s.serialReady:
	case <-s.done:
		// The announcement might have been parsed right before exit.
		select {
		case <-s.serialReady:
		default:
			return "", ErrSerialNotAnnounced
		}
	case <-ctx.Done():
		return "", ctx.Err() //nolint:wrapcheck
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serialPath, nil
}

// Done returns a channel that is closed once the emulator terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait waits for the emulator to terminate.
//
// It returns a [CommandError] with the emulator's exit code if it did not exit
// successfully.
func (s *Session) Wait() error {
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Stop terminates the emulator process group and waits for it to exit.
//
// SIGTERM is sent first. After the grace period, the group is killed. Stop
// returns early with the context's error if the context is done before.
func (s *Session) Stop(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}
}

func (s *Session) parseStderrLine(line []byte) {
	path, label, found := parseSerialAnnouncement(line)
	if !found || label != s.spec.Board.bridgedSerialLabel() {
		return
	}

	s.serialOnce.Do(func() {
		s.mu.Lock()
		s.serialPath = path
		s.mu.Unlock()

		slog.Debug("Serial channel bridged",
			slog.String("path", path),
			slog.String("label", label))

		close(s.serialReady)
	})
}

// watch waits for the process to exit and records the result.
func (s *Session) watch(pipes *pipe.Pipes, stderr *os.File) {
	waitErr := s.process.Wait()

	pipeErr := pipes.Wait(stderrDrainTimeout)
	if pipeErr != nil {
		slog.Debug("Emulator stderr", slog.Any("error", pipeErr))
	}

	_ = stderr.Close()

	var err error

	if waitErr != nil {
		cmdErr := &CommandError{Err: waitErr}

		code, isExitCode := exitcode.From(waitErr)
		if isExitCode {
			cmdErr.Err = exitcode.Error(code)
		}

		cmdErr.ExitCode = code
		err = cmdErr
	}

	s.mu.Lock()
	s.status = StatusTerminated
	s.err = err
	s.mu.Unlock()

	slog.Debug("Emulator terminated",
		slog.Int("pid", s.process.Pid()),
		slog.Any("error", err))

	s.cancel()
	close(s.done)
}

// String returns a description of the session for logging.
func (s *Session) String() string {
	return fmt.Sprintf("qemu[%d] %s", s.process.Pid(), s.Status())
}
