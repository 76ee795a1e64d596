// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"io"
	"sync"

	"github.com/aibor/kernrun/internal/exitcode"
)

// FakeEmulator is an [Emulator] that does not spawn any process. It is meant
// for tests of code that launches emulators.
type FakeEmulator struct {
	LookPathErr error
	StartErr    error

	// Stderr is written to the process's stderr on start.
	Stderr string

	mu        sync.Mutex
	specs     []ProcessSpec
	processes []*FakeProcess
}

var _ Emulator = (*FakeEmulator)(nil)

// LookPath implements [Emulator].
func (e *FakeEmulator) LookPath(file string) (string, error) {
	if e.LookPathErr != nil {
		return "", e.LookPathErr
	}

	return "/fake/bin/" + file, nil
}

// Start implements [Emulator].
func (e *FakeEmulator) Start(ctx context.Context, spec ProcessSpec) (Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.specs = append(e.specs, spec)

	if e.StartErr != nil {
		return nil, e.StartErr
	}

	if e.Stderr != "" && spec.Stderr != nil {
		_, _ = io.WriteString(spec.Stderr, e.Stderr)
	}

	process := &FakeProcess{
		ctx:  ctx,
		pid:  4242 + len(e.processes),
		exit: make(chan error, 1),
	}
	e.processes = append(e.processes, process)

	return process, nil
}

// Specs returns the specs of all start attempts.
func (e *FakeEmulator) Specs() []ProcessSpec {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]ProcessSpec{}, e.specs...)
}

// Processes returns all started processes.
func (e *FakeEmulator) Processes() []*FakeProcess {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*FakeProcess{}, e.processes...)
}

// FakeProcess is a [Process] started by [FakeEmulator]. It runs until
// [FakeProcess.Exit] is called or the context it was started with is done.
type FakeProcess struct {
	ctx  context.Context //nolint:containedctx
	pid  int
	exit chan error
}

// Pid implements [Process].
func (p *FakeProcess) Pid() int {
	return p.pid
}

// Wait implements [Process]. A process terminated by its context exits like
// a process killed by SIGTERM.
func (p *FakeProcess) Wait() error {
	select {
	case err := <-p.exit:
		return err
	case <-p.ctx.Done():
		return exitcode.Error(143)
	}
}

// Exit makes the process exit with the given exit code.
func (p *FakeProcess) Exit(code int) {
	var err error
	if code != 0 {
		err = exitcode.Error(code)
	}

	select {
	case p.exit <- err:
	default:
	}
}
