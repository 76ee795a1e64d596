// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aibor/kernrun/internal/rsp"
	"github.com/aibor/kernrun/internal/sys"
)

// breakpointKind is the size of the breakpoint instruction on aarch64.
const breakpointKind = 4

// instructionSize is the size of an aarch64 instruction.
const instructionSize = 4

// Breakpoint is a software breakpoint inserted into the target.
type Breakpoint struct {
	// Spec is the symbol name or address the breakpoint was requested with.
	Spec     string
	Location Location
}

// Session is a debugging session connected to the debug stub of an emulator.
//
// All methods are safe for concurrent use. While the target runs, a single
// goroutine waits for the stop reply. Use [Session.Wait] to wait for it and
// [Session.Interrupt] to halt the target.
type Session struct {
	Symbols *Symbols

	bridge *Bridge
	host   string
	port   int

	mu          sync.Mutex
	client      *rsp.Client
	lock        *PortLock
	state       State
	stop        rsp.StopReply
	stopErr     error
	stopped     chan struct{}
	breakpoints map[uint64]Breakpoint
}

// Address returns the address of the debug stub.
func (s *Session) Address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// LastStop returns the last stop reply of the target.
func (s *Session) LastStop() rsp.StopReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stop
}

// setState must be called with the lock held.
func (s *Session) setState(state State) {
	if s.state == state {
		return
	}

	slog.Debug("Debug session state changed",
		slog.String("address", s.Address()),
		slog.String("from", s.state.String()),
		slog.String("to", state.String()),
	)

	s.state = state

	if s.bridge != nil && s.bridge.OnStateChange != nil {
		s.bridge.OnStateChange(state)
	}
}

// applyStop updates the state by the given stop reply. It must be called with
// the lock held.
func (s *Session) applyStop(stop rsp.StopReply) {
	s.stop = stop

	if !stop.Halted() {
		s.setState(StateTerminated)
		s.disconnect()

		return
	}

	s.setState(StateHalted)
}

// disconnect closes the connection and releases the port lock. It must be
// called with the lock held.
func (s *Session) disconnect() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}

	if s.lock != nil {
		err := s.lock.Release()
		if err != nil {
			slog.Warn("Failed to release debug port lock", slog.Any("error", err))
		}

		s.lock = nil
	}
}

// Continue resumes the target. It returns once the target runs.
func (s *Session) Continue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return invalidState("continue", s.state)
	}

	err := s.client.Continue(ctx)
	if err != nil {
		return fmt.Errorf("continue: %w", err)
	}

	stopped := make(chan struct{})
	s.stopped = stopped
	s.stopErr = nil
	s.setState(StateRunning)

	go s.waitStop(s.client, stopped)

	return nil
}

func (s *Session) waitStop(client *rsp.Client, stopped chan struct{}) {
	defer close(stopped)

	// Unblocked by a stop reply or by closing the connection.
	stop, err := client.WaitStop(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// The stub is gone, which means the emulator is gone, unless the
		// session closed the connection itself.
		if s.state == StateRunning {
			s.stopErr = fmt.Errorf("wait for stop: %w", err)
			s.setState(StateTerminated)
			s.disconnect()
		}

		return
	}

	s.applyStop(stop)
}

// Wait waits until the running target halts or terminates and returns the
// stop reply. If the target is not running, the last stop reply is returned.
func (s *Session) Wait(ctx context.Context) (rsp.StopReply, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped != nil {
		select {
		case <-stopped:
		case <-ctx.Done():
			return rsp.StopReply{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stop, s.stopErr
}

// Interrupt halts the running target and waits for it to stop.
func (s *Session) Interrupt(ctx context.Context) (rsp.StopReply, error) {
	s.mu.Lock()

	if s.state != StateRunning {
		defer s.mu.Unlock()
		return rsp.StopReply{}, invalidState("interrupt", s.state)
	}

	err := s.client.Interrupt()
	s.mu.Unlock()

	if err != nil {
		return rsp.StopReply{}, fmt.Errorf("interrupt: %w", err)
	}

	return s.Wait(ctx)
}

// Step executes a single instruction and returns the new location.
func (s *Session) Step(ctx context.Context) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return Location{}, invalidState("step", s.state)
	}

	stop, err := s.client.Step(ctx)
	if err != nil {
		return Location{}, fmt.Errorf("step: %w", err)
	}

	s.applyStop(stop)

	if s.state != StateHalted {
		return Location{}, fmt.Errorf("step: target %s", stop)
	}

	pc, err := s.pc(ctx)
	if err != nil {
		return Location{}, err
	}

	return s.Symbols.Location(pc), nil
}

// Registers returns the core registers of the halted target.
func (s *Session) Registers(ctx context.Context) (rsp.AArch64Registers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return rsp.AArch64Registers{}, invalidState("read registers", s.state)
	}

	return s.registers(ctx)
}

func (s *Session) registers(ctx context.Context) (rsp.AArch64Registers, error) {
	if s.bridge.arch() != sys.ARM64 {
		return rsp.AArch64Registers{}, fmt.Errorf("%w: registers of %s",
			ErrArchMismatch, s.bridge.arch())
	}

	raw, err := s.client.Registers(ctx)
	if err != nil {
		return rsp.AArch64Registers{}, fmt.Errorf("read registers: %w", err)
	}

	regs, err := rsp.ParseAArch64Registers(raw)
	if err != nil {
		return rsp.AArch64Registers{}, fmt.Errorf("read registers: %w", err)
	}

	return regs, nil
}

func (s *Session) pc(ctx context.Context) (uint64, error) {
	regs, err := s.registers(ctx)
	if err != nil {
		return 0, err
	}

	return regs.PC, nil
}

// PC returns the program counter of the halted target.
func (s *Session) PC(ctx context.Context) (uint64, error) {
	regs, err := s.Registers(ctx)
	if err != nil {
		return 0, err
	}

	return regs.PC, nil
}

// Location returns the [Location] of the given address.
func (s *Session) Location(addr uint64) Location {
	return s.Symbols.Location(addr)
}

// resolve returns the address for a breakpoint spec. It is either a symbol
// name or an address like "0x80000" or "*0x80000".
func (s *Session) resolve(spec string) (uint64, error) {
	if addr, isAddr := strings.CutPrefix(strings.TrimPrefix(spec, "*"), "0x"); isAddr {
		value, err := strconv.ParseUint(addr, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("parse address %q: %w", spec, err)
		}

		return value, nil
	}

	symbol, found := s.Symbols.Lookup(spec)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, spec)
	}

	return symbol.Addr, nil
}

// SetBreakpoint inserts a breakpoint at the symbol or address given by spec.
func (s *Session) SetBreakpoint(ctx context.Context, spec string) (Breakpoint, error) {
	addr, err := s.resolve(spec)
	if err != nil {
		return Breakpoint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return Breakpoint{}, invalidState("set breakpoint", s.state)
	}

	err = s.client.SetBreakpoint(ctx, addr, breakpointKind)
	if err != nil {
		return Breakpoint{}, fmt.Errorf("set breakpoint %s: %w", spec, err)
	}

	breakpoint := Breakpoint{
		Spec:     spec,
		Location: s.Symbols.Location(addr),
	}
	s.breakpoints[addr] = breakpoint

	return breakpoint, nil
}

// ClearBreakpoint removes the breakpoint at the symbol or address given by
// spec.
func (s *Session) ClearBreakpoint(ctx context.Context, spec string) error {
	addr, err := s.resolve(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return invalidState("clear breakpoint", s.state)
	}

	err = s.client.ClearBreakpoint(ctx, addr, breakpointKind)
	if err != nil {
		return fmt.Errorf("clear breakpoint %s: %w", spec, err)
	}

	delete(s.breakpoints, addr)

	return nil
}

// Breakpoints returns the inserted breakpoints ordered by address.
func (s *Session) Breakpoints() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := slices.Sorted(maps.Keys(s.breakpoints))
	breakpoints := make([]Breakpoint, 0, len(addrs))

	for _, addr := range addrs {
		breakpoints = append(breakpoints, s.breakpoints[addr])
	}

	return breakpoints
}

// View renders the location of the program counter, the instruction word at
// it and the source line, if the source file is available.
func (s *Session) View(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return "", invalidState("view", s.state)
	}

	pc, err := s.pc(ctx)
	if err != nil {
		return "", err
	}

	location := s.Symbols.Location(pc)

	var view strings.Builder

	view.WriteString(location.String())

	word, err := s.client.ReadMemory(ctx, pc, instructionSize)
	if err != nil {
		return "", fmt.Errorf("read instruction: %w", err)
	}

	if len(word) == instructionSize {
		fmt.Fprintf(&view, "\n  %#x:\t%08x", pc, binary.LittleEndian.Uint32(word))
	}

	if source, found := sourceLine(location.File, location.Line); found {
		fmt.Fprintf(&view, "\n  %d\t%s", location.Line, source)
	}

	return view.String(), nil
}

// Detach detaches from the halted target, which resumes execution, and
// releases the debug port. Breakpoints are removed by the stub.
func (s *Session) Detach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHalted {
		return invalidState("detach", s.state)
	}

	err := s.client.Detach(ctx)
	s.client = nil
	s.disconnect()
	clear(s.breakpoints)
	s.setState(StateDisconnected)

	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	return nil
}

// Reattach connects the detached session to the debug stub again.
func (s *Session) Reattach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return invalidState("reattach", s.state)
	}

	lock, client, stop, err := s.bridge.connect(ctx, s.host, s.port)
	if err != nil {
		return err
	}

	s.lock = lock
	s.client = client
	s.stopped = nil
	s.stopErr = nil
	s.applyStop(stop)

	return nil
}

// Close closes the connection without detaching and releases the debug port.
// A running target keeps running. A closed session is disconnected, unless
// the target terminated.
func (s *Session) Close() error {
	s.mu.Lock()

	if s.state != StateTerminated {
		s.setState(StateDisconnected)
	}

	s.disconnect()
	stopped := s.stopped
	s.mu.Unlock()

	// Wait for the stop waiter to return, which it does once the connection
	// is closed.
	if stopped != nil {
		<-stopped
	}

	return nil
}
