// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeStubConfig configures a [FakeStub].
type FakeStubConfig struct {
	// Architecture is announced in the target description. If empty, target
	// descriptions are not supported.
	Architecture string

	// PC is the initial program counter.
	PC uint64

	// Address is the address to listen on. Defaults to a random port on the
	// loopback interface.
	Address string
}

// FakeStub is a debug stub for tests. It listens on the loopback interface
// and emulates a target that executes one 4 byte instruction per step.
//
// On continue, the target halts at the next breakpoint above the current
// program counter. If there is none, it runs until interrupted.
type FakeStub struct {
	config   FakeStubConfig
	listener net.Listener
	wg       sync.WaitGroup

	mu          sync.Mutex
	regs        AArch64Registers
	breakpoints []uint64
	exitCode    int
	exitSet     bool
	commands    []string
	conns       []net.Conn
	closed      bool
}

// NewFakeStub starts a new [FakeStub]. It is stopped on test cleanup.
func NewFakeStub(tb testing.TB, config FakeStubConfig) *FakeStub {
	tb.Helper()

	address := config.Address
	if address == "" {
		address = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	stub := &FakeStub{
		config:   config,
		listener: listener,
	}
	stub.regs.PC = config.PC

	stub.wg.Add(1)

	go stub.serve()

	tb.Cleanup(stub.Close)

	return stub
}

// Address returns the address the stub listens on.
func (s *FakeStub) Address() string {
	return s.listener.Addr().String()
}

// Port returns the port the stub listens on.
func (s *FakeStub) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert
}

// Close stops the stub and closes all connections.
func (s *FakeStub) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	s.closed = true
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// ExitOnContinue makes the target exit with the given code on the next
// continue.
func (s *FakeStub) ExitOnContinue(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exitCode = code
	s.exitSet = true
}

// Commands returns all commands received so far.
func (s *FakeStub) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.commands)
}

// Breakpoints returns the addresses of all inserted breakpoints.
func (s *FakeStub) Breakpoints() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.breakpoints)
}

// PC returns the current program counter.
func (s *FakeStub) PC() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.regs.PC
}

func (s *FakeStub) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()

			return
		}

		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer conn.Close()

			_ = s.handleConn(conn)
		}()
	}
}

type fakeStubReply struct {
	data    string
	send    bool
	closing bool
}

func (s *FakeStub) handleConn(conn net.Conn) error {
	reader := bufio.NewReader(conn)
	running := false

	for {
		frame, err := readFrame(reader)
		if errors.Is(err, ErrChecksum) {
			_, err = conn.Write([]byte{nackByte})
			if err != nil {
				return err //nolint:wrapcheck
			}

			continue
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		var reply fakeStubReply

		switch frame.kind {
		case frameAck, frameNack:
			continue
		case frameInterrupt:
			if !running {
				continue
			}

			running = false
			reply = fakeStubReply{data: "T02thread:01;", send: true}
		case framePacket:
			_, err := conn.Write([]byte{ackByte})
			if err != nil {
				return err //nolint:wrapcheck
			}

			reply = s.handlePacket(string(frame.data))
			if string(frame.data) == "c" && !reply.send {
				running = true
			}
		}

		if reply.send {
			_, err := conn.Write(encodePacket([]byte(reply.data)))
			if err != nil {
				return err //nolint:wrapcheck
			}
		}

		if reply.closing {
			return nil
		}
	}
}

func (s *FakeStub) handlePacket(packet string) fakeStubReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, packet)

	reply := func(data string) fakeStubReply {
		return fakeStubReply{data: data, send: true}
	}

	switch {
	case packet == "":
		return reply("")
	case strings.HasPrefix(packet, "qSupported"):
		features := "PacketSize=1000;swbreak+"
		if s.config.Architecture != "" {
			features += ";qXfer:features:read+"
		}

		return reply(features)
	case strings.HasPrefix(packet, "qXfer:features:read:target.xml:"):
		return reply(s.targetXML(packet))
	case packet == "?":
		return reply("S05")
	case packet == "g":
		return reply(hex.EncodeToString(s.regs.Bytes()))
	case packet[0] == 'm':
		var addr, length uint64

		_, err := fmt.Sscanf(packet, "m%x,%x", &addr, &length)
		if err != nil {
			return reply("E01")
		}

		return reply(strings.Repeat("00", int(length)))
	case strings.HasPrefix(packet, "Z0,"), strings.HasPrefix(packet, "z0,"):
		addr, err := parseBreakpointAddress(packet)
		if err != nil {
			return reply("E01")
		}

		s.breakpoints = slices.DeleteFunc(s.breakpoints, func(a uint64) bool {
			return a == addr
		})

		if packet[0] == 'Z' {
			s.breakpoints = append(s.breakpoints, addr)
			slices.Sort(s.breakpoints)
		}

		return reply("OK")
	case packet == "s":
		s.regs.PC += 4
		return reply("T05thread:01;")
	case packet == "c":
		if s.exitSet {
			return reply(fmt.Sprintf("W%02x", s.exitCode))
		}

		for _, addr := range s.breakpoints {
			if addr > s.regs.PC {
				s.regs.PC = addr
				return reply("T05swbreak:;thread:01;")
			}
		}

		return fakeStubReply{}
	case packet == "D":
		return fakeStubReply{data: "OK", send: true, closing: true}
	default:
		return reply("")
	}
}

func (s *FakeStub) targetXML(packet string) string {
	if s.config.Architecture == "" {
		return ""
	}

	document := `<?xml version="1.0"?>` +
		`<!DOCTYPE target SYSTEM "gdb-target.dtd">` +
		`<target><architecture>` + s.config.Architecture + `</architecture>` +
		`<xi:include href="aarch64-core.xml"/></target>`

	var offset, length int

	_, err := fmt.Sscanf(packet[strings.LastIndex(packet, ":")+1:], "%x,%x",
		&offset, &length)
	if err != nil || offset > len(document) {
		return "E00"
	}

	end := offset + length
	if end >= len(document) {
		return "l" + document[offset:]
	}

	return "m" + document[offset:end]
}

func parseBreakpointAddress(packet string) (uint64, error) {
	fields := strings.Split(packet, ",")
	if len(fields) != 3 { //nolint:mnd
		return 0, ErrInvalidReply
	}

	return strconv.ParseUint(fields[1], 16, 64) //nolint:wrapcheck
}
