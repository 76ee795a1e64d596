// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"fmt"
	"strconv"
	"strings"
)

// StopKind is the kind of a stop reply.
type StopKind int

const (
	// StopSignal means the target halted and can be resumed.
	StopSignal StopKind = iota

	// StopExited means the target exited with an exit code.
	StopExited

	// StopTerminated means the target was terminated by a signal.
	StopTerminated
)

func (k StopKind) String() string {
	switch k {
	case StopSignal:
		return "signal"
	case StopExited:
		return "exited"
	case StopTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Signals reported by stubs.
const (
	SignalInterrupt = 2
	SignalTrap      = 5
)

// StopReply is the reply of the stub to commands that resume or query the
// execution of the target.
type StopReply struct {
	Kind StopKind

	// Signal is the signal that halted or terminated the target.
	Signal int

	// ExitCode is the exit code of an exited target.
	ExitCode int

	// Info holds the "n:r" pairs of "T" replies, like the thread or the
	// reason for the halt ("swbreak", "hwbreak", "watch").
	Info map[string]string
}

// Halted returns true if the target can be resumed.
func (r StopReply) Halted() bool {
	return r.Kind == StopSignal
}

func (r StopReply) String() string {
	switch r.Kind {
	case StopExited:
		return "exited with code " + strconv.Itoa(r.ExitCode)
	case StopTerminated:
		return "terminated by signal " + strconv.Itoa(r.Signal)
	default:
		return "halted by signal " + strconv.Itoa(r.Signal)
	}
}

// ParseStopReply parses "S", "T", "W" and "X" replies.
func ParseStopReply(reply string) (StopReply, error) {
	if len(reply) < 3 { //nolint:mnd
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrInvalidReply, reply)
	}

	value, err := strconv.ParseUint(reply[1:3], 16, 8)
	if err != nil {
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrInvalidReply, reply)
	}

	stop := StopReply{}

	switch reply[0] {
	case 'S':
		stop.Kind = StopSignal
		stop.Signal = int(value)
	case 'T':
		stop.Kind = StopSignal
		stop.Signal = int(value)
		stop.Info = parseStopInfo(reply[3:])
	case 'W':
		stop.Kind = StopExited
		stop.ExitCode = int(value)
	case 'X':
		stop.Kind = StopTerminated
		stop.Signal = int(value)
	default:
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrInvalidReply, reply)
	}

	return stop, nil
}

func parseStopInfo(s string) map[string]string {
	info := map[string]string{}

	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}

		key, value, _ := strings.Cut(pair, ":")
		info[key] = value
	}

	return info
}
