// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// repeatableNames are the QEMU options that may be given more than once.
var repeatableNames = []string{
	"chardev",
	"device",
	"drive",
	"global",
	"netdev",
	"object",
	"serial",
}

// boardNames are the QEMU options derived from the [BoardProfile] and the
// launch mode. Extra arguments must not set them, as the launcher relies on
// their values, e.g. the serial channel order for finding the bridged pty.
var boardNames = []string{
	"S",
	"gdb",
	"kernel",
	"machine",
	"monitor",
	"nographic",
	"serial",
}

// Argument is a single QEMU option with an optional value.
type Argument struct {
	name       string
	value      string
	repeatable bool
}

// UniqueArg returns an [Argument] that may occur only once in a command line.
// Multiple values are joined with ",".
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns an [Argument] that may occur multiple times in a
// command line, as long as the values differ.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:       name,
		value:      strings.Join(value, ","),
		repeatable: true,
	}
}

// ParseArgument parses an option given as "name=value" or "name". Leading
// dashes of the name are dropped. Whether the option is repeatable is decided
// by the name.
func ParseArgument(s string) (Argument, error) {
	name, value, _ := strings.Cut(strings.TrimLeft(s, "-"), "=")
	if name == "" {
		return Argument{}, &ArgumentError{fmt.Sprintf("no option name in %q", s)}
	}

	if slices.Contains(repeatableNames, name) {
		return RepeatableArg(name, value), nil
	}

	return UniqueArg(name, value), nil
}

// String returns the argument as it would be typed on a command line.
func (a Argument) String() string {
	if a.value == "" {
		return "-" + a.name
	}

	return "-" + a.name + " " + a.value
}

// Name returns the option name without leading dash.
func (a Argument) Name() string {
	return a.name
}

// Value returns the option value. It is empty for flags like "-S".
func (a Argument) Value() string {
	return a.value
}

// Repeatable returns if the option may occur multiple times.
func (a Argument) Repeatable() bool {
	return a.repeatable
}

// collides reports if both arguments may not be used together.
func (a Argument) collides(other Argument) bool {
	if a.name != other.name {
		return false
	}

	return !a.repeatable || a.value == other.value
}

func (a Argument) appendTo(dst []string) []string {
	dst = append(dst, "-"+a.name)
	if a.value != "" {
		dst = append(dst, a.value)
	}

	return dst
}

// Arguments is an ordered QEMU command line.
type Arguments []Argument

// Strings returns the command line as it is passed to [exec.Command].
//
// It fails with [ErrArgumentCollision] if a unique option occurs more than
// once or a repeatable option occurs more than once with the same value.
func (a Arguments) Strings() ([]string, error) {
	strs := make([]string, 0, 2*len(a))

	for idx, arg := range a {
		prev := slices.IndexFunc(a[:idx], arg.collides)
		if prev != -1 {
			return nil, fmt.Errorf("%w: %s, %s",
				ErrArgumentCollision, a[prev], arg)
		}

		strs = arg.appendTo(strs)
	}

	return strs, nil
}

// Lookup returns the value of the first argument with the given name.
func (a Arguments) Lookup(name string) (string, bool) {
	idx := slices.IndexFunc(a, func(arg Argument) bool {
		return arg.name == name
	})
	if idx == -1 {
		return "", false
	}

	return a[idx].value, true
}

// checkExtra makes sure the extra arguments do not set any option owned by
// the board profile.
func checkExtra(extra []Argument) error {
	for _, arg := range extra {
		if slices.Contains(boardNames, arg.name) {
			return fmt.Errorf("%w: %s is set by the board profile",
				ErrArgumentCollision, arg)
		}
	}

	return nil
}
