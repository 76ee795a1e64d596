// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aibor/kernrun/internal/qemu"
)

// LimitedIntValue is a [pflag.Value] for integers within the inclusive range
// from Lower to Upper.
type LimitedIntValue struct {
	Value        *int
	Lower, Upper int
}

func (v *LimitedIntValue) String() string {
	if v.Value == nil {
		return "0"
	}

	return strconv.Itoa(*v.Value)
}

func (v *LimitedIntValue) Set(s string) error {
	value, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if value < v.Lower {
		return fmt.Errorf("%d < %d: %w", value, v.Lower, ErrValueOutOfRange)
	}

	if value > v.Upper {
		return fmt.Errorf("%d > %d: %w", value, v.Upper, ErrValueOutOfRange)
	}

	*v.Value = value

	return nil
}

func (*LimitedIntValue) Type() string {
	return "int"
}

func portValue(port *int) *LimitedIntValue {
	return &LimitedIntValue{Value: port, Lower: 1, Upper: 65535} //nolint:mnd
}

// QemuArgsValue is a [pflag.Value] for additional QEMU arguments in the form
// "name=value" or "name". A leading "-" of the name is optional.
type QemuArgsValue struct {
	Args *[]qemu.Argument
}

func (v *QemuArgsValue) String() string {
	if v.Args == nil {
		return ""
	}

	strs := make([]string, 0, len(*v.Args))
	for _, arg := range *v.Args {
		strs = append(strs, arg.String())
	}

	return strings.Join(strs, " ")
}

func (v *QemuArgsValue) Set(s string) error {
	if strings.TrimLeft(s, "-") == "" {
		return fmt.Errorf("qemu argument %q: %w", s, ErrEmptyValue)
	}

	arg, err := qemu.ParseArgument(s)
	if err != nil {
		return err
	}

	*v.Args = append(*v.Args, arg)

	return nil
}

func (*QemuArgsValue) Type() string {
	return "qemu-arg"
}
