// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/aibor/kernrun/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArguments_Strings(t *testing.T) {
	tests := []struct {
		name        string
		args        qemu.Arguments
		expected    []string
		expectedErr error
	}{
		{
			name:     "empty",
			args:     qemu.Arguments{},
			expected: []string{},
		},
		{
			name: "unique with and without value",
			args: qemu.Arguments{
				qemu.UniqueArg("nographic"),
				qemu.UniqueArg("machine", "raspi3b"),
			},
			expected: []string{"-nographic", "-machine", "raspi3b"},
		},
		{
			name: "repeatable with different values",
			args: qemu.Arguments{
				qemu.RepeatableArg("serial", "null"),
				qemu.RepeatableArg("serial", "pty"),
			},
			expected: []string{"-serial", "null", "-serial", "pty"},
		},
		{
			name: "multi value",
			args: qemu.Arguments{
				qemu.RepeatableArg("drive", "file=sd.img", "format=raw", "if=sd"),
			},
			expected: []string{"-drive", "file=sd.img,format=raw,if=sd"},
		},
		{
			name: "repeatable with same values",
			args: qemu.Arguments{
				qemu.RepeatableArg("serial", "pty"),
				qemu.RepeatableArg("serial", "pty"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
		{
			name: "unique with different values",
			args: qemu.Arguments{
				qemu.UniqueArg("kernel", "a.bin"),
				qemu.UniqueArg("kernel", "b.bin"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := tt.args.Strings()
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestArguments_Lookup(t *testing.T) {
	args := qemu.Arguments{
		qemu.UniqueArg("S"),
		qemu.UniqueArg("gdb", "tcp::1234"),
	}

	value, found := args.Lookup("gdb")
	assert.True(t, found)
	assert.Equal(t, "tcp::1234", value)

	value, found = args.Lookup("S")
	assert.True(t, found)
	assert.Empty(t, value)

	_, found = args.Lookup("kernel")
	assert.False(t, found)
}

func TestParseArgument(t *testing.T) {
	tests := []struct {
		input      string
		name       string
		value      string
		repeatable bool
	}{
		{input: "d=int,guest_errors", name: "d", value: "int,guest_errors"},
		{input: "-no-reboot", name: "no-reboot"},
		{input: "--device=loader,addr=0x0", name: "device", value: "loader,addr=0x0", repeatable: true},
		{input: "drive=file=sd.img,if=sd", name: "drive", value: "file=sd.img,if=sd", repeatable: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			arg, err := qemu.ParseArgument(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.name, arg.Name())
			assert.Equal(t, tt.value, arg.Value())
			assert.Equal(t, tt.repeatable, arg.Repeatable())
		})
	}

	_, err := qemu.ParseArgument("--=x")
	require.ErrorIs(t, err, &qemu.ArgumentError{})
}

func TestArgument_String(t *testing.T) {
	assert.Equal(t, "-S", qemu.UniqueArg("S").String())
	assert.Equal(t, "-gdb tcp::1234", qemu.UniqueArg("gdb", "tcp::1234").String())
}
