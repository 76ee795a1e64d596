// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/aibor/kernrun/internal/qemu"
	"github.com/aibor/kernrun/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaspberryPi3(t *testing.T) {
	board := qemu.RaspberryPi3()

	require.NoError(t, board.Validate())
	assert.Equal(t, "qemu-system-aarch64", board.Executable)
	assert.Equal(t, sys.ARM64, board.Arch)
	assert.Equal(t, "raspi3b", board.Machine)
	assert.False(t, board.Graphics)
	assert.Equal(t, uint64(0x80000), board.LoadAddress)
	assert.Equal(t, int64(0x4000000-0x80000), board.MaxImageSize)
	assert.Equal(t,
		[]qemu.SerialChannel{qemu.SerialDiscarded, qemu.SerialBridged},
		board.SerialChannels)
}

func TestBoardProfile_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*qemu.BoardProfile)
	}{
		{
			name:   "no executable",
			modify: func(b *qemu.BoardProfile) { b.Executable = "" },
		},
		{
			name:   "no machine",
			modify: func(b *qemu.BoardProfile) { b.Machine = "" },
		},
		{
			name: "no bridged channel",
			modify: func(b *qemu.BoardProfile) {
				b.SerialChannels = []qemu.SerialChannel{qemu.SerialDiscarded}
			},
		},
		{
			name: "two bridged channels",
			modify: func(b *qemu.BoardProfile) {
				b.SerialChannels = []qemu.SerialChannel{
					qemu.SerialBridged,
					qemu.SerialBridged,
				}
			},
		},
		{
			name: "unknown channel",
			modify: func(b *qemu.BoardProfile) {
				b.SerialChannels = []qemu.SerialChannel{"fancy", qemu.SerialBridged}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := qemu.RaspberryPi3()
			tt.modify(&board)

			err := board.Validate()
			require.ErrorIs(t, err, &qemu.ArgumentError{})
		})
	}
}
