// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"github.com/aibor/kernrun/internal/sys"
)

// SerialChannel defines what a serial port of the board is connected to.
type SerialChannel string

const (
	// SerialDiscarded drops all output of the port.
	SerialDiscarded SerialChannel = "discarded"

	// SerialBridged connects the port to a pseudo-terminal or, for
	// interactive sessions, to the controlling terminal of the harness.
	SerialBridged SerialChannel = "bridged"
)

// Raspberry Pi 3 constants.
const (
	RaspberryPi3Machine     = "raspi3b"
	RaspberryPi3LoadAddress = 0x80000

	// The firmware places the kernel at the load address and everything up
	// to 64 MiB is usable for the image.
	RaspberryPi3MaxImageSize = 0x4000000 - RaspberryPi3LoadAddress
)

// BoardProfile is the fixed hardware configuration the emulator is started
// with.
type BoardProfile struct {
	// Executable is the name or path of the qemu-system binary.
	Executable string

	// Arch is the architecture of the board's CPU.
	Arch sys.Arch

	// Machine is the QEMU machine type.
	Machine string

	// Graphics enables the graphical output. If disabled, QEMU runs with
	// "-nographic".
	Graphics bool

	// SerialChannels are the serial ports of the board in order. Exactly one
	// must be [SerialBridged].
	SerialChannels []SerialChannel

	// LoadAddress is the address the kernel binary is loaded to.
	LoadAddress uint64

	// MaxImageSize is the maximum size of the kernel binary in bytes.
	MaxImageSize int64

	// SDImage is an optional raw disk image attached as SD card.
	SDImage string
}

// RaspberryPi3 returns the [BoardProfile] of the Raspberry Pi 3 Model B.
//
// The first UART (PL011) is discarded. The second one (mini UART) is bridged.
func RaspberryPi3() BoardProfile {
	return BoardProfile{
		Executable:     "qemu-system-aarch64",
		Arch:           sys.ARM64,
		Machine:        RaspberryPi3Machine,
		Graphics:       false,
		SerialChannels: []SerialChannel{SerialDiscarded, SerialBridged},
		LoadAddress:    RaspberryPi3LoadAddress,
		MaxImageSize:   RaspberryPi3MaxImageSize,
	}
}

// Validate checks the profile for consistency.
func (b *BoardProfile) Validate() error {
	if b.Executable == "" {
		return &ArgumentError{"no emulator executable"}
	}

	if b.Machine == "" {
		return &ArgumentError{"no machine type"}
	}

	bridged := 0

	for _, channel := range b.SerialChannels {
		switch channel {
		case SerialBridged:
			bridged++
		case SerialDiscarded:
		default:
			return &ArgumentError{"unknown serial channel: " + string(channel)}
		}
	}

	if bridged != 1 {
		return &ArgumentError{"exactly one serial channel must be bridged"}
	}

	return nil
}

// bridgedSerialLabel returns the label QEMU assigns to the bridged serial
// channel's character device.
func (b *BoardProfile) bridgedSerialLabel() string {
	for idx, channel := range b.SerialChannels {
		if channel == SerialBridged {
			return serialLabel(idx)
		}
	}

	return ""
}
