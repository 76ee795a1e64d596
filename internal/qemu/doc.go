// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu provides utilities for composing and running QEMU system
// emulation commands for a fixed board profile. It expects the required QEMU
// binary to be present on the system.
//
// The emulated board has two serial channels. The first one is discarded, the
// second one is bridged either to a pseudo-terminal or to the controlling
// terminal of the harness. The kernel is expected to write its output to the
// second UART (the mini UART on the Raspberry Pi 3).
//
// The emulator runs in its own process group and never outlives the process
// that started it.
package qemu
