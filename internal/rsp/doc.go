// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rsp implements the client side of the GDB remote serial protocol as
// far as needed to control a bare-metal target through an emulator's debug
// stub: execution control, registers, memory and software breakpoints.
//
// Breakpoints and single stepping are implemented by the stub. The client only
// sends the commands.
package rsp
