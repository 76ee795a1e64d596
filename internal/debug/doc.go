// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package debug bridges a running emulator's debug stub to a debugging
// session with symbol information of the kernel executable.
//
// A [Session] controls the target through the remote serial protocol. A
// [Frontend] hands the stub to an external cross-architecture debugger
// instead. Only one of them may be connected to a debug port at a time.
package debug
