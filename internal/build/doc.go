// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package build produces kernel images: a symbol-bearing ELF executable for
// the debugger and a raw binary for the emulator.
//
// Compiling and converting are delegated to a [Toolchain]. The [Builder]
// stages both artifacts first and only replaces the previous pair once both
// have been produced, so a failed build never leaves a partial pair behind.
package build
