// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package exitcode maps the termination of child processes to exit codes, so
// kernrun can exit with the same code as the emulator it ran.
package exitcode
