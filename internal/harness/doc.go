// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package harness ties the image builder, the emulator launcher and the
// debug bridge together into the build, launch and debug cycle.
package harness
