// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipe provides concurrent copying of output streams of the emulator,
// like its stderr and the bridged serial channel, to their host side
// destinations. Streams that are expected to produce output but stay silent
// are reported.
package pipe
