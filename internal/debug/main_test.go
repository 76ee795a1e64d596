// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug_test

import (
	"debug/elf"
	"testing"

	"github.com/aibor/kernrun/internal/debug"
	"github.com/aibor/kernrun/internal/sys"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	kmainMangled = "_ZN4kern5kmain17h0123456789abcdefE"
	kmainAddr    = 0x80010
	panicAddr    = 0x80040
)

func writeKernel(tb testing.TB, machine elf.Machine) string {
	tb.Helper()

	return sys.WriteTestELF(tb, "kernel.elf", sys.TestELF{
		Machine: machine,
		Entry:   0x80000,
		Text:    make([]byte, 0x80),
		Symbols: []sys.TestSymbol{
			{Name: "_start", Value: 0x80000, Size: 0x10},
			{Name: kmainMangled, Value: kmainAddr, Size: 0x30},
			{Name: "$x", Value: kmainAddr},
			{Name: "rust_begin_unwind", Value: panicAddr},
			{Name: "_ZN4kern4uart5write17h00112233445566ffE", Value: 0x80060, Size: 0x20},
		},
	})
}

func useTempLockDir(tb testing.TB) {
	tb.Helper()

	previous := debug.LockDir
	debug.LockDir = tb.TempDir()

	tb.Cleanup(func() { debug.LockDir = previous })
}
