// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import (
	"context"
	"debug/elf"
	"os"
	"testing"

	"github.com/aibor/kernrun/internal/sys"
)

// FakeToolchain is a [Toolchain] that writes fixed artifacts instead of
// running any tools. It is meant for tests of code that builds kernels.
type FakeToolchain struct {
	CheckErr   error
	CompileErr error
	ConvertErr error

	// Executable is written as compiler output.
	Executable []byte

	// Binary is written as converter output.
	Binary []byte
}

var _ Toolchain = (*FakeToolchain)(nil)

// NewFakeToolchain returns a [FakeToolchain] that produces a minimal ELF
// executable for the given machine with a "_start" symbol at 0x80000 and a
// single instruction as raw binary.
func NewFakeToolchain(tb testing.TB, machine elf.Machine, symbols ...sys.TestSymbol) *FakeToolchain {
	tb.Helper()

	text := []byte{0x1f, 0x20, 0x03, 0xd5}

	path := sys.WriteTestELF(tb, "kernel", sys.TestELF{
		Machine: machine,
		Entry:   0x80000,
		Text:    text,
		Symbols: append([]sys.TestSymbol{{Name: "_start", Value: 0x80000, Size: 4}}, symbols...),
	})

	executable, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read test ELF: %v", err)
	}

	return &FakeToolchain{
		Executable: executable,
		Binary:     text,
	}
}

// Check implements [Toolchain].
func (f *FakeToolchain) Check() error {
	return f.CheckErr
}

// Compile implements [Toolchain].
func (f *FakeToolchain) Compile(_ context.Context, _ Target, _ Profile, output string) error {
	if f.CompileErr != nil {
		return f.CompileErr
	}

	return os.WriteFile(output, f.Executable, 0o755) //nolint:wrapcheck
}

// Convert implements [Toolchain].
func (f *FakeToolchain) Convert(_ context.Context, _, output string) error {
	if f.ConvertErr != nil {
		return f.ConvertErr
	}

	return os.WriteFile(output, f.Binary, 0o644) //nolint:wrapcheck,gosec
}
