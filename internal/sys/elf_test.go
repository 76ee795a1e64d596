// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys_test

import (
	"debug/elf"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/kernrun/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadELFInfo(t *testing.T) {
	tests := []struct {
		name        string
		path        func(t *testing.T) string
		expected    sys.ELFInfo
		expectedErr error
	}{
		{
			name: "arm64 with symbols",
			path: func(t *testing.T) string {
				return sys.WriteTestELF(t, "kernel.elf", sys.TestELF{
					Machine: elf.EM_AARCH64,
					Entry:   0x80000,
					Text:    make([]byte, 16),
					Symbols: []sys.TestSymbol{{Name: "kmain", Value: 0x80008}},
				})
			},
			expected: sys.ELFInfo{
				Arch:       sys.ARM64,
				Entry:      0x80000,
				HasSymbols: true,
			},
		},
		{
			name: "amd64 stripped",
			path: func(t *testing.T) string {
				return sys.WriteTestELF(t, "kernel.elf", sys.TestELF{
					Machine: elf.EM_X86_64,
					Entry:   0x1000,
					Text:    make([]byte, 8),
				})
			},
			expected: sys.ELFInfo{
				Arch:  sys.AMD64,
				Entry: 0x1000,
			},
		},
		{
			name: "unsupported machine",
			path: func(t *testing.T) string {
				return sys.WriteTestELF(t, "kernel.elf", sys.TestELF{
					Machine: elf.EM_MIPS,
					Text:    make([]byte, 8),
				})
			},
			expectedErr: sys.ErrMachineNotSupported,
		},
		{
			name: "raw binary",
			path: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "kernel.bin")
				require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x20, 0x03, 0xd5}, 0o644))

				return path
			},
			expectedErr: sys.ErrNotELFFile,
		},
		{
			name: "empty file",
			path: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "empty")
				require.NoError(t, os.WriteFile(path, nil, 0o644))

				return path
			},
			expectedErr: sys.ErrNotELFFile,
		},
		{
			name: "missing",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing")
			},
			expectedErr: fs.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := sys.ReadELFInfo(tt.path(t))
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestValidateELFArch(t *testing.T) {
	path := sys.WriteTestELF(t, "kernel.elf", sys.TestELF{
		Machine: elf.EM_AARCH64,
		Text:    make([]byte, 4),
	})

	require.NoError(t, sys.ValidateELFArch(path, sys.ARM64))
	require.ErrorIs(t, sys.ValidateELFArch(path, sys.RISCV64),
		sys.ErrMachineNotSupported)
}
