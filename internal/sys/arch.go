// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"debug/elf"
	"runtime"
)

// Arch is an instruction set architecture of a kernel image or a host.
type Arch string

// Supported target architectures.
const (
	AMD64   Arch = "amd64"
	ARM64   Arch = "arm64"
	RISCV64 Arch = "riscv64"
)

// Native is the architecture of the host.
const Native Arch = Arch(runtime.GOARCH)

func (a *Arch) String() string {
	return string(*a)
}

// IsNative returns true if the architecture is the host's architecture.
func (a *Arch) IsNative() bool {
	return Native == *a
}

// Set implements [flag.Value].
func (a *Arch) Set(s string) error {
	switch Arch(s) {
	case AMD64, ARM64, RISCV64:
		*a = Arch(s)
	default:
		return ErrArchNotSupported
	}

	return nil
}

// Type implements [pflag.Value].
func (*Arch) Type() string {
	return "arch"
}

// Machine returns the ELF machine type of the architecture.
func (a *Arch) Machine() elf.Machine {
	switch *a {
	case AMD64:
		return elf.EM_X86_64
	case ARM64:
		return elf.EM_AARCH64
	case RISCV64:
		return elf.EM_RISCV
	default:
		return elf.EM_NONE
	}
}

// GDBArchitecture returns the architecture name a remote debug stub reports
// for the architecture in its target description.
func (a *Arch) GDBArchitecture() string {
	switch *a {
	case AMD64:
		return "i386:x86-64"
	case ARM64:
		return "aarch64"
	case RISCV64:
		return "riscv:rv64"
	default:
		return ""
	}
}

// ArchFromMachine returns the [Arch] for the given ELF machine type.
func ArchFromMachine(machine elf.Machine) (Arch, error) {
	switch machine {
	case elf.EM_X86_64:
		return AMD64, nil
	case elf.EM_AARCH64:
		return ARM64, nil
	case elf.EM_RISCV:
		return RISCV64, nil
	default:
		return "", ErrMachineNotSupported
	}
}
