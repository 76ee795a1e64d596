// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
)

// ELFInfo summarizes the properties of an ELF file relevant for booting and
// debugging it.
type ELFInfo struct {
	Arch       Arch
	Entry      uint64
	HasSymbols bool
	HasDWARF   bool
}

// OpenELF opens the file at the given path as ELF file.
//
// It returns [ErrNotELFFile] if the file does not start with the ELF magic
// number, which is the case for raw binary images.
func OpenELF(path string) (*elf.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	magic := make([]byte, len(elf.ELFMAG))

	_, err = io.ReadFull(file, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = file.Close()
		return nil, fmt.Errorf("read magic: %w", err)
	}

	if !bytes.Equal(magic, []byte(elf.ELFMAG)) {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotELFFile)
	}

	_ = file.Close()

	elfFile, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}

	return elfFile, nil
}

// ReadELFInfo reads the [ELFInfo] of the ELF file at the given path.
func ReadELFInfo(path string) (ELFInfo, error) {
	elfFile, err := OpenELF(path)
	if err != nil {
		return ELFInfo{}, err
	}
	defer elfFile.Close()

	arch, err := ArchFromMachine(elfFile.Machine)
	if err != nil {
		return ELFInfo{}, fmt.Errorf("%w: %s", err, elfFile.Machine)
	}

	info := ELFInfo{
		Arch:       arch,
		Entry:      elfFile.Entry,
		HasSymbols: elfFile.Section(".symtab") != nil,
		HasDWARF:   elfFile.Section(".debug_info") != nil,
	}

	return info, nil
}

// ReadELFArch returns the [Arch] of the ELF file at the given path.
func ReadELFArch(path string) (Arch, error) {
	info, err := ReadELFInfo(path)
	if err != nil {
		return "", err
	}

	return info.Arch, nil
}

// ValidateELFArch validates that the ELF file at the given path is built for
// the given architecture.
func ValidateELFArch(path string, arch Arch) error {
	actual, err := ReadELFArch(path)
	if err != nil {
		return err
	}

	if actual != arch {
		return fmt.Errorf("%w: %s on %s", ErrMachineNotSupported, actual, arch)
	}

	return nil
}
