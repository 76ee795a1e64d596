// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// TestSymbol is a function symbol written by [WriteTestELF].
type TestSymbol struct {
	Name  string
	Value uint64
	Size  uint64
}

// TestELF describes a minimal ELF executable written by [WriteTestELF].
type TestELF struct {
	Machine elf.Machine
	Entry   uint64
	Text    []byte
	Symbols []TestSymbol
}

// WriteTestELF writes a minimal 64 bit little endian ELF executable into a
// new file in the test's temporary directory and returns its path.
//
// The file has a single .text section located at the entry address. If
// symbols are given, a .symtab and a .strtab section are added.
func WriteTestELF(tb testing.TB, name string, spec TestELF) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)

	err := os.WriteFile(path, spec.bytes(), 0o755)
	if err != nil {
		tb.Fatalf("write test ELF %s: %v", path, err)
	}

	return path
}

type testStringTable struct {
	bytes.Buffer
}

func (t *testStringTable) add(s string) uint32 {
	if t.Len() == 0 {
		t.WriteByte(0)
	}

	off := uint32(t.Len())
	t.WriteString(s)
	t.WriteByte(0)

	return off
}

func (s TestELF) bytes() []byte {
	const (
		headerSize  = 64
		sectionSize = 64
		symbolSize  = 24
	)

	var (
		shstrtab testStringTable
		strtab   testStringTable
		symtab   bytes.Buffer
		sections []elf.Section64
		data     bytes.Buffer
	)

	offset := func() uint64 { return uint64(headerSize + data.Len()) }

	sections = append(sections, elf.Section64{})
	shstrtab.add("")

	sections = append(sections, elf.Section64{
		Name:      shstrtab.add(".text"),
		Type:      uint32(elf.SHT_PROGBITS),
		Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr:      s.Entry,
		Off:       offset(),
		Size:      uint64(len(s.Text)),
		Addralign: 4,
	})
	data.Write(s.Text)

	if len(s.Symbols) > 0 {
		_ = binary.Write(&symtab, binary.LittleEndian, elf.Sym64{})

		for _, sym := range s.Symbols {
			_ = binary.Write(&symtab, binary.LittleEndian, elf.Sym64{
				Name:  strtab.add(sym.Name),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
				Shndx: 1,
				Value: sym.Value,
				Size:  sym.Size,
			})
		}

		symtabIdx := len(sections)
		sections = append(sections, elf.Section64{
			Name:      shstrtab.add(".symtab"),
			Type:      uint32(elf.SHT_SYMTAB),
			Off:       offset(),
			Size:      uint64(symtab.Len()),
			Link:      uint32(symtabIdx + 1),
			Info:      1,
			Addralign: 8,
			Entsize:   symbolSize,
		})
		data.Write(symtab.Bytes())

		sections = append(sections, elf.Section64{
			Name:      shstrtab.add(".strtab"),
			Type:      uint32(elf.SHT_STRTAB),
			Off:       offset(),
			Size:      uint64(strtab.Len()),
			Addralign: 1,
		})
		data.Write(strtab.Bytes())
	}

	shstrtabIdx := len(sections)
	shstrtabName := shstrtab.add(".shstrtab")
	sections = append(sections, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       offset(),
		Size:      uint64(shstrtab.Len()),
		Addralign: 1,
	})
	data.Write(shstrtab.Bytes())

	for data.Len()%8 != 0 {
		data.WriteByte(0)
	}

	header := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(s.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     s.Entry,
		Shoff:     offset(),
		Ehsize:    headerSize,
		Phentsize: 56,
		Shentsize: sectionSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(shstrtabIdx),
	}
	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer

	_ = binary.Write(&out, binary.LittleEndian, header)
	out.Write(data.Bytes())

	for _, section := range sections {
		_ = binary.Write(&out, binary.LittleEndian, section)
	}

	return out.Bytes()
}
