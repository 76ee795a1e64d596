// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/aibor/kernrun/internal/sys"
)

// Symbol is a named address of the kernel executable.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// lineEntry maps an address to a source line. End of sequence entries have an
// empty file and terminate the range of the previous entry.
type lineEntry struct {
	Addr uint64
	File string
	Line int
}

// Symbols is the symbol table and the line table of a kernel executable.
type Symbols struct {
	Entry uint64

	byName map[string]Symbol
	byAddr []Symbol
	lines  []lineEntry
}

// LoadSymbols reads the symbols of the ELF executable at the given path. The
// executable must be built for the given architecture.
//
// Raw binaries carry no symbols and result in [ErrNoSymbols]. Missing DWARF
// line information is not an error. Locations have no source lines then.
func LoadSymbols(path string, arch sys.Arch) (*Symbols, error) {
	elfFile, err := sys.OpenELF(path)
	if err != nil {
		if errors.Is(err, sys.ErrNotELFFile) {
			return nil, fmt.Errorf("%w: %w", ErrNoSymbols, err)
		}

		return nil, fmt.Errorf("open executable: %w", err)
	}
	defer elfFile.Close()

	if elfFile.Machine != arch.Machine() {
		return nil, fmt.Errorf("%w: %s is built for %s, want %s",
			ErrArchMismatch, path, elfFile.Machine, arch.Machine())
	}

	elfSymbols, err := elfFile.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("%w: %s", ErrNoSymbols, path)
		}

		return nil, fmt.Errorf("read symbols: %w", err)
	}

	symbols := &Symbols{
		Entry:  elfFile.Entry,
		byName: map[string]Symbol{},
	}

	for _, elfSymbol := range elfSymbols {
		if !isCodeSymbol(elfSymbol) {
			continue
		}

		symbol := Symbol{
			Name: elfSymbol.Name,
			Addr: elfSymbol.Value,
			Size: elfSymbol.Size,
		}

		symbols.byName[symbol.Name] = symbol
		symbols.byAddr = append(symbols.byAddr, symbol)
	}

	if len(symbols.byAddr) == 0 {
		return nil, fmt.Errorf("%w: %s has no code symbols", ErrNoSymbols, path)
	}

	slices.SortStableFunc(symbols.byAddr, func(a, b Symbol) int {
		return compareUint64(a.Addr, b.Addr)
	})

	symbols.lines, err = readLineTable(elfFile)
	if err != nil {
		slog.Warn("Failed to read line table, source lines not available",
			slog.String("path", path),
			slog.Any("error", err))
	}

	return symbols, nil
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// isCodeSymbol filters the symbols that can be breakpoint targets. Mapping
// symbols like "$x" and "$d" are skipped.
func isCodeSymbol(symbol elf.Symbol) bool {
	if symbol.Name == "" || strings.HasPrefix(symbol.Name, "$") {
		return false
	}

	if symbol.Section == elf.SHN_UNDEF || symbol.Section >= elf.SHN_LORESERVE {
		return false
	}

	switch elf.ST_TYPE(symbol.Info) {
	case elf.STT_FUNC, elf.STT_NOTYPE:
		return true
	default:
		return false
	}
}

// readLineTable reads the DWARF line tables of all compile units. It returns
// nil if the executable has no DWARF data.
func readLineTable(elfFile *elf.File) ([]lineEntry, error) {
	if elfFile.Section(".debug_info") == nil {
		return nil, nil
	}

	dwarfData, err := elfFile.DWARF()
	if err != nil {
		return nil, fmt.Errorf("read DWARF: %w", err)
	}

	var lines []lineEntry

	reader := dwarfData.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("read DWARF entry: %w", err)
		}

		if entry == nil {
			break
		}

		if entry.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		lineReader, err := dwarfData.LineReader(entry)
		if err != nil {
			return nil, fmt.Errorf("read line table: %w", err)
		}

		if lineReader == nil {
			continue
		}

		var lineEntry dwarf.LineEntry

		for {
			err := lineReader.Next(&lineEntry)
			if errors.Is(err, io.EOF) {
				break
			}

			if err != nil {
				return nil, fmt.Errorf("read line entry: %w", err)
			}

			lines = append(lines, newLineEntry(lineEntry))
		}

		reader.SkipChildren()
	}

	slices.SortStableFunc(lines, func(a, b lineEntry) int {
		return compareUint64(a.Addr, b.Addr)
	})

	return lines, nil
}

func newLineEntry(entry dwarf.LineEntry) lineEntry {
	if entry.EndSequence || entry.File == nil {
		return lineEntry{Addr: entry.Address}
	}

	return lineEntry{
		Addr: entry.Address,
		File: entry.File.Name,
		Line: entry.Line,
	}
}

// Lookup returns the symbol with the given name.
//
// Besides the exact name, the demangled path of Rust symbols and unique path
// suffixes are matched, so "kmain" finds "kern::kmain".
func (s *Symbols) Lookup(name string) (Symbol, bool) {
	if symbol, exists := s.byName[name]; exists {
		return symbol, true
	}

	var (
		found   Symbol
		matches int
	)

	for _, symbol := range s.byAddr {
		demangled := demangle(symbol.Name)
		if demangled == name || strings.HasSuffix(demangled, "::"+name) {
			found = symbol
			matches++
		}
	}

	return found, matches == 1
}

// Resolve returns the symbol the given address belongs to and the offset of
// the address in the symbol.
//
// Of all symbols at the closest address below, a sized symbol covering the
// address is preferred over a symbol without size.
func (s *Symbols) Resolve(addr uint64) (Symbol, uint64, bool) {
	// Index of the first symbol above the address.
	idx, _ := slices.BinarySearchFunc(s.byAddr, addr+1, func(symbol Symbol, target uint64) int {
		return compareUint64(symbol.Addr, target)
	})
	if idx == 0 {
		return Symbol{}, 0, false
	}

	base := s.byAddr[idx-1].Addr

	var (
		unsized Symbol
		found   bool
	)

	for i := idx - 1; i >= 0 && s.byAddr[i].Addr == base; i-- {
		symbol := s.byAddr[i]

		switch {
		case symbol.Size > 0 && addr < symbol.Addr+symbol.Size:
			return symbol, addr - base, true
		case symbol.Size == 0 && !found:
			unsized, found = symbol, true
		}
	}

	if !found {
		return Symbol{}, 0, false
	}

	return unsized, addr - base, true
}

// line returns the source line of the given address.
func (s *Symbols) line(addr uint64) (string, int, bool) {
	idx, found := slices.BinarySearchFunc(s.lines, addr, func(entry lineEntry, target uint64) int {
		return compareUint64(entry.Addr, target)
	})

	if !found {
		idx--
	} else {
		// Use the last entry for the same address.
		for idx+1 < len(s.lines) && s.lines[idx+1].Addr == addr {
			idx++
		}
	}

	if idx < 0 || s.lines[idx].File == "" {
		return "", 0, false
	}

	return s.lines[idx].File, s.lines[idx].Line, true
}

// Location returns the [Location] of the given address.
func (s *Symbols) Location(addr uint64) Location {
	location := Location{Addr: addr}

	symbol, offset, found := s.Resolve(addr)
	if found {
		location.Symbol = demangle(symbol.Name)
		location.Offset = offset
	}

	location.File, location.Line, _ = s.line(addr)

	return location
}

// demangle returns the path of legacy mangled Rust symbols, like "kern::kmain"
// for "_ZN4kern5kmain17h0123456789abcdefE". Other names are returned as is.
func demangle(name string) string {
	if !strings.HasPrefix(name, "_ZN") || !strings.HasSuffix(name, "E") {
		return name
	}

	rest := name[3 : len(name)-1]

	var parts []string

	for rest != "" {
		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}

		length, err := strconv.Atoi(rest[:digits])
		if err != nil || digits+length > len(rest) {
			return name
		}

		parts = append(parts, rest[digits:digits+length])
		rest = rest[digits+length:]
	}

	// Drop the hash.
	if last := len(parts) - 1; last > 0 && strings.HasPrefix(parts[last], "h") && len(parts[last]) == 17 {
		parts = parts[:last]
	}

	return strings.Join(parts, "::")
}
