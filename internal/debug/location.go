// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package debug

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Location describes an address in terms of the kernel's symbols and
// sources.
type Location struct {
	Addr   uint64
	Symbol string
	Offset uint64
	File   string
	Line   int
}

// String implements [fmt.Stringer].
func (l Location) String() string {
	s := fmt.Sprintf("%#x", l.Addr)

	if l.Symbol != "" {
		s += " in " + l.Symbol
		if l.Offset != 0 {
			s += fmt.Sprintf("+%#x", l.Offset)
		}
	}

	if l.File != "" {
		s += " at " + l.File + ":" + strconv.Itoa(l.Line)
	}

	return s
}

// sourceLine returns the text of the given line of the source file. It is
// not found if the file is not available on this host.
func sourceLine(path string, line int) (string, bool) {
	if path == "" || line < 1 {
		return "", false
	}

	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	for current := 1; scanner.Scan(); current++ {
		if current == line {
			return strings.TrimRight(scanner.Text(), " \t"), true
		}
	}

	return "", false
}
