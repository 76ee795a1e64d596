// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"regexp"

	"github.com/pkg/term"
)

// serialAnnouncementRE matches the line QEMU prints to stderr for every
// character device connected to a pseudo-terminal.
var serialAnnouncementRE = regexp.MustCompile(
	`char device redirected to (/dev/\S+) \(label ([^)]+)\)`)

// parseSerialAnnouncement returns the pseudo-terminal path and the device
// label of an announcement line.
func parseSerialAnnouncement(line []byte) (string, string, bool) {
	match := serialAnnouncementRE.FindSubmatch(line)
	if match == nil {
		return "", "", false
	}

	return string(match[1]), string(match[2]), true
}

// OpenSerial opens the pseudo-terminal at the given path in raw mode.
//
// The returned terminal must be closed by the caller. Reads return an error
// once the emulator terminates.
func OpenSerial(path string) (*term.Term, error) {
	serial, err := term.Open(path, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}

	return serial, nil
}
