// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"encoding/xml"
	"fmt"
)

// targetDescription is the part of the GDB target description XML the client
// cares about.
type targetDescription struct {
	XMLName      xml.Name `xml:"target"`
	Architecture string   `xml:"architecture"`
}

// parseTargetArchitecture returns the architecture named in the given target
// description document, like "aarch64".
func parseTargetArchitecture(document []byte) (string, error) {
	var desc targetDescription

	err := xml.Unmarshal(document, &desc)
	if err != nil {
		return "", fmt.Errorf("%w: target description: %w", ErrInvalidReply, err)
	}

	if desc.Architecture == "" {
		return "", fmt.Errorf("%w: target description without architecture",
			ErrInvalidReply)
	}

	return desc.Architecture, nil
}
