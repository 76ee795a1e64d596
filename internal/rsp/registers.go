// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AArch64RegistersSize is the size of the core registers in a "g" reply of an
// aarch64 target.
const AArch64RegistersSize = 31*8 + 8 + 8 + 4

// AArch64Registers are the core registers of an aarch64 target in the order
// of the "org.gnu.gdb.aarch64.core" feature.
type AArch64Registers struct {
	X    [31]uint64
	SP   uint64
	PC   uint64
	CPSR uint32
}

// ParseAArch64Registers parses the raw register data of a "g" reply. Data
// following the core registers, like floating point registers, is ignored.
func ParseAArch64Registers(raw []byte) (AArch64Registers, error) {
	var regs AArch64Registers

	if len(raw) < AArch64RegistersSize {
		return regs, fmt.Errorf("%w: %d bytes of register data, want %d",
			ErrInvalidReply, len(raw), AArch64RegistersSize)
	}

	err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &regs)
	if err != nil {
		return regs, fmt.Errorf("%w: %w", ErrInvalidReply, err)
	}

	return regs, nil
}

// Bytes returns the registers in the raw format of a "g" reply.
func (r *AArch64Registers) Bytes() []byte {
	var buf bytes.Buffer

	// Writing into a buffer does not fail.
	_ = binary.Write(&buf, binary.LittleEndian, r)

	return buf.Bytes()
}
