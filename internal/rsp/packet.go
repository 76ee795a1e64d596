// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

const (
	packetStart    = '$'
	packetEnd      = '#'
	escapeByte     = '}'
	runLengthByte  = '*'
	escapeXOR      = 0x20
	runLengthBase  = 29
	ackByte        = '+'
	nackByte       = '-'
	interruptByte  = 0x03
	checksumDigits = 2
)

type frameKind int

const (
	frameAck frameKind = iota
	frameNack
	frameInterrupt
	framePacket
)

// frame is a single unit read from the connection. Only packets carry data.
type frame struct {
	kind frameKind
	data []byte
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}

	return sum
}

// encodePacket frames the data as packet. Special characters are escaped.
func encodePacket(data []byte) []byte {
	var body bytes.Buffer

	for _, b := range data {
		switch b {
		case packetStart, packetEnd, escapeByte, runLengthByte:
			body.WriteByte(escapeByte)
			body.WriteByte(b ^ escapeXOR)
		default:
			body.WriteByte(b)
		}
	}

	return fmt.Appendf(nil, "$%s#%02x", body.Bytes(), checksum(body.Bytes()))
}

// decodePacketBody removes escaping and expands run-length encoding.
func decodePacketBody(raw []byte) ([]byte, error) {
	data := make([]byte, 0, len(raw))

	for idx := 0; idx < len(raw); idx++ {
		switch raw[idx] {
		case escapeByte:
			idx++
			if idx == len(raw) {
				return nil, fmt.Errorf("%w: trailing escape", ErrInvalidReply)
			}

			data = append(data, raw[idx]^escapeXOR)
		case runLengthByte:
			idx++
			if idx == len(raw) || len(data) == 0 {
				return nil, fmt.Errorf("%w: invalid run-length encoding",
					ErrInvalidReply)
			}

			last := data[len(data)-1]
			for range int(raw[idx]) - runLengthBase {
				data = append(data, last)
			}
		default:
			data = append(data, raw[idx])
		}
	}

	return data, nil
}

// readFrame reads the next frame. Any bytes outside of packets that are no
// acknowledgments or interrupts are skipped.
func readFrame(reader *bufio.Reader) (frame, error) {
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return frame{}, err //nolint:wrapcheck
		}

		switch b {
		case ackByte:
			return frame{kind: frameAck}, nil
		case nackByte:
			return frame{kind: frameNack}, nil
		case interruptByte:
			return frame{kind: frameInterrupt}, nil
		case packetStart:
			data, err := readPacketBody(reader)
			if err != nil {
				return frame{}, err
			}

			return frame{kind: framePacket, data: data}, nil
		}
	}
}

func readPacketBody(reader *bufio.Reader) ([]byte, error) {
	raw, err := reader.ReadBytes(packetEnd)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	raw = raw[:len(raw)-1]

	digits := make([]byte, checksumDigits)

	_, err = io.ReadFull(reader, digits)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	expected, err := strconv.ParseUint(string(digits), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrChecksum, digits)
	}

	if byte(expected) != checksum(raw) {
		return nil, fmt.Errorf("%w: got %02x, want %02x",
			ErrChecksum, checksum(raw), expected)
	}

	return decodePacketBody(raw)
}
