// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// CopyFunc defines a function that reads the data from the given reader into
// the given writer.
//
// It may copy the data as is, like [io.Copy], or mutate or filter it as needed.
type CopyFunc func(dst io.Writer, src io.Reader) (int64, error)

var _ CopyFunc = io.Copy

var _ CopyFunc = StripCR

// StripCR is a [CopyFunc] that removes carriage returns. Kernels usually
// write "\r\n" line endings to their UART.
func StripCR(dst io.Writer, src io.Reader) (int64, error) {
	var (
		written int64
		buf     = make([]byte, 4096)
	)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := bytes.ReplaceAll(buf[:n], []byte{'\r'}, nil)

			w, err := dst.Write(chunk)
			written += int64(w)

			if err != nil {
				return written, fmt.Errorf("write: %w", err)
			}
		}

		if readErr == io.EOF {
			return written, nil
		}

		if readErr != nil {
			return written, readErr //nolint:wrapcheck
		}
	}
}

// LineFunc is called for every line read by a [LineParser].
type LineFunc func(line []byte)

// lineBufferSize is the length up to which lines are passed to a [LineFunc].
const lineBufferSize = 64 * 1024

// LineParser returns a [CopyFunc] that copies the data line buffered and calls
// the given [LineFunc] for every line before it is written.
//
// It should be used for text output that needs to be inspected, like the
// emulator's own diagnostic output. Lines longer than 64 KiB are copied but
// not passed to the [LineFunc], so the source is always drained.
func LineParser(fn LineFunc) CopyFunc {
	return func(dst io.Writer, src io.Reader) (int64, error) {
		var (
			written int64
			reader  = bufio.NewReaderSize(src, lineBufferSize)
			long    bool
		)

		for {
			chunk, readErr := reader.ReadSlice('\n')

			if len(chunk) > 0 {
				complete := bytes.HasSuffix(chunk, []byte{'\n'})

				if complete || errors.Is(readErr, io.EOF) {
					if !long {
						line := bytes.TrimSuffix(chunk, []byte{'\n'})
						fn(bytes.TrimSuffix(line, []byte{'\r'}))
					}

					long = false
				} else {
					long = true
				}

				n, err := dst.Write(chunk)
				written += int64(n)

				if err == nil && !complete && errors.Is(readErr, io.EOF) {
					n, err = dst.Write([]byte{'\n'})
					written += int64(n)
				}

				if err != nil {
					return written, fmt.Errorf("write: %w", err)
				}
			}

			switch {
			case readErr == nil, errors.Is(readErr, bufio.ErrBufferFull):
			case errors.Is(readErr, io.EOF):
				return written, nil
			default:
				return written, fmt.Errorf("read: %w", readErr)
			}
		}
	}
}
