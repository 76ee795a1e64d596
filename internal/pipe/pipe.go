// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pipe is a single output stream that is copied from its input to its output.
type Pipe struct {
	// Name identifies the pipe in errors.
	Name string

	// InputReader is the source of the data.
	InputReader io.Reader

	// InputCloser is closed in order to terminate the copying, if the input
	// does not terminate in time. It is usually the same as the reader.
	InputCloser io.Closer

	// Output receives the data.
	Output io.Writer

	// CopyFunc copies the data from input to output.
	CopyFunc CopyFunc

	// MayBeSilent suppresses [ErrNoOutput] if the input did not produce any
	// data.
	MayBeSilent bool
}

// Pipes runs multiple [Pipe]s concurrently.
//
// The zero value is ready to use.
type Pipes struct {
	group        errgroup.Group
	mu           sync.Mutex
	pipes        []*Pipe
	bytesWritten map[string]int64
}

// Run starts copying of the given [Pipe] in a separate go routine.
func (p *Pipes) Run(pipe *Pipe) {
	p.mu.Lock()
	p.pipes = append(p.pipes, pipe)
	p.mu.Unlock()

	p.group.Go(func() error {
		written, err := pipe.CopyFunc(pipe.Output, pipe.InputReader)

		p.mu.Lock()
		if p.bytesWritten == nil {
			p.bytesWritten = make(map[string]int64)
		}

		p.bytesWritten[pipe.Name] = written
		p.mu.Unlock()

		if err != nil && !isClosed(err) {
			return &Error{Name: pipe.Name, Err: err}
		}

		if written == 0 && !pipe.MayBeSilent {
			return &Error{Name: pipe.Name, Err: ErrNoOutput}
		}

		return nil
	})
}

// Wait waits for all pipes to terminate.
//
// If they do not terminate within the given timeout, all inputs are closed
// and [ErrWaitTimeout] is returned.
func (p *Pipes) Wait(timeout time.Duration) error {
	done := make(chan error, 1)

	go func() {
		done <- p.group.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
	}

	p.mu.Lock()
	for _, pipe := range p.pipes {
		_ = pipe.InputCloser.Close()
	}
	p.mu.Unlock()

	<-done

	return ErrWaitTimeout
}

// Len returns the number of pipes.
func (p *Pipes) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pipes)
}

// BytesWritten returns the number of bytes written by each pipe, by name.
func (p *Pipes) BytesWritten() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[string]int64, len(p.bytesWritten))
	for name, n := range p.bytesWritten {
		result[name] = n
	}

	return result
}

// isClosed returns true for errors that are caused by a closed input. The
// read end of a pseudo-terminal returns EIO once the other end is closed.
func isClosed(err error) bool {
	return errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EIO)
}
