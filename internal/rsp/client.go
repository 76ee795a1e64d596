// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	maxRetransmits = 3

	// targetXMLChunkSize is the number of bytes requested per
	// "qXfer:features:read" packet.
	targetXMLChunkSize = 0x800

	featureTargetXML = "qXfer:features:read"
)

// clientFeatures are announced in the "qSupported" request.
var clientFeatures = []string{"swbreak+", "hwbreak+", "xmlRegisters=aarch64"}

// Client is a connection to a debug stub.
//
// Requests are serialized. While the target is running, the only permitted
// operations are [Client.WaitStop] and [Client.Interrupt].
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	// readMu is held for a whole request including its reply. writeMu is
	// held for single writes only, so interrupts can be sent while a
	// reader waits for a stop reply.
	readMu  sync.Mutex
	writeMu sync.Mutex

	features map[string]string
}

// Dial connects to the stub at the given address and performs the protocol
// handshake.
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	client := NewClient(conn)

	err = client.handshake(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	slog.Debug("Connected to debug stub",
		slog.String("address", address),
		slog.Any("features", client.features))

	return client, nil
}

// NewClient returns a [Client] for an established connection. The handshake
// is not done.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		features: map[string]string{},
	}
}

func (c *Client) handshake(ctx context.Context) error {
	reply, err := c.Request(ctx, "qSupported:"+strings.Join(clientFeatures, ";"))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	c.features = parseFeatures(reply)

	return nil
}

func parseFeatures(reply string) map[string]string {
	features := map[string]string{}

	for _, feature := range strings.Split(reply, ";") {
		switch {
		case feature == "":
			continue
		case strings.HasSuffix(feature, "+"), strings.HasSuffix(feature, "-"):
			features[feature[:len(feature)-1]] = feature[len(feature)-1:]
		default:
			name, value, _ := strings.Cut(feature, "=")
			features[name] = value
		}
	}

	return features
}

// Supports returns true if the stub announced support for the given feature.
func (c *Client) Supports(feature string) bool {
	return c.features[feature] == "+"
}

// Close closes the connection without detaching.
func (c *Client) Close() error {
	return c.conn.Close() //nolint:wrapcheck
}

// Request sends the command and returns the reply.
//
// Error replies are returned as [StubError], empty replies as
// [ErrUnsupported].
func (c *Client) Request(ctx context.Context, command string) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	defer c.watch(ctx)()

	err := c.send(command)
	if err != nil {
		return "", c.contextError(ctx, err)
	}

	reply, err := c.receive()
	if err != nil {
		return "", c.contextError(ctx, err)
	}

	return checkReply(command, reply)
}

func checkReply(command string, reply []byte) (string, error) {
	if len(reply) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, commandName(command))
	}

	if len(reply) == 3 && reply[0] == 'E' { //nolint:mnd
		code, err := strconv.ParseUint(string(reply[1:]), 16, 8)
		if err == nil {
			return "", &StubError{Command: commandName(command), Code: int(code)}
		}
	}

	return string(reply), nil
}

// commandName returns the command without its arguments for messages.
func commandName(command string) string {
	name, _, _ := strings.Cut(command, ":")
	name, _, _ = strings.Cut(name, ",")

	if strings.HasPrefix(name, "m") {
		return "m"
	}

	return name
}

// watch makes blocking reads and writes return once the context is done. The
// returned function must be called when the operation finished.
func (c *Client) watch(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})

	return func() {
		stop()

		_ = c.conn.SetDeadline(time.Time{})
	}
}

func (*Client) contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return ctx.Err() //nolint:wrapcheck
	}

	return err
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Write(data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// send writes the command as packet and waits for its acknowledgment.
func (c *Client) send(command string) error {
	packet := encodePacket([]byte(command))

	for range maxRetransmits {
		err := c.write(packet)
		if err != nil {
			return err
		}

		acked, err := c.awaitAck()
		if err != nil {
			return err
		}

		if acked {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrNotAcknowledged, commandName(command))
}

func (c *Client) awaitAck() (bool, error) {
	for {
		frame, err := readFrame(c.reader)
		if err != nil {
			return false, fmt.Errorf("read ack: %w", err)
		}

		switch frame.kind {
		case frameAck:
			return true, nil
		case frameNack:
			return false, nil
		default:
			// Nothing else is expected before the acknowledgment.
			slog.Debug("Unexpected frame while waiting for ack",
				slog.Int("kind", int(frame.kind)))
		}
	}
}

// receive reads the next packet and acknowledges it.
func (c *Client) receive() ([]byte, error) {
	for range maxRetransmits {
		frame, err := readFrame(c.reader)

		switch {
		case errors.Is(err, ErrChecksum):
			slog.Debug("Request retransmission", slog.Any("error", err))

			err := c.write([]byte{nackByte})
			if err != nil {
				return nil, err
			}

			continue
		case err != nil:
			return nil, fmt.Errorf("read reply: %w", err)
		case frame.kind != framePacket:
			continue
		}

		// The stub may close the connection right after its reply, like
		// after a detach. A failed ack shows up on the next request.
		err = c.write([]byte{ackByte})
		if err != nil {
			slog.Debug("Failed to acknowledge reply", slog.Any("error", err))
		}

		return frame.data, nil
	}

	return nil, fmt.Errorf("read reply: %w", ErrChecksum)
}

// receiveStop reads the next stop reply. Console output packets sent while
// the target runs are logged and skipped.
func (c *Client) receiveStop(command string) (StopReply, error) {
	for {
		reply, err := c.receive()
		if err != nil {
			return StopReply{}, err
		}

		if len(reply) > 1 && reply[0] == 'O' && !bytes.Equal(reply, []byte("OK")) {
			output, _ := hex.DecodeString(string(reply[1:]))
			slog.Debug("Stub output", slog.String("output", string(output)))

			continue
		}

		checked, err := checkReply(command, reply)
		if err != nil {
			return StopReply{}, err
		}

		return ParseStopReply(checked)
	}
}

// requestStop sends a command that is answered by a stop reply.
func (c *Client) requestStop(ctx context.Context, command string) (StopReply, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	defer c.watch(ctx)()

	err := c.send(command)
	if err != nil {
		return StopReply{}, c.contextError(ctx, err)
	}

	stop, err := c.receiveStop(command)
	if err != nil {
		return StopReply{}, c.contextError(ctx, err)
	}

	return stop, nil
}

// HaltReason queries the reason the target halted.
func (c *Client) HaltReason(ctx context.Context) (StopReply, error) {
	return c.requestStop(ctx, "?")
}

// Step executes a single instruction and returns the stop reply.
func (c *Client) Step(ctx context.Context) (StopReply, error) {
	return c.requestStop(ctx, "s")
}

// Continue resumes the target. It returns once the stub acknowledged the
// command. The stop reply must be read with [Client.WaitStop].
func (c *Client) Continue(ctx context.Context) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	defer c.watch(ctx)()

	return c.contextError(ctx, c.send("c"))
}

// WaitStop waits for the stop reply of a previous [Client.Continue].
//
// It blocks as long as the target is running. Use [Client.Interrupt] to halt
// the target.
func (c *Client) WaitStop(ctx context.Context) (StopReply, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	defer c.watch(ctx)()

	stop, err := c.receiveStop("c")
	if err != nil {
		return StopReply{}, c.contextError(ctx, err)
	}

	return stop, nil
}

// Interrupt requests the running target to halt. The stop reply is received
// by [Client.WaitStop].
func (c *Client) Interrupt() error {
	return c.write([]byte{interruptByte})
}

// Registers returns the raw register data.
func (c *Client) Registers(ctx context.Context) ([]byte, error) {
	reply, err := c.Request(ctx, "g")
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: registers: %w", ErrInvalidReply, err)
	}

	return data, nil
}

// ReadMemory reads length bytes of target memory at the given address.
func (c *Client) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	reply, err := c.Request(ctx, fmt.Sprintf("m%x,%x", addr, length))
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: memory: %w", ErrInvalidReply, err)
	}

	return data, nil
}

// SetBreakpoint inserts a software breakpoint at the given address. The kind
// is the size of the breakpoint instruction, 4 for aarch64.
func (c *Client) SetBreakpoint(ctx context.Context, addr uint64, kind int) error {
	return c.expectOK(ctx, fmt.Sprintf("Z0,%x,%x", addr, kind))
}

// ClearBreakpoint removes the software breakpoint at the given address.
func (c *Client) ClearBreakpoint(ctx context.Context, addr uint64, kind int) error {
	return c.expectOK(ctx, fmt.Sprintf("z0,%x,%x", addr, kind))
}

// Detach detaches from the target, which resumes execution, and closes the
// connection.
func (c *Client) Detach(ctx context.Context) error {
	err := c.expectOK(ctx, "D")

	closeErr := c.Close()
	if err != nil {
		return err
	}

	return closeErr
}

func (c *Client) expectOK(ctx context.Context, command string) error {
	reply, err := c.Request(ctx, command)
	if err != nil {
		return err
	}

	if reply != "OK" {
		return fmt.Errorf("%w: %s: %q", ErrInvalidReply, commandName(command), reply)
	}

	return nil
}

// TargetDescription reads the target description XML document.
func (c *Client) TargetDescription(ctx context.Context) ([]byte, error) {
	if !c.Supports(featureTargetXML) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, featureTargetXML)
	}

	var document bytes.Buffer

	for {
		command := fmt.Sprintf("%s:target.xml:%x,%x",
			featureTargetXML, document.Len(), targetXMLChunkSize)

		reply, err := c.Request(ctx, command)
		if err != nil {
			return nil, err
		}

		document.WriteString(reply[1:])

		switch reply[0] {
		case 'l':
			return document.Bytes(), nil
		case 'm':
			continue
		default:
			return nil, fmt.Errorf("%w: target description: %q",
				ErrInvalidReply, reply)
		}
	}
}

// Architecture returns the architecture the target description names.
func (c *Client) Architecture(ctx context.Context) (string, error) {
	document, err := c.TargetDescription(ctx)
	if err != nil {
		return "", err
	}

	return parseTargetArchitecture(document)
}
