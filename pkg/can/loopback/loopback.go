// Package loopback is a point-to-point, length-prefixed TCP transport
// intended for multi-process integration tests (§6.2). It is grounded on
// the teacher's pkg/can/virtual.Bus: the same serializeFrame/
// deserializeFrame-via-encoding/binary wire format and SetReadDeadline/
// SetWriteDeadline timeout handling, extended with an explicit server role
// (the teacher's virtual transport only ever dials out as a client).
package loopback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/pkg/can"
)

func init() {
	can.Register("loopback", func(channel string) (can.Transport, error) {
		return NewClient(channel), nil
	})
}

// Role selects whether a Bus dials out or listens for the peer.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Bus is a single point-to-point TCP link carrying serialized Frames.
type Bus struct {
	mu       sync.Mutex
	role     Role
	addr     string
	listener net.Listener
	conn     net.Conn
}

// NewClient returns a Bus that dials addr on Init.
func NewClient(addr string) *Bus {
	return &Bus{role: RoleClient, addr: addr}
}

// NewServer returns a Bus that listens on addr and accepts one peer on
// Init.
func NewServer(addr string) *Bus {
	return &Bus{role: RoleServer, addr: addr}
}

func (b *Bus) Init() error {
	switch b.role {
	case RoleClient:
		conn, err := net.Dial("tcp", b.addr)
		if err != nil {
			return fmt.Errorf("loopback: dial %s: %w", b.addr, canexus.ErrTransport)
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		b.conn = conn
		return nil
	case RoleServer:
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			return fmt.Errorf("loopback: listen %s: %w", b.addr, canexus.ErrTransport)
		}
		b.listener = ln
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("loopback: accept on %s: %w", b.addr, canexus.ErrTransport)
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		b.conn = conn
		return nil
	default:
		return fmt.Errorf("loopback: unknown role: %w", canexus.ErrArgument)
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.conn != nil {
		err = b.conn.Close()
	}
	if b.listener != nil {
		_ = b.listener.Close()
	}
	return err
}

func serializeFrame(frame can.Frame) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, frame.ID)
	_ = binary.Write(buf, binary.BigEndian, frame.Extended)
	_ = binary.Write(buf, binary.BigEndian, frame.DLC)
	_ = binary.Write(buf, binary.BigEndian, frame.Data)
	payload := buf.Bytes()
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func deserializeFrame(payload []byte) (can.Frame, error) {
	var frame can.Frame
	buf := bytes.NewReader(payload)
	if err := binary.Read(buf, binary.BigEndian, &frame.ID); err != nil {
		return frame, err
	}
	if err := binary.Read(buf, binary.BigEndian, &frame.Extended); err != nil {
		return frame, err
	}
	if err := binary.Read(buf, binary.BigEndian, &frame.DLC); err != nil {
		return frame, err
	}
	if err := binary.Read(buf, binary.BigEndian, &frame.Data); err != nil {
		return frame, err
	}
	return frame, nil
}

// Send writes one frame to the peer.
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("loopback: not connected: %w", canexus.ErrTransport)
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := b.conn.Write(serializeFrame(frame))
	if err != nil {
		return fmt.Errorf("loopback: write: %w", canexus.ErrTransport)
	}
	return nil
}

// Receive blocks for at most timeoutMs for one frame. timeoutMs == 0 polls:
// a single read attempt bounded by a 1 ms deadline, which returns a frame
// that is already pending.
func (b *Bus) Receive(timeoutMs int) (can.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return can.Frame{}, fmt.Errorf("loopback: not connected: %w", canexus.ErrTransport)
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	if timeoutMs <= 0 {
		// A deadline that has already passed fails the read without looking
		// at the socket, so polling uses the shortest usable window instead.
		deadline = time.Now().Add(time.Millisecond)
	}
	_ = b.conn.SetReadDeadline(deadline)

	header := make([]byte, 4)
	if _, err := readFull(b.conn, header); err != nil {
		if isTimeout(err) {
			return can.Frame{}, fmt.Errorf("loopback: %w", canexus.ErrTimeout)
		}
		return can.Frame{}, fmt.Errorf("loopback: read header: %w", canexus.ErrTransport)
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	if _, err := readFull(b.conn, payload); err != nil {
		if isTimeout(err) {
			return can.Frame{}, fmt.Errorf("loopback: %w", canexus.ErrTimeout)
		}
		return can.Frame{}, fmt.Errorf("loopback: read payload: %w", canexus.ErrTransport)
	}
	frame, err := deserializeFrame(payload)
	if err != nil {
		return can.Frame{}, fmt.Errorf("loopback: malformed frame: %w", canexus.ErrProtocol)
	}
	return frame, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
