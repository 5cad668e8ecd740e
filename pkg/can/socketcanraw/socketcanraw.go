// Package socketcanraw is a native Linux raw-CAN socket transport built
// directly on golang.org/x/sys/unix, grounded on the teacher's
// pkg/can/socketcanv3: AF_CAN/SOCK_RAW/CAN_RAW socket, SockaddrCAN bind,
// and SO_RCVTIMEO for deadline-bounded reads. Unlike socketcanv3's
// background recvmmsg polling loop feeding a callback, Receive here blocks
// directly on the socket for the caller-supplied timeout, matching this
// module's synchronous transport contract (§5: suspension points live only
// inside Send/Receive).
package socketcanraw

import (
	"fmt"
	"net"
	"unsafe"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/pkg/can"
	"golang.org/x/sys/unix"
)

func init() {
	can.Register("socketcanraw", func(channel string) (can.Transport, error) {
		return New(channel), nil
	})
}

// wireFrameSize matches the kernel's struct can_frame layout: 4-byte id,
// 1-byte length, 3 bytes padding, 8 data bytes.
const wireFrameSize = 16

type wireFrame struct {
	id   uint32
	dlc  uint8
	_    [3]uint8
	data [8]uint8
}

// Bus is a raw AF_CAN socket bound to a named interface (e.g. "can0").
type Bus struct {
	channel string
	fd      int
}

// New returns an unopened Bus bound to the named interface.
func New(channel string) *Bus {
	return &Bus{channel: channel}
}

func (b *Bus) Init() error {
	iface, err := net.InterfaceByName(b.channel)
	if err != nil {
		return fmt.Errorf("socketcanraw: interface %s: %w", b.channel, canexus.ErrTransport)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("socketcanraw: open socket: %w", canexus.ErrTransport)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("socketcanraw: bind %s: %w", b.channel, canexus.ErrTransport)
	}
	b.fd = fd
	return nil
}

func (b *Bus) Close() error {
	if b.fd == 0 {
		return nil
	}
	return unix.Close(b.fd)
}

func (b *Bus) Send(frame can.Frame) error {
	wf := wireFrame{id: frame.ID | unix.CAN_EFF_FLAG, dlc: frame.DLC, data: frame.Data}
	raw := (*(*[wireFrameSize]byte)(unsafe.Pointer(&wf)))[:]
	n, err := unix.Write(b.fd, raw)
	if err != nil || n != wireFrameSize {
		return fmt.Errorf("socketcanraw: send: %w", canexus.ErrTransport)
	}
	return nil
}

// Receive blocks for at most timeoutMs via SO_RCVTIMEO. timeoutMs == 0
// means non-blocking: the read returns immediately if nothing is pending.
func (b *Bus) Receive(timeoutMs int) (can.Frame, error) {
	if timeoutMs <= 0 {
		// A zero SO_RCVTIMEO blocks forever, so poll in non-blocking mode.
		if err := unix.SetNonblock(b.fd, true); err != nil {
			return can.Frame{}, fmt.Errorf("socketcanraw: set non-blocking: %w", canexus.ErrTransport)
		}
		defer unix.SetNonblock(b.fd, false)
	} else {
		tv := unix.Timeval{
			Sec:  int64(timeoutMs / 1000),
			Usec: int64((timeoutMs % 1000) * 1000),
		}
		if err := unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return can.Frame{}, fmt.Errorf("socketcanraw: set timeout: %w", canexus.ErrTransport)
		}
	}
	var wf wireFrame
	raw := (*(*[wireFrameSize]byte)(unsafe.Pointer(&wf)))[:]
	n, err := unix.Read(b.fd, raw)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return can.Frame{}, fmt.Errorf("socketcanraw: %w", canexus.ErrTimeout)
		}
		return can.Frame{}, fmt.Errorf("socketcanraw: read: %w", canexus.ErrTransport)
	}
	if n != wireFrameSize {
		return can.Frame{}, fmt.Errorf("socketcanraw: short read (%d bytes): %w", n, canexus.ErrProtocol)
	}
	frame := can.Frame{
		ID:       wf.id &^ unix.CAN_EFF_FLAG,
		Extended: wf.id&unix.CAN_EFF_FLAG != 0,
		DLC:      wf.dlc,
		Data:     wf.data,
	}
	return frame, nil
}
