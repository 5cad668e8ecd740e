// Package socketcan wraps brutella/can's socketcan binding — the same
// third-party library the teacher uses directly in its own socketcan.go
// and pkg/can/socketcan — adapting it from brutella's push/callback
// Subscribe model to this module's blocking Receive(timeout) contract via
// a bounded channel.
package socketcan

import (
	"fmt"
	"time"

	sockcan "github.com/brutella/can"
	"github.com/robopen/canexus"
	"github.com/robopen/canexus/pkg/can"
)

func init() {
	can.Register("socketcan", func(channel string) (can.Transport, error) {
		return New(channel), nil
	})
}

// rxBufferSize bounds how many frames can be queued between Receive calls
// before the oldest is dropped (the underlying bus has no backpressure).
const rxBufferSize = 64

// Bus is a native Linux raw-CAN socket transport backed by brutella/can.
type Bus struct {
	channel string
	bus     *sockcan.Bus
	rx      chan can.Frame
}

// New returns an unconnected Bus bound to the named interface (e.g. "can0").
func New(channel string) *Bus {
	return &Bus{channel: channel, rx: make(chan can.Frame, rxBufferSize)}
}

func (b *Bus) Init() error {
	bus, err := sockcan.NewBusForInterfaceWithName(b.channel)
	if err != nil {
		return fmt.Errorf("socketcan: open %s: %w", b.channel, canexus.ErrTransport)
	}
	b.bus = bus
	bus.Subscribe(b)
	go func() {
		_ = bus.ConnectAndPublish()
	}()
	return nil
}

func (b *Bus) Close() error {
	if b.bus == nil {
		return nil
	}
	return b.bus.Disconnect()
}

// Handle implements brutella/can's FrameHandler: every frame the socket
// receives lands here and is forwarded to the Receive channel, dropping the
// oldest buffered frame if the consumer has fallen behind.
func (b *Bus) Handle(frame sockcan.Frame) {
	converted := can.Frame{ID: frame.ID, Extended: true, DLC: frame.Length, Data: frame.Data}
	select {
	case b.rx <- converted:
	default:
		select {
		case <-b.rx:
		default:
		}
		b.rx <- converted
	}
}

func (b *Bus) Send(frame can.Frame) error {
	if b.bus == nil {
		return fmt.Errorf("socketcan: not initialised: %w", canexus.ErrTransport)
	}
	err := b.bus.Publish(sockcan.Frame{ID: frame.ID, Length: frame.DLC, Data: frame.Data})
	if err != nil {
		return fmt.Errorf("socketcan: send: %w", canexus.ErrTransport)
	}
	return nil
}

func (b *Bus) Receive(timeoutMs int) (can.Frame, error) {
	if timeoutMs <= 0 {
		select {
		case frame := <-b.rx:
			return frame, nil
		default:
			return can.Frame{}, fmt.Errorf("socketcan: %w", canexus.ErrTimeout)
		}
	}
	select {
	case frame := <-b.rx:
		return frame, nil
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return can.Frame{}, fmt.Errorf("socketcan: %w", canexus.ErrTimeout)
	}
}
