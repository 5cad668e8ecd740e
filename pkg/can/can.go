// Package can defines the minimal frame transport contract (§6.1) that the
// protocol engines drive, plus a registry for naming built-in and custom
// transport implementations — the same shape as the teacher's bus/register
// split, reduced to four blocking operations instead of a callback
// subscription model.
package can

import "fmt"

// Frame is the transport unit: an extended CAN frame.
type Frame struct {
	ID       uint32
	Extended bool
	DLC      uint8
	Data     [8]byte
}

// NewFrame builds a Frame from an identifier and up to 8 data bytes. DLC is
// set to len(data); data longer than 8 bytes is rejected by the caller
// before it reaches here (engines validate against each family's cap).
func NewFrame(id uint32, data []byte) Frame {
	f := Frame{ID: id, Extended: true, DLC: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// Transport is the four-operation contract a CAN backend must satisfy.
// Init and Close bracket a Transport's lifetime; Send and Receive may be
// called many times in between. Receive blocks for at most timeoutMs
// milliseconds; timeoutMs == 0 means non-blocking (poll once, return
// immediately). Implementations return a transport-kind error wrapping
// canexus.ErrTransport on I/O failure, or canexus.ErrTimeout when the
// deadline elapses without a frame.
type Transport interface {
	Init() error
	Send(frame Frame) error
	Receive(timeoutMs int) (Frame, error)
	Close() error
}

// NewTransportFunc constructs a named Transport given a channel string
// (interface name, host:port, file path — meaning is transport-specific).
type NewTransportFunc func(channel string) (Transport, error)

var registry = make(map[string]NewTransportFunc)

// Register adds a transport constructor under name. Built-in transports
// call this from an init() func, mirroring the teacher's
// pkg/can.RegisterInterface.
func Register(name string, ctor NewTransportFunc) {
	registry[name] = ctor
}

// New looks up a registered transport by name and constructs it.
func New(name string, channel string) (Transport, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("can: unknown transport %q", name)
	}
	return ctor(channel)
}

// Available lists the names currently registered.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
