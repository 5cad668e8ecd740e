// Package spi is the controller-chip (MCP2515-family) SPI CAN transport.
// It is a stub: none of the example repos this module was grounded on
// carry an SPI CAN controller driver, and fabricating one would mean
// inventing a dependency the corpus never reaches for. A real
// implementation drives the chip directly: reset, configure bit-timing and
// filter masks over SPI, push frames into its TX buffers on Send, drain RX
// buffers (typically via the chip's interrupt line) on Receive.
package spi

import (
	"fmt"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/pkg/can"
)

func init() {
	can.Register("spi", func(channel string) (can.Transport, error) {
		return New(channel), nil
	})
}

// Bus is an unimplemented placeholder for an MCP2515-family SPI transport.
type Bus struct {
	device string
}

// New returns a stub Bus for the named SPI device (e.g. "/dev/spidev0.0").
func New(device string) *Bus {
	return &Bus{device: device}
}

var errNotImplemented = fmt.Errorf("spi: controller-chip transport not implemented: %w", canexus.ErrTransport)

func (b *Bus) Init() error                              { return errNotImplemented }
func (b *Bus) Close() error                              { return errNotImplemented }
func (b *Bus) Send(frame can.Frame) error                { return errNotImplemented }
func (b *Bus) Receive(timeoutMs int) (can.Frame, error) { return can.Frame{}, errNotImplemented }
