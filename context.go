package canexus

import (
	"fmt"

	"github.com/robopen/canexus/pkg/can"
	"github.com/sirupsen/logrus"
)

// MaxNodeAddress is the highest valid node address (6 bits, 0..63).
const MaxNodeAddress = 0x3F

// Context is the single plain value the four family engines operate on: a
// local node address and a bound transport. It mirrors the teacher's thin
// Configuration/Network construction (canopen.Configuration,
// network.NewNetwork) rather than the heavier stateful Node/BusManager
// pairing — there is no background processing loop here, per §5: every
// engine call runs synchronously on the caller's goroutine.
//
// A Context must not be shared across goroutines without external
// synchronization (§5); it is not internally locked.
type Context struct {
	NodeAddress uint8
	Transport   can.Transport

	logger    *logrus.Entry
	nonceSeed uint8
}

// NewContext validates nodeAddress and initialises transport, returning a
// ready-to-use Context. Close must be called to release the transport.
func NewContext(nodeAddress uint8, transport can.Transport) (*Context, error) {
	if transport == nil {
		return nil, fmt.Errorf("context: nil transport: %w", ErrArgument)
	}
	if nodeAddress > MaxNodeAddress {
		return nil, fmt.Errorf("context: node address %d out of range 0..63: %w", nodeAddress, ErrArgument)
	}
	if err := transport.Init(); err != nil {
		return nil, err
	}
	return &Context{
		NodeAddress: nodeAddress,
		Transport:   transport,
		logger:      logrus.WithField("node", nodeAddress),
		nonceSeed:   1,
	}, nil
}

// Close releases the bound transport.
func (c *Context) Close() error {
	return c.Transport.Close()
}

// Logger returns the context's tagged logger, used by the family engines
// for their bracketed debug lines (e.g. "[RPC][CALL] ...").
func (c *Context) Logger() *logrus.Entry {
	return c.logger
}

// NextNonce draws the next 8-bit RPC nonce from this context's PRNG state:
// seed <- (seed*75 + 74) mod 256, re-rolling 0 to 1 so the nonce is never
// zero (§4.5). The PRNG state lives on the Context rather than in a
// package-level variable, resolving spec Design Notes item 4 (§9):
// concurrent contexts draw independent nonce streams.
func (c *Context) NextNonce() uint8 {
	c.nonceSeed = c.nonceSeed*75 + 74
	if c.nonceSeed == 0 {
		c.nonceSeed = 1
	}
	return c.nonceSeed
}
