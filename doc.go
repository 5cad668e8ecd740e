// Package canexus is a CAN protocol-layer codec and exchange engine for a
// family of networked robot nodes. It offers four message families over a
// shared 29-bit extended CAN identifier space: RT (real-time, optional
// echo-ack), RPC (call/respond with ack/nack), PS (publish/subscribe on two
// priority bands) and BW (block-write bulk transfer with repeat-request
// recovery). The underlying CAN transport is reduced to the four-method
// contract in pkg/can; built-in transports live under pkg/can/*.
package canexus
