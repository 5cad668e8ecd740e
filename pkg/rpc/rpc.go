// Package rpc implements the RPC family: bidirectional procedure calls with
// ACK/NACK and segmentation across START_RPC/TX_DATA and START_RETURN/RX_DATA
// (§4.5). Grounded on the teacher's pkg/sdo segmented-transfer machinery
// (client.go's request/response correlation by a toggle bit, download_block.go's
// multi-frame staging with a trailing CRC) generalised to this family's
// single-nonce correlation and count-prefixed stuffing instead of SDO's
// toggle-bit/sub-block scheme.
package rpc

import (
	"fmt"
	"time"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/internal/crc"
	"github.com/robopen/canexus/internal/ident"
	"github.com/robopen/canexus/internal/stuff"
	"github.com/robopen/canexus/pkg/can"
)

// MaxPayload is the largest RPC payload accepted before stuffing (§3, §5).
const MaxPayload = 1024

// stagingSize bounds the stuffed form; a 1024-byte payload stuffs to at most
// 1024 + ceil(1024/254) + 1 = 1030 bytes, comfortably under this.
const stagingSize = 1040

// FrameType is the wire frame-type code for one RPC exchange step.
type FrameType = ident.RPCFrameType

const (
	Ack         FrameType = ident.RPCAck
	Nack        FrameType = ident.RPCNack
	StartRPC    FrameType = ident.RPCStartRPC
	StartReturn FrameType = ident.RPCStartReturn
	TxData      FrameType = ident.RPCTxData
	RxData      FrameType = ident.RPCRxData
)

const ackWaitTimeoutMs = 30

// Message is a received RPC exchange unit. Payload is meaningful only for
// StartRPC/StartReturn; NackCode only for Nack.
type Message struct {
	Priority  ident.Priority
	Sender    uint8
	Target    uint8
	Nonce     uint8
	FrameType FrameType
	Synchronous bool
	ProcedureID uint8
	NackCode    byte
	Payload     []byte
}

func headerByte(synchronous bool, procedureID uint8) byte {
	h := procedureID & 0x7F
	if synchronous {
		h |= 0x80
	}
	return h
}

// Call starts a procedure call: it stuffs payload, computes the CRC-16 over
// the header byte and stuffed payload, draws a nonce from ctx, and emits
// START_RPC followed by as many TX_DATA continuation frames as needed. It
// then performs a single 30 ms receive expecting an ACK or NACK bearing the
// same nonce; a NACK is reported as a *canexus.RemoteError, any other frame
// type or a timeout as a generic error. Broadcasting is forbidden (§4.5).
// On success it returns the nonce the caller must pass to WaitResponse.
func Call(ctx *canexus.Context, target uint8, priority ident.Priority, synchronous bool, procedureID uint8, payload []byte) (nonce uint8, err error) {
	if target == uint8(ident.AddrBroadcast) {
		return 0, fmt.Errorf("rpc: call cannot target broadcast: %w", canexus.ErrArgument)
	}
	if len(payload) > MaxPayload {
		return 0, fmt.Errorf("rpc: payload %d bytes exceeds %d: %w", len(payload), MaxPayload, canexus.ErrArgument)
	}
	h := headerByte(synchronous, procedureID)
	stuffed, err := stuffPayload(payload)
	if err != nil {
		return 0, err
	}
	sum := crc.CRC16CCITT(append([]byte{h}, stuffed...))
	nonce = ctx.NextNonce()

	if err := sendSegmented(ctx, StartRPC, TxData, target, priority, nonce, h, sum, stuffed); err != nil {
		return 0, err
	}
	ctx.Logger().Debugf("[RPC][CALL] target=%d proc=0x%02x nonce=%d sync=%v payload=%d bytes", target, procedureID, nonce, synchronous, len(payload))

	reply, err := ctx.Transport.Receive(ackWaitTimeoutMs)
	if err != nil {
		return nonce, fmt.Errorf("rpc: call: no ack/nack: %w", canexus.ErrTimeout)
	}
	fields, err := ident.ParseRPC(reply.ID)
	if err != nil {
		return nonce, fmt.Errorf("rpc: call: unexpected frame family: %w", canexus.ErrProtocol)
	}
	if fields.Nonce != nonce || uint8(fields.Sender) != target {
		return nonce, fmt.Errorf("rpc: call: ack/nack nonce or sender mismatch: %w", canexus.ErrProtocol)
	}
	switch fields.FrameType {
	case Ack:
		return nonce, nil
	case Nack:
		if reply.DLC < 1 {
			return nonce, fmt.Errorf("rpc: call: nack with no error byte: %w", canexus.ErrProtocol)
		}
		return nonce, &canexus.RemoteError{Code: reply.Data[0]}
	default:
		return nonce, fmt.Errorf("rpc: call: unexpected reply frame type %v: %w", fields.FrameType, canexus.ErrProtocol)
	}
}

// Respond sends the return value of a procedure invoked with nonce. Framing
// is identical to Call's START_RPC/TX_DATA segmentation, except the frame
// type is START_RETURN/RX_DATA and the header byte's high bit is forced to 1
// regardless of the original call's synchronous flag — the receiver
// recognises a return by frame type, not by that bit (§4.5).
func Respond(ctx *canexus.Context, target uint8, priority ident.Priority, procedureID uint8, nonce uint8, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("rpc: payload %d bytes exceeds %d: %w", len(payload), MaxPayload, canexus.ErrArgument)
	}
	h := headerByte(true, procedureID)
	stuffed, err := stuffPayload(payload)
	if err != nil {
		return err
	}
	sum := crc.CRC16CCITT(append([]byte{h}, stuffed...))
	ctx.Logger().Debugf("[RPC][RESPOND] target=%d proc=0x%02x nonce=%d payload=%d bytes", target, procedureID, nonce, len(payload))
	return sendSegmented(ctx, StartReturn, RxData, target, priority, nonce, h, sum, stuffed)
}

func stuffPayload(payload []byte) ([]byte, error) {
	if stuff.EncodedLen(len(payload)) > stagingSize {
		return nil, fmt.Errorf("rpc: stuffed payload exceeds staging area: %w", canexus.ErrArgument)
	}
	return stuff.Append(payload), nil
}

func sendSegmented(ctx *canexus.Context, startType, contType FrameType, target uint8, priority ident.Priority, nonce uint8, h byte, sum uint16, stuffed []byte) error {
	first := min(5, len(stuffed))
	data := make([]byte, 0, 8)
	data = append(data, h, byte(sum>>8), byte(sum))
	data = append(data, stuffed[:first]...)
	id := ident.BuildRPC(ident.RPCFields{FrameType: startType, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Target: ident.Address(target), Nonce: nonce})
	if err := ctx.Transport.Send(can.NewFrame(id, data)); err != nil {
		return fmt.Errorf("rpc: send: %w", err)
	}

	rest := stuffed[first:]
	for len(rest) > 0 {
		n := min(8, len(rest))
		cid := ident.BuildRPC(ident.RPCFields{FrameType: contType, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Target: ident.Address(target), Nonce: nonce})
		if err := ctx.Transport.Send(can.NewFrame(cid, rest[:n])); err != nil {
			return fmt.Errorf("rpc: send continuation: %w", err)
		}
		rest = rest[n:]
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SendAck sends a bare ACK frame (DLC=0) correlated by nonce.
func SendAck(ctx *canexus.Context, target uint8, priority ident.Priority, nonce uint8) error {
	id := ident.BuildRPC(ident.RPCFields{FrameType: Ack, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Target: ident.Address(target), Nonce: nonce})
	if err := ctx.Transport.Send(can.NewFrame(id, nil)); err != nil {
		return fmt.Errorf("rpc: send ack: %w", err)
	}
	return nil
}

// SendNack sends a NACK frame carrying errorCode as its single data byte.
func SendNack(ctx *canexus.Context, target uint8, priority ident.Priority, nonce uint8, errorCode byte) error {
	id := ident.BuildRPC(ident.RPCFields{FrameType: Nack, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Target: ident.Address(target), Nonce: nonce})
	if err := ctx.Transport.Send(can.NewFrame(id, []byte{errorCode})); err != nil {
		return fmt.Errorf("rpc: send nack: %w", err)
	}
	return nil
}

// WaitResponse waits for one frame and requires it to be the START_RETURN
// carrying nonce, reassembling any RX_DATA continuation frames and
// unstuffing the result. A frame of the wrong type or nonce fails the call
// rather than being discarded in favour of the next frame.
func WaitResponse(ctx *canexus.Context, nonce uint8, timeoutMs int) ([]byte, error) {
	msg, err := receiveFrame(ctx, timeoutMs)
	if err != nil {
		return nil, err
	}
	if msg.FrameType != StartReturn || msg.Nonce != nonce {
		return nil, fmt.Errorf("rpc: wait_response: unexpected frame type or nonce: %w", canexus.ErrProtocol)
	}
	return msg.Payload, nil
}

// Receive pulls one frame and requires the RPC tag; a frame from any other
// family fails the call immediately rather than being discarded in favour of
// the next frame (§4.5 — contrast RT's "discard and keep looking"). ACK/NACK
// are returned immediately. START_RPC/START_RETURN are reassembled across
// any TX_DATA/RX_DATA continuation frames sharing the same nonce, unstuffed,
// and CRC-16 checked against the header byte.
func Receive(ctx *canexus.Context, timeoutMs int) (Message, error) {
	return receiveFrame(ctx, timeoutMs)
}

func receiveFrame(ctx *canexus.Context, timeoutMs int) (Message, error) {
	frame, err := ctx.Transport.Receive(timeoutMs)
	if err != nil {
		return Message{}, fmt.Errorf("rpc: receive: %w", err)
	}
	fields, err := ident.ParseRPC(frame.ID)
	if err != nil {
		return Message{}, fmt.Errorf("rpc: receive: unexpected frame family: %w", canexus.ErrProtocol)
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	msg := Message{
		Priority:  fields.Priority,
		Sender:    uint8(fields.Sender),
		Target:    uint8(fields.Target),
		Nonce:     fields.Nonce,
		FrameType: fields.FrameType,
	}

	switch fields.FrameType {
	case Ack:
		ctx.Logger().Debugf("[RPC][RX] ack sender=%d nonce=%d", msg.Sender, msg.Nonce)
		return msg, nil
	case Nack:
		if frame.DLC < 1 {
			return Message{}, fmt.Errorf("rpc: nack with no error byte: %w", canexus.ErrProtocol)
		}
		msg.NackCode = frame.Data[0]
		ctx.Logger().Debugf("[RPC][RX] nack sender=%d nonce=%d code=0x%02x", msg.Sender, msg.Nonce, msg.NackCode)
		return msg, nil
	case StartRPC, StartReturn:
		if frame.DLC < 3 {
			return Message{}, fmt.Errorf("rpc: start frame DLC %d too short for header: %w", frame.DLC, canexus.ErrProtocol)
		}
		h := frame.Data[0]
		crcWire := uint16(frame.Data[1])<<8 | uint16(frame.Data[2])
		msg.Synchronous = h&0x80 != 0
		msg.ProcedureID = h & 0x7F

		contType := TxData
		if fields.FrameType == StartReturn {
			contType = RxData
		}
		stuffed, err := reassemble(ctx, frame.Data[3:frame.DLC], fields, contType, deadline)
		if err != nil {
			return Message{}, err
		}
		if got := crc.CRC16CCITT(append([]byte{h}, stuffed...)); got != crcWire {
			return Message{}, fmt.Errorf("rpc: crc16 mismatch (got 0x%04x want 0x%04x): %w", got, crcWire, canexus.ErrProtocol)
		}
		raw, err := stuff.Unstuff(stuffed)
		if err != nil {
			return Message{}, fmt.Errorf("rpc: unstuff: %w", err)
		}
		msg.Payload = raw
		ctx.Logger().Debugf("[RPC][RX] %v sender=%d nonce=%d proc=0x%02x payload=%d bytes", fields.FrameType, msg.Sender, msg.Nonce, msg.ProcedureID, len(raw))
		return msg, nil
	default:
		return Message{}, fmt.Errorf("rpc: unexpected frame type %v: %w", fields.FrameType, canexus.ErrProtocol)
	}
}

// reassemble accumulates the stuffed byte stream starting with first,
// pulling further continuation frames of contType sharing fields' nonce
// until a terminator is observed or the deadline elapses.
func reassemble(ctx *canexus.Context, first []byte, fields ident.RPCFields, contType FrameType, deadline time.Time) ([]byte, error) {
	buf := append([]byte(nil), first...)
	for {
		if _, err := stuff.Unstuff(buf); err == nil {
			return buf, nil
		}
		remaining := int(time.Until(deadline) / time.Millisecond)
		if remaining < 0 {
			remaining = 0
		}
		frame, err := ctx.Transport.Receive(remaining)
		if err != nil {
			return nil, fmt.Errorf("rpc: reassembly: %w", err)
		}
		cont, err := ident.ParseRPC(frame.ID)
		if err != nil || cont.FrameType != contType || cont.Nonce != fields.Nonce {
			continue
		}
		buf = append(buf, frame.Data[:frame.DLC]...)
	}
}
