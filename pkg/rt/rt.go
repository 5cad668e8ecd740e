// Package rt implements the RT family: real-time one-shot messages with
// optional echo-acknowledgement (§4.4). Grounded on the teacher's simplest
// request/ack exchanges (nmt.go's single-frame command/response,
// emergency.go's fire-and-forget broadcast) but with the engine's own
// explicit blocking receive rather than a background callback.
package rt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/internal/ident"
	"github.com/robopen/canexus/pkg/can"
)

// MaxPayload is the largest RT payload: a single CAN frame (§3).
const MaxPayload = 8

// FrameType distinguishes a data message from its echo-ack.
type FrameType = ident.RTFrameType

const (
	Ack FrameType = ident.RTAck
	Msg FrameType = ident.RTMsg
)

// Message is one RT exchange unit.
type Message struct {
	Priority  ident.Priority
	Sender    uint8
	Target    uint8
	FrameType FrameType
	Data      []byte
}

// ackWaitTimeoutMs is the fixed echo-ack window from §4.4: one 1ms receive.
const ackWaitTimeoutMs = 1

// Send transmits msg in a single frame. When waitAck is true and
// FrameType == Msg and Target != broadcast, Send blocks on one 1ms receive
// expecting an echo-ack from Target bearing msg's payload unchanged; a miss
// is reported as a transient error (ErrTransport-wrapped) the caller may
// retry. Broadcast frames (Target == 0x00) are never acknowledged even if
// waitAck is set (§8 property 10).
func Send(ctx *canexus.Context, msg Message, waitAck bool) error {
	if len(msg.Data) > MaxPayload {
		return fmt.Errorf("rt: payload %d bytes exceeds %d: %w", len(msg.Data), MaxPayload, canexus.ErrArgument)
	}
	id := ident.BuildRT(ident.RTFields{
		FrameType: msg.FrameType,
		Priority:  msg.Priority,
		Sender:    ident.Address(msg.Sender),
		Target:    ident.Address(msg.Target),
	})
	frame := can.NewFrame(id, msg.Data)
	ctx.Logger().Debugf("[RT][TX] sender=%d target=%d type=%v data=%x", msg.Sender, msg.Target, msg.FrameType, msg.Data)
	if err := ctx.Transport.Send(frame); err != nil {
		return fmt.Errorf("rt: send: %w", err)
	}

	if !waitAck || msg.FrameType != Msg || msg.Target == uint8(ident.AddrBroadcast) {
		return nil
	}

	reply, err := ctx.Transport.Receive(ackWaitTimeoutMs)
	if err != nil {
		return fmt.Errorf("rt: echo-ack not received: %w", canexus.ErrTransport)
	}
	fields, err := ident.ParseRT(reply.ID)
	if err != nil {
		return fmt.Errorf("rt: echo-ack: unexpected frame family: %w", canexus.ErrTransport)
	}
	if fields.FrameType != Ack || uint8(fields.Sender) != msg.Target || uint8(fields.Target) != msg.Sender {
		return fmt.Errorf("rt: echo-ack: wrong sender/target/type: %w", canexus.ErrTransport)
	}
	if !bytes.Equal(reply.Data[:reply.DLC], msg.Data) {
		return fmt.Errorf("rt: echo-ack: payload mismatch: %w", canexus.ErrTransport)
	}
	return nil
}

// Receive pulls frames until one bearing the RT tag arrives, discarding
// frames from other families, or the deadline elapses. A received Msg
// addressed to this context's node immediately gets an echo-ack emitted
// before being returned to the caller. Ack frames are returned verbatim —
// they are consumed by Send's own wait_ack receive, not by this function.
func Receive(ctx *canexus.Context, timeoutMs int) (Message, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		remaining := timeoutMs
		if timeoutMs > 0 {
			remaining = int(time.Until(deadline) / time.Millisecond)
			if remaining < 0 {
				remaining = 0
			}
		}
		frame, err := ctx.Transport.Receive(remaining)
		if err != nil {
			return Message{}, fmt.Errorf("rt: receive: %w", err)
		}
		fields, err := ident.ParseRT(frame.ID)
		if err != nil {
			if timeoutMs > 0 && time.Now().After(deadline) {
				return Message{}, fmt.Errorf("rt: %w", canexus.ErrTimeout)
			}
			continue // discard frames from other families
		}
		msg := Message{
			Priority:  fields.Priority,
			Sender:    uint8(fields.Sender),
			Target:    uint8(fields.Target),
			FrameType: fields.FrameType,
			Data:      append([]byte(nil), frame.Data[:frame.DLC]...),
		}
		ctx.Logger().Debugf("[RT][RX] sender=%d target=%d type=%v data=%x", msg.Sender, msg.Target, msg.FrameType, msg.Data)
		if fields.FrameType == Msg && uint8(fields.Target) == ctx.NodeAddress {
			if err := sendAck(ctx, msg); err != nil {
				return Message{}, err
			}
		}
		return msg, nil
	}
}

func sendAck(ctx *canexus.Context, msg Message) error {
	ackID := ident.BuildRT(ident.RTFields{
		FrameType: Ack,
		Priority:  msg.Priority,
		Sender:    ident.Address(msg.Target),
		Target:    ident.Address(msg.Sender),
	})
	frame := can.NewFrame(ackID, msg.Data)
	ctx.Logger().Debugf("[RT][TX] echo-ack sender=%d target=%d data=%x", msg.Target, msg.Sender, msg.Data)
	if err := ctx.Transport.Send(frame); err != nil {
		return fmt.Errorf("rt: echo-ack send: %w", err)
	}
	return nil
}
