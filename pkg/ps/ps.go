// Package ps implements the PS family: publish/subscribe by topic across two
// priority bands (§4.6). Grounded on the teacher's pkg/pdo mapping/broadcast
// pattern (one sender, many topic-keyed listeners, no per-recipient
// handshake) generalised from PDO's fixed object-dictionary mapping to this
// family's arbitrary byte-stuffed payload.
package ps

import (
	"fmt"
	"time"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/internal/crc"
	"github.com/robopen/canexus/internal/ident"
	"github.com/robopen/canexus/internal/stuff"
	"github.com/robopen/canexus/pkg/can"
)

// MaxPayload is the largest PS payload accepted, measured after stuffing (§3).
const MaxPayload = 2048

// FrameType is the wire frame-type code for a PS exchange step.
type FrameType = ident.PSFrameType

const (
	Pub  FrameType = ident.PSPub
	Data FrameType = ident.PSData
)

// Message is one received PS unit. Payload holds the unstuffed bytes for a
// reassembled Pub; RawData holds the verbatim stuffed bytes for a standalone
// Data frame observed outside of an in-progress Pub reassembly.
type Message struct {
	Priority     ident.Priority
	Sender       uint8
	Topic        uint8
	HighPriority bool
	FrameType    FrameType
	Payload      []byte
	RawData      []byte
}

// Publish stuffs payload, computes its CRC-16, and emits one PUB frame
// followed by as many DATA continuation frames as needed. HighPriority
// selects the 100 protocol tag (competing directly with RT traffic) over
// 110 when false (§4.6, §8 property 16).
func Publish(ctx *canexus.Context, topic uint8, priority ident.Priority, highPriority bool, payload []byte) error {
	if stuff.EncodedLen(len(payload)) > MaxPayload {
		return fmt.Errorf("ps: stuffed payload exceeds %d bytes: %w", MaxPayload, canexus.ErrArgument)
	}
	stuffed := stuff.Append(payload)
	sum := crc.CRC16CCITT(stuffed)

	first := min(6, len(stuffed))
	data := make([]byte, 0, 8)
	data = append(data, byte(sum>>8), byte(sum))
	data = append(data, stuffed[:first]...)
	id := ident.BuildPS(ident.PSFields{FrameType: Pub, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Topic: topic, HighPriority: highPriority})
	if err := ctx.Transport.Send(can.NewFrame(id, data)); err != nil {
		return fmt.Errorf("ps: send: %w", err)
	}
	ctx.Logger().Debugf("[PS][PUB] topic=%d highprio=%v payload=%d bytes", topic, highPriority, len(payload))

	rest := stuffed[first:]
	for len(rest) > 0 {
		n := min(8, len(rest))
		cid := ident.BuildPS(ident.PSFields{FrameType: Data, Priority: priority, Sender: ident.Address(ctx.NodeAddress), Topic: topic, HighPriority: highPriority})
		if err := ctx.Transport.Send(can.NewFrame(cid, rest[:n])); err != nil {
			return fmt.Errorf("ps: send continuation: %w", err)
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

// Receive pulls one frame and requires a PS tag (either band); a frame from
// any other family fails the call immediately rather than being discarded in
// favour of the next frame (§4.6 — contrast RT's "discard and keep looking").
// A PUB is reassembled across any DATA continuation frames sharing its
// (sender, topic), unstuffed, and CRC-16 checked. A standalone DATA frame
// (observed outside of an in-progress PUB) is returned with its stuffed
// bytes verbatim for the caller to reassemble itself.
func Receive(ctx *canexus.Context, timeoutMs int) (Message, error) {
	frame, err := ctx.Transport.Receive(timeoutMs)
	if err != nil {
		return Message{}, fmt.Errorf("ps: receive: %w", err)
	}
	fields, err := ident.ParsePS(frame.ID)
	if err != nil {
		return Message{}, fmt.Errorf("ps: receive: unexpected frame family: %w", canexus.ErrProtocol)
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	msg := Message{
		Priority:     fields.Priority,
		Sender:       uint8(fields.Sender),
		Topic:        fields.Topic,
		HighPriority: fields.HighPriority,
		FrameType:    fields.FrameType,
	}

	switch fields.FrameType {
	case Data:
		msg.RawData = append([]byte(nil), frame.Data[:frame.DLC]...)
		ctx.Logger().Debugf("[PS][RX] data topic=%d sender=%d bytes=%d", msg.Topic, msg.Sender, frame.DLC)
		return msg, nil
	case Pub:
		if frame.DLC < 2 {
			return Message{}, fmt.Errorf("ps: pub frame DLC %d too short for crc: %w", frame.DLC, canexus.ErrProtocol)
		}
		crcWire := uint16(frame.Data[0])<<8 | uint16(frame.Data[1])
		stuffed, err := reassemble(ctx, frame.Data[2:frame.DLC], fields, deadline)
		if err != nil {
			return Message{}, err
		}
		if got := crc.CRC16CCITT(stuffed); got != crcWire {
			return Message{}, fmt.Errorf("ps: crc16 mismatch (got 0x%04x want 0x%04x): %w", got, crcWire, canexus.ErrProtocol)
		}
		raw, err := stuff.Unstuff(stuffed)
		if err != nil {
			return Message{}, fmt.Errorf("ps: unstuff: %w", err)
		}
		msg.Payload = raw
		ctx.Logger().Debugf("[PS][RX] pub topic=%d sender=%d payload=%d bytes", msg.Topic, msg.Sender, len(raw))
		return msg, nil
	default:
		return Message{}, fmt.Errorf("ps: unexpected frame type %v: %w", fields.FrameType, canexus.ErrProtocol)
	}
}

// reassemble accumulates the stuffed byte stream starting with first,
// pulling further DATA frames sharing fields' (sender, topic) until a
// terminator is observed or the deadline elapses.
func reassemble(ctx *canexus.Context, first []byte, fields ident.PSFields, deadline time.Time) ([]byte, error) {
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
			return nil, fmt.Errorf("ps: reassembly: %w", err)
		}
		cont, err := ident.ParsePS(frame.ID)
		if err != nil || cont.FrameType != Data || cont.Sender != fields.Sender || cont.Topic != fields.Topic {
			continue
		}
		buf = append(buf, frame.Data[:frame.DLC]...)
	}
}
