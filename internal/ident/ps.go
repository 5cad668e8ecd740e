package ident

import "fmt"

// PSFrameType is the 4-bit wire code for a PS exchange step.
type PSFrameType uint8

const (
	PSPub  PSFrameType = 1
	PSData PSFrameType = 3
)

// PSFields is the decoded content of a PS identifier.
type PSFields struct {
	FrameType    PSFrameType
	Priority     Priority
	Sender       Address
	Topic        uint8
	HighPriority bool
}

// psReservedTail is the fixed, all-ones low-order field ([5:0]).
const psReservedTail = 0x3F

// BuildPS packs a PS identifier: [28:26]=100/110 [25:22]=type [21:20]=prio
// [19:14]=sender [13:6]=topic [5:0]=0x3F.
func BuildPS(f PSFields) uint32 {
	tag := TagPSLow
	if f.HighPriority {
		tag = TagPSHigh
	}
	id := uint32(tag) << 26
	id |= uint32(f.FrameType&0xF) << 22
	id |= uint32(f.Priority&0x3) << 20
	id |= uint32(f.Sender&0x3F) << 14
	id |= uint32(f.Topic) << 6
	id |= psReservedTail
	return id & identMask29
}

// ParsePS unpacks a PS identifier from either priority band. It fails if
// the top 3 bits are not one of the two PS tags.
func ParsePS(id uint32) (PSFields, error) {
	tag := ParseTag(id)
	if tag != TagPSHigh && tag != TagPSLow {
		return PSFields{}, fmt.Errorf("%w: not a PS identifier", errWrongTag)
	}
	return PSFields{
		FrameType:    PSFrameType((id >> 22) & 0xF),
		Priority:     Priority((id >> 20) & 0x3),
		Sender:       Address((id >> 14) & 0x3F),
		Topic:        uint8((id >> 6) & 0xFF),
		HighPriority: tag == TagPSHigh,
	}, nil
}
