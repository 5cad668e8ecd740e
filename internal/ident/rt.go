package ident

import "fmt"

// RTFrameType distinguishes an RT data message from its echo-acknowledgement.
type RTFrameType uint8

const (
	RTAck RTFrameType = 0
	RTMsg RTFrameType = 1
)

// RTFields is the decoded content of an RT identifier.
type RTFields struct {
	FrameType RTFrameType
	Priority  Priority
	Sender    Address
	Target    Address
}

// rtReservedTail is the fixed, all-ones low-order field ([9:0]) that keeps
// RT identifiers unambiguous under CAN priority arbitration.
const rtReservedTail = 0x3FF

// BuildRT packs an RT identifier: [28:26]=000 [25]=type [24:23]=prio
// [22]=unused, left 0 [21:16]=sender [15:10]=target [9:0]=0x3FF.
func BuildRT(f RTFields) uint32 {
	id := uint32(TagRT) << 26
	id |= uint32(f.FrameType&0x1) << 25
	id |= uint32(f.Priority&0x3) << 23
	id |= uint32(f.Sender&0x3F) << 16
	id |= uint32(f.Target&0x3F) << 10
	id |= rtReservedTail
	return id & identMask29
}

// ParseRT unpacks an RT identifier. It fails if the top 3 bits are not the
// RT tag.
func ParseRT(id uint32) (RTFields, error) {
	if ParseTag(id) != TagRT {
		return RTFields{}, fmt.Errorf("%w: not an RT identifier", errWrongTag)
	}
	return RTFields{
		FrameType: RTFrameType((id >> 25) & 0x1),
		Priority:  Priority((id >> 23) & 0x3),
		Sender:    Address((id >> 16) & 0x3F),
		Target:    Address((id >> 10) & 0x3F),
	}, nil
}
