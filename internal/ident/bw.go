package ident

import "fmt"

// BWFrameType is the 4-bit wire code for a BW exchange step.
type BWFrameType uint8

const (
	BWRepeat BWFrameType = 1
	BWReady  BWFrameType = 3
	BWData   BWFrameType = 7
)

// BWFields is the decoded content of a BW identifier. Aux1/Aux0 are reused
// per frame type (§4.2): for DATA they are is_repeat/parity, for READY
// interrupt/1, for REPEAT repeat_all/0 — the caller interprets them
// according to FrameType.
type BWFields struct {
	FrameType BWFrameType
	Priority  Priority
	Sender    Address
	Target    Address
	ClassMask uint8
	Aux1      bool
	Aux0      bool
}

// BuildBW packs a BW identifier: [28:26]=101 [25:22]=type [21:20]=prio
// [19:14]=sender [13:8]=target [7:2]=class_mask [1]=aux1 [0]=aux0.
// Only bits 0-3 of ClassMask are meaningful; bits 4-5 are always sent as 0.
func BuildBW(f BWFields) uint32 {
	id := uint32(TagBW) << 26
	id |= uint32(f.FrameType&0xF) << 22
	id |= uint32(f.Priority&0x3) << 20
	id |= uint32(f.Sender&0x3F) << 14
	id |= uint32(f.Target&0x3F) << 8
	id |= uint32(f.ClassMask&0x0F) << 2
	if f.Aux1 {
		id |= 1 << 1
	}
	if f.Aux0 {
		id |= 1
	}
	return id & identMask29
}

// ParseBW unpacks a BW identifier. It fails if the top 3 bits are not the
// BW tag.
func ParseBW(id uint32) (BWFields, error) {
	if ParseTag(id) != TagBW {
		return BWFields{}, fmt.Errorf("%w: not a BW identifier", errWrongTag)
	}
	return BWFields{
		FrameType: BWFrameType((id >> 22) & 0xF),
		Priority:  Priority((id >> 20) & 0x3),
		Sender:    Address((id >> 14) & 0x3F),
		Target:    Address((id >> 8) & 0x3F),
		ClassMask: uint8((id >> 2) & 0x0F),
		Aux1:      (id>>1)&0x1 != 0,
		Aux0:      id&0x1 != 0,
	}, nil
}

// Equipment class bits within ClassMask (§4.7).
const (
	ClassSBC    uint8 = 1 << 0
	ClassMCU    uint8 = 1 << 1
	ClassSensor uint8 = 1 << 2
	ClassMotor  uint8 = 1 << 3
)
