// Package ident packs and parses the 29-bit extended CAN identifiers used by
// each of the four message families. Every Build* function is the strict
// inverse of its matching Parse* function for its own family (§4.2); frames
// belonging to another family are rejected by inspecting the top 3 bits
// before a family-specific Parse* is even attempted.
package ident

import "errors"

// ErrWrongTag is wrapped by each family's Parse* when the identifier's top
// 3 bits do not belong to that family.
var ErrWrongTag = errors.New("wrong protocol tag for this family")

// errWrongTag is kept as a local alias so family files read naturally.
var errWrongTag = ErrWrongTag

// Tag is the 3-bit protocol tag occupying bits [28:26] of every identifier.
type Tag uint8

const (
	TagRT      Tag = 0b000
	TagRPC     Tag = 0b010
	TagPSHigh  Tag = 0b100
	TagBW      Tag = 0b101
	TagPSLow   Tag = 0b110
)

// Priority is the 2-bit arbitration priority present in every family.
type Priority uint8

const (
	PriorityHigh Priority = 0b00
	Priority2    Priority = 0b01
	Priority3    Priority = 0b10
	PriorityLow  Priority = 0b11
)

// Address is a 6-bit node address, 0..63.
type Address uint8

const (
	// AddrBroadcast is the reserved RT broadcast address.
	AddrBroadcast Address = 0x00
	// AddrMulticast is the reserved BW multicast marker.
	AddrMulticast Address = 0x3F
)

const identMask29 = 0x1FFFFFFF

// ParseTag extracts the top-3-bit protocol tag from a raw 29-bit identifier.
func ParseTag(id uint32) Tag {
	return Tag((id >> 26) & 0x7)
}

// IsKnownTag reports whether t is one of the five defined protocol tags
// (§8 property 8: a frame with any other top 3 bits is rejected by every
// family's receive path).
func IsKnownTag(t Tag) bool {
	switch t {
	case TagRT, TagRPC, TagPSHigh, TagBW, TagPSLow:
		return true
	default:
		return false
	}
}
