package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTRoundTrip(t *testing.T) {
	for _, ft := range []RTFrameType{RTAck, RTMsg} {
		for prio := Priority(0); prio <= 3; prio++ {
			for sender := Address(0); sender <= 63; sender++ {
				for target := Address(0); target <= 63; target += 9 {
					f := RTFields{FrameType: ft, Priority: prio, Sender: sender, Target: target}
					id := BuildRT(f)
					got, err := ParseRT(id)
					require.NoError(t, err)
					assert.Equal(t, f, got)
					assert.EqualValues(t, rtReservedTail, id&0x3FF)
				}
			}
		}
	}
}

func TestRPCRoundTrip(t *testing.T) {
	types := []RPCFrameType{RPCAck, RPCNack, RPCStartRPC, RPCStartReturn, RPCTxData, RPCRxData}
	for _, ft := range types {
		for prio := Priority(0); prio <= 3; prio++ {
			f := RPCFields{FrameType: ft, Priority: prio, Sender: 12, Target: 5, Nonce: 0xAB}
			id := BuildRPC(f)
			got, err := ParseRPC(id)
			require.NoError(t, err)
			assert.Equal(t, f, got)
		}
	}
}

func TestPSRoundTrip(t *testing.T) {
	for _, hp := range []bool{true, false} {
		for _, ft := range []PSFrameType{PSPub, PSData} {
			f := PSFields{FrameType: ft, Priority: 2, Sender: 7, Topic: 200, HighPriority: hp}
			id := BuildPS(f)
			got, err := ParsePS(id)
			require.NoError(t, err)
			assert.Equal(t, f, got)
			assert.EqualValues(t, psReservedTail, id&0x3F)
		}
	}
}

func TestPSBandSelection(t *testing.T) {
	idHigh := BuildPS(PSFields{FrameType: PSPub, HighPriority: true})
	idLow := BuildPS(PSFields{FrameType: PSPub, HighPriority: false})
	assert.Equal(t, TagPSHigh, ParseTag(idHigh))
	assert.Equal(t, TagPSLow, ParseTag(idLow))
}

func TestBWRoundTrip(t *testing.T) {
	types := []BWFrameType{BWRepeat, BWReady, BWData}
	for _, ft := range types {
		for _, aux1 := range []bool{true, false} {
			for _, aux0 := range []bool{true, false} {
				f := BWFields{FrameType: ft, Priority: 1, Sender: 3, Target: 0x3F, ClassMask: ClassMCU | ClassMotor, Aux1: aux1, Aux0: aux0}
				id := BuildBW(f)
				got, err := ParseBW(id)
				require.NoError(t, err)
				assert.Equal(t, f, got)
			}
		}
	}
}

func TestBWClassMaskReservedBitsZero(t *testing.T) {
	id := BuildBW(BWFields{FrameType: BWReady, ClassMask: 0xFF})
	got, err := ParseBW(id)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0F), got.ClassMask)
}

func TestWrongTagRejectedByEveryFamily(t *testing.T) {
	// An identifier whose top 3 bits are 0b001 (unused) must be rejected
	// by every family's Parse function (§8 property 8).
	bogus := uint32(0b001) << 26
	_, err := ParseRT(bogus)
	assert.ErrorIs(t, err, ErrWrongTag)
	_, err = ParseRPC(bogus)
	assert.ErrorIs(t, err, ErrWrongTag)
	_, err = ParsePS(bogus)
	assert.ErrorIs(t, err, ErrWrongTag)
	_, err = ParseBW(bogus)
	assert.ErrorIs(t, err, ErrWrongTag)
	assert.False(t, IsKnownTag(ParseTag(bogus)))
}
