package stuff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyShape(t *testing.T) {
	assert.Equal(t, []byte{0xFF}, Append(nil))
	out, err := Unstuff([]byte{0xFF})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMarkerPlacementShortInput(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5}
	got := Append(src)
	want := append([]byte{byte(len(src))}, src...)
	want = append(want, 0xFF)
	assert.Equal(t, want, got)
}

func TestRoundTripVaryingLengths(t *testing.T) {
	for _, n := range []int{0, 1, 2, 253, 254, 255, 256, 508, 509, 510, 2047} {
		src := make([]byte, n)
		for i := range src {
			src[i] = byte(i % 251)
		}
		stuffed := Append(src)
		back, err := Unstuff(stuffed)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, src, back, "n=%d", n)
	}
}

func TestMarkerEveryAtMost254(t *testing.T) {
	src := make([]byte, 600)
	stuffed := Append(src)
	// 600 = 254 + 254 + 92 -> three runs plus terminator
	assert.Equal(t, byte(254), stuffed[0])
	assert.Equal(t, byte(254), stuffed[255])
	assert.Equal(t, byte(92), stuffed[510])
	assert.Equal(t, byte(0xFF), stuffed[len(stuffed)-1])
}

func TestDecodeZeroMarkerFails(t *testing.T) {
	_, err := Unstuff([]byte{0x00})
	assert.ErrorIs(t, err, ErrZeroMarker)
}

func TestDecodeTruncatedFails(t *testing.T) {
	_, err := Unstuff([]byte{5, 1, 2})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeShortBufferFails(t *testing.T) {
	dst := make([]byte, 2)
	_, _, err := Decode(dst, []byte{5, 1, 2, 3, 4, 5, 0xFF})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestEncodeShortBufferFails(t *testing.T) {
	dst := make([]byte, 3)
	_, err := Encode(dst, []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrShortBuffer)
}
