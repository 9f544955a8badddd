package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 63, 64, 16383, 16384, 1<<30 - 1, 1 << 30, 1 << 63}
	for _, v := range values {
		enc := EncodeCompact(nil, v)
		got, n, err := DecodeCompact(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(enc), n)
	}
}

func TestDecodeModeSingle(t *testing.T) {
	v, n, err := DecodeCompact([]byte{0xFC})
	require.NoError(t, err)
	assert.Equal(t, uint64(63), v)
	assert.Equal(t, 1, n)
}

func TestDecodeModeTwo(t *testing.T) {
	v, n, err := DecodeCompact([]byte{0x01, 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint64(64), v)
	assert.Equal(t, 2, n)
}

func TestDecodeModeFourAllZeroValueBits(t *testing.T) {
	v, n, err := DecodeCompact([]byte{0x02, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
	assert.Equal(t, 4, n)
}

func TestDecodeRejectsNonCanonicalBigInteger(t *testing.T) {
	_, _, err := DecodeCompact([]byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestDecodeInsufficientInput(t *testing.T) {
	_, _, err := DecodeCompact([]byte{0x01})
	require.Error(t, err)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, _, err := DecodeCompact(nil)
	require.Error(t, err)
}
