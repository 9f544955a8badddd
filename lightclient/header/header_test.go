package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestHeader(parentHash [32]byte, number uint64, stateRoot, extrinsicsRoot [32]byte, digest []byte) []byte {
	buf := append([]byte{}, parentHash[:]...)
	buf = append(buf, encodeCompactForTest(number)...)
	buf = append(buf, stateRoot[:]...)
	buf = append(buf, extrinsicsRoot[:]...)
	buf = append(buf, digest...)
	return buf
}

func encodeCompactForTest(v uint64) []byte {
	if v < 64 {
		return []byte{byte(v << 2)}
	}
	panic("test helper only supports small values")
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	parent := [32]byte{1}
	stateRoot := [32]byte{2}
	extrinsicsRoot := [32]byte{3}
	digest := []byte{0xde, 0xad, 0xbe, 0xef}

	encoded := encodeTestHeader(parent, 42, stateRoot, extrinsicsRoot, digest)

	h, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, parent, h.ParentHash)
	assert.Equal(t, uint64(42), h.Number)
	assert.Equal(t, stateRoot, h.StateRoot)
	assert.Equal(t, extrinsicsRoot, h.ExtrinsicsRoot)
	assert.Equal(t, digest, h.DigestBytes)
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestHashFromSCALEEncodedDeterministic(t *testing.T) {
	encoded := encodeTestHeader([32]byte{9}, 1, [32]byte{8}, [32]byte{7}, nil)
	h1 := HashFromSCALEEncoded(encoded)
	h2 := HashFromSCALEEncoded(encoded)
	assert.Equal(t, h1, h2)
}
