// Package scale implements the subset of the SCALE wire format this
// light client needs: the compact (variable-length) unsigned integer
// encoding used by storage keys and warp-sync messages.
package scale

import (
	"encoding/binary"
	"fmt"
)

// DefaultHeapPages is the fallback used when a block's `:heappages`
// storage key is absent, matching the original implementation.
const DefaultHeapPages uint64 = 1024

// DecodeHeapPages decodes the `:heappages` SCALE-compact u64. A nil
// slice means the key was absent at the target block and yields
// DefaultHeapPages.
func DecodeHeapPages(raw []byte) (uint64, error) {
	if raw == nil {
		return DefaultHeapPages, nil
	}
	v, _, err := DecodeCompact(raw)
	return v, err
}

// mode is the two low bits of the first encoded byte.
const (
	modeSingle mode = 0b00
	modeTwo    mode = 0b01
	modeFour   mode = 0b10
	modeBig    mode = 0b11
)

type mode byte

// DecodeError reports why a compact integer failed to decode. It
// carries the offending slice so a caller can log or fuzz-replay it.
type DecodeError struct {
	Reason string
	Input  []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("scale: compact decode: %s (input=% x)", e.Reason, e.Input)
}

func decodeErr(reason string, input []byte) error {
	return &DecodeError{Reason: reason, Input: input}
}

// DecodeCompact decodes a compact unsigned integer prefix of b and
// returns the value together with the number of bytes consumed.
func DecodeCompact(b []byte) (value uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, decodeErr("empty input", b)
	}

	switch mode(b[0] & 0b11) {
	case modeSingle:
		return uint64(b[0] >> 2), 1, nil

	case modeTwo:
		if len(b) < 2 {
			return 0, 0, decodeErr("insufficient input for two-byte mode", b)
		}
		v := uint64(b[0]>>2) | uint64(b[1])<<6
		return v, 2, nil

	case modeFour:
		if len(b) < 4 {
			return 0, 0, decodeErr("insufficient input for four-byte mode", b)
		}
		raw := binary.LittleEndian.Uint32(b[:4])
		return uint64(raw >> 2), 4, nil

	default: // modeBig
		n := int(b[0]>>2) + 4
		if len(b) < 1+n {
			return 0, 0, decodeErr("insufficient input for big-integer mode", b)
		}
		valueBytes := b[1 : 1+n]
		if valueBytes[len(valueBytes)-1] == 0 {
			return 0, 0, decodeErr("non-canonical big-integer encoding: trailing zero byte", b)
		}
		if n > 8 {
			// Anything beyond the first 8 bytes must be zero or the
			// value overflows a uint64.
			for _, extra := range valueBytes[8:] {
				if extra != 0 {
					return 0, 0, decodeErr("big-integer value overflows target width", b)
				}
			}
			valueBytes = valueBytes[:8]
		}
		var padded [8]byte
		copy(padded[:], valueBytes)
		return binary.LittleEndian.Uint64(padded[:]), 1 + n, nil
	}
}

// EncodeCompact appends the compact encoding of v to dst and returns
// the extended slice.
func EncodeCompact(dst []byte, v uint64) []byte {
	switch {
	case v < 1<<6:
		return append(dst, byte(v<<2)|byte(modeSingle))

	case v < 1<<14:
		buf := make([]byte, 2)
		enc := uint16(v<<2) | uint16(modeTwo)
		binary.LittleEndian.PutUint16(buf, enc)
		return append(dst, buf...)

	case v < 1<<30:
		buf := make([]byte, 4)
		enc := uint32(v<<2) | uint32(modeFour)
		binary.LittleEndian.PutUint32(buf, enc)
		return append(dst, buf...)

	default:
		var full [8]byte
		binary.LittleEndian.PutUint64(full[:], v)
		n := 8
		for n > 4 && full[n-1] == 0 {
			n--
		}
		prefix := byte((n-4)<<2) | byte(modeBig)
		dst = append(dst, prefix)
		return append(dst, full[:n]...)
	}
}
