// Package header decodes the SCALE-encoded block headers the sync
// service hands back: parent hash, a compact block number, state
// root, extrinsics root, and an opaque digest blob. Nothing in this
// core inspects digest log items, so they're kept as raw bytes rather
// than decoded into their individual items.
package header

import (
	"crypto/sha256"

	"github.com/pkg/errors"
	"github.com/substrate-lite/lightnode/lightclient/scale"
)

// Header is a decoded block header.
type Header struct {
	ParentHash     [32]byte
	Number         uint64
	StateRoot      [32]byte
	ExtrinsicsRoot [32]byte
	DigestBytes    []byte // raw, undecoded digest log
}

// ErrTruncated reports a header buffer that ended before a fixed-size
// field could be read.
var ErrTruncated = errors.New("header: truncated buffer")

// Decode parses a SCALE-encoded header. It does not validate the
// digest's internal structure.
func Decode(buf []byte) (Header, error) {
	var h Header
	if len(buf) < 32 {
		return Header{}, ErrTruncated
	}
	copy(h.ParentHash[:], buf[:32])
	buf = buf[32:]

	number, n, err := scale.DecodeCompact(buf)
	if err != nil {
		return Header{}, errors.Wrap(err, "header: decoding number")
	}
	h.Number = number
	buf = buf[n:]

	if len(buf) < 64 {
		return Header{}, ErrTruncated
	}
	copy(h.StateRoot[:], buf[:32])
	copy(h.ExtrinsicsRoot[:], buf[32:64])
	buf = buf[64:]

	h.DigestBytes = append([]byte(nil), buf...)
	return h, nil
}

// HashFromSCALEEncoded computes a block's hash directly from its
// encoded form, without a full Decode. Real chains hash with
// blake2b-256; this core treats hashing as swappable the same way it
// treats signature verification, so sha256 stands in here and is
// documented rather than hidden (see DESIGN.md).
func HashFromSCALEEncoded(encoded []byte) [32]byte {
	return sha256.Sum256(encoded)
}
