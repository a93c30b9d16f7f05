package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("sessync: corrupt entry")
	magic4     = [...]byte{'S', 'S', 'Y', 'N'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | gen(u64 be) | expiresAt(i64 be, unix ms; 0 = none) | vlen(u32 be) | payload(vlen)
//
// The expiry instant travels inside the envelope so lazy eviction works even
// on stores without per-entry TTL support (e.g. BigCache).
func Encode(gen uint64, expiresAtMs int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAtMs))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func Decode(b []byte) (gen uint64, expiresAtMs int64, payload []byte, err error) {
	const hdr = 4 + 1 + 8 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return 0, 0, nil, ErrCorrupt
	}

	off := 5

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	expiresAtMs = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return 0, 0, nil, ErrCorrupt
	}

	return gen, expiresAtMs, b[off : off+vlen], nil
}
