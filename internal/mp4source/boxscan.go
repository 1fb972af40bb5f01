package mp4source

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// peekBoxHeader reads one ISO-BMFF box header from r, returning the raw
// header bytes consumed (8, or 16 when a 64-bit extended size is present),
// the four-character box type, and the box's total size including the
// header just consumed.
func peekBoxHeader(r *bufio.Reader) (hdr []byte, boxType string, size int64, err error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, "", 0, err
	}
	size32 := binary.BigEndian.Uint32(buf[:4])
	boxType = string(buf[4:8])

	if size32 != 1 {
		return buf[:], boxType, int64(size32), nil
	}

	var ext [8]byte
	if _, err := io.ReadFull(r, ext[:]); err != nil {
		return nil, "", 0, fmt.Errorf("mp4source: reading extended box size: %w", err)
	}
	full := make([]byte, 16)
	copy(full, buf[:])
	copy(full[8:], ext[:])
	return full, boxType, int64(binary.BigEndian.Uint64(ext[:])), nil
}

// readBoxHeaderAt parses a box header from an in-memory buffer without
// advancing any cursor, returning the box's total size and type.
func readBoxHeaderAt(buf []byte) (size int64, boxType string) {
	if len(buf) < 8 {
		return 0, ""
	}
	size32 := binary.BigEndian.Uint32(buf[:4])
	boxType = string(buf[4:8])
	if size32 != 1 {
		return int64(size32), boxType
	}
	if len(buf) < 16 {
		return 0, boxType
	}
	return int64(binary.BigEndian.Uint64(buf[8:16])), boxType
}
