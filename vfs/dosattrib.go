package vfs

import (
	"encoding/binary"
	"syscall"
	"time"
)

// DosAttribXattr is the reserved extended attribute holding a file's
// DosAttrib record. It is never listed as a stream.
const DosAttribXattr = "user.DOSATTRIB"

const (
	FILE_ATTRIBUTE_READONLY            uint32 = 0x00000001
	FILE_ATTRIBUTE_HIDDEN              uint32 = 0x00000002
	FILE_ATTRIBUTE_SYSTEM              uint32 = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY           uint32 = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE             uint32 = 0x00000020
	FILE_ATTRIBUTE_NORMAL              uint32 = 0x00000080
	FILE_ATTRIBUTE_TEMPORARY           uint32 = 0x00000100
	FILE_ATTRIBUTE_OFFLINE             uint32 = 0x00001000
	FILE_ATTRIBUTE_NOT_CONTENT_INDEXED uint32 = 0x00002000
)

// SettableAttributes are the bits a caller may store; DIRECTORY and
// NORMAL are derived.
const SettableAttributes = FILE_ATTRIBUTE_READONLY | FILE_ATTRIBUTE_HIDDEN |
	FILE_ATTRIBUTE_SYSTEM | FILE_ATTRIBUTE_ARCHIVE | FILE_ATTRIBUTE_TEMPORARY |
	FILE_ATTRIBUTE_OFFLINE | FILE_ATTRIBUTE_NOT_CONTENT_INDEXED

// NormalizeAttributes reduces a requested attribute set to what is stored
// and reported: settable bits as given, DIRECTORY for directories, NORMAL
// only when nothing else remains.
func NormalizeAttributes(requested uint32, isDir bool) uint32 {
	a := requested & SettableAttributes
	if isDir {
		a |= FILE_ATTRIBUTE_DIRECTORY
	}
	if a == 0 {
		a = FILE_ATTRIBUTE_NORMAL
	}
	return a
}

const (
	dosAttribVersion = 2
	dosAttribSize    = 20
	dosHasBirth      = 1

	// version 1 records held the birth time as int64 Unix nanoseconds
	dosAttribV1Size = 16
)

// The native timestamp range: 100ns ticks since 1601 in a signed 64-bit
// counter.
var (
	MinFileTime = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxFileTime = time.Date(30828, 9, 14, 2, 48, 5, 477580700, time.UTC)
)

// ValidFileTime reports whether t lies in the native timestamp range.
func ValidFileTime(t time.Time) bool {
	return !t.Before(MinFileTime) && !t.After(MaxFileTime)
}

// DosAttrib is the per-file record of native attributes and the explicitly
// set creation time. A zero BirthTime means the backing file's own birth
// time applies.
//
// Layout, little endian: version u16, flags u16, attributes u32, birth
// time as int64 Unix seconds and u32 nanoseconds.
type DosAttrib struct {
	Attributes uint32
	BirthTime  time.Time
}

func (d DosAttrib) Encode() []byte {
	b := make([]byte, dosAttribSize)
	binary.LittleEndian.PutUint16(b[0:], dosAttribVersion)
	binary.LittleEndian.PutUint32(b[4:], d.Attributes)
	if !d.BirthTime.IsZero() {
		binary.LittleEndian.PutUint16(b[2:], dosHasBirth)
		binary.LittleEndian.PutUint64(b[8:], uint64(d.BirthTime.Unix()))
		binary.LittleEndian.PutUint32(b[16:], uint32(d.BirthTime.Nanosecond()))
	}
	return b
}

func DecodeDosAttrib(b []byte) (DosAttrib, error) {
	var d DosAttrib
	if len(b) < 8 {
		return d, syscall.EINVAL
	}
	version := binary.LittleEndian.Uint16(b[0:])
	hasBirth := binary.LittleEndian.Uint16(b[2:])&dosHasBirth != 0
	switch {
	case version == dosAttribVersion && len(b) == dosAttribSize:
		d.Attributes = binary.LittleEndian.Uint32(b[4:])
		if hasBirth {
			nsec := binary.LittleEndian.Uint32(b[16:])
			if nsec >= 1e9 {
				return DosAttrib{}, syscall.EINVAL
			}
			d.BirthTime = time.Unix(int64(binary.LittleEndian.Uint64(b[8:])), int64(nsec))
		}
	case version == 1 && len(b) == dosAttribV1Size:
		d.Attributes = binary.LittleEndian.Uint32(b[4:])
		if hasBirth {
			d.BirthTime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[8:])))
		}
	default:
		return d, syscall.EINVAL
	}
	return d, nil
}
