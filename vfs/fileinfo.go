package vfs

import (
	"os"
	"time"
)

// Stat is the platform independent subset of struct stat.
type Stat struct {
	Ino     uint64
	Nlink   uint32
	Blocks  int64
	BlkSize int32
	Mtime   time.Time
	Atime   time.Time
	Ctime   time.Time
	// Btime is zero when the platform does not report birth times.
	Btime time.Time
	// Flags are the BSD st_flags, zero where the platform has none.
	Flags uint32
}

// AttributesFromFileInfo converts an lstat result into Attributes.
func AttributesFromFileInfo(fi os.FileInfo) *Attributes {
	a := (&Attributes{}).SetFileType(FileTypeFromMode(fi.Mode()))

	mode := uint32(fi.Mode().Perm())
	a.SetSizeBytes(uint64(fi.Size())).
		SetUnixMode(mode).
		SetPermissions(NewPermissionsFromMode(mode)).
		SetLastDataModificationTime(fi.ModTime())

	if s, ok := CompatStat(fi); ok {
		a.SetInodeNumber(s.Ino).
			SetLinkCount(s.Nlink).
			SetDiskSizeBytes(uint64(s.Blocks) * 512).
			SetAccessTime(s.Atime).
			SetLastStatusChangeTime(s.Ctime)
		if !s.Btime.IsZero() {
			a.SetBirthTime(s.Btime)
		}
		if s.Flags != 0 {
			a.SetFlags(s.Flags)
		}
	}
	return a
}
