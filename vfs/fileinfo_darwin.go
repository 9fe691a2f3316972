package vfs

import (
	"os"
	"syscall"
	"time"
)

// CompatStat reports birth time and the BSD file flags, both native to
// darwin's stat.
func CompatStat(fi os.FileInfo) (Stat, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Stat{}, false
	}

	s := Stat{
		Ino:     st.Ino,
		Nlink:   uint32(st.Nlink),
		Blocks:  st.Blocks,
		BlkSize: st.Blksize,
		Flags:   st.Flags,
	}
	s.Atime = time.Unix(st.Atimespec.Unix())
	s.Mtime = time.Unix(st.Mtimespec.Unix())
	s.Ctime = time.Unix(st.Ctimespec.Unix())
	s.Btime = time.Unix(st.Birthtimespec.Unix())
	return s, true
}
