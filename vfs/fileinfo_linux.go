package vfs

import (
	"os"
	"syscall"
	"time"
)

// CompatStat leaves Btime and Flags zero; Linux stat(2) has neither.
func CompatStat(fi os.FileInfo) (Stat, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Stat{}, false
	}

	s := Stat{
		Ino:     st.Ino,
		Nlink:   uint32(st.Nlink),
		Blocks:  st.Blocks,
		BlkSize: int32(st.Blksize),
	}
	s.Atime = time.Unix(st.Atim.Unix())
	s.Mtime = time.Unix(st.Mtim.Unix())
	s.Ctime = time.Unix(st.Ctim.Unix())
	return s, true
}
