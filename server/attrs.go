package server

import (
	"errors"
	"os"
	"syscall"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/stats"
	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/pkg/xattr"
	log "github.com/sirupsen/logrus"
)

func isNoAttr(err error) bool {
	return errors.Is(err, xattr.ENOATTR)
}

func isNotSupported(err error) bool {
	return errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EOPNOTSUPP)
}

// readRecord loads the attribute record of the file behind h. A missing
// or unreadable record reports false.
func (v *Volume) readRecord(h vfs.VfsHandle) (vfs.DosAttrib, bool) {
	if !v.cfg.Xattrs {
		return vfs.DosAttrib{}, false
	}
	buf := make([]byte, 64)
	n, err := v.fs.Getxattr(h, vfs.DosAttribXattr, buf)
	if err != nil {
		if !isNoAttr(err) && !isNotSupported(err) {
			log.Debugf("read attribute record: %v", err)
		}
		return vfs.DosAttrib{}, false
	}
	stats.AddXattrRead("")
	rec, err := vfs.DecodeDosAttrib(buf[:n])
	if err != nil {
		log.Errorf("bad attribute record: %v", err)
		return vfs.DosAttrib{}, false
	}
	return rec, true
}

// writeRecord fails with STATUS_NOT_SUPPORTED when the volume keeps no
// records; callers decide whether that matters.
func (v *Volume) writeRecord(h vfs.VfsHandle, rec vfs.DosAttrib) error {
	if !v.cfg.Xattrs {
		return STATUS_NOT_SUPPORTED
	}
	stats.AddXattrWrite("")
	return v.fs.Setxattr(h, vfs.DosAttribXattr, rec.Encode())
}

func (v *Volume) restoreRecord(h vfs.VfsHandle, old vfs.DosAttrib, hadRec bool) {
	var err error
	if hadRec {
		err = v.fs.Setxattr(h, vfs.DosAttribXattr, old.Encode())
	} else {
		err = v.fs.Removexattr(h, vfs.DosAttribXattr)
	}
	if err != nil {
		log.Errorf("restore attribute record: %v", err)
	}
}

// currentAttributes are the native attribute bits of the file behind h.
func (v *Volume) currentAttributes(h vfs.VfsHandle, attrs *vfs.Attributes, p string) uint32 {
	if rec, ok := v.readRecord(h); ok {
		return vfs.NormalizeAttributes(rec.Attributes, attrs.IsDir())
	}
	return AttributesFromVfs(attrs, p)
}

// attributesAt reads the attributes of a path that has no open handle.
func (v *Volume) attributesAt(p string, attrs *vfs.Attributes) uint32 {
	var h vfs.VfsHandle
	var err error
	if attrs.IsDir() {
		h, err = v.fs.OpenDir(p)
	} else {
		h, err = v.fs.Open(p, os.O_RDONLY, 0)
	}
	if err != nil {
		return AttributesFromVfs(attrs, p)
	}
	defer v.fs.Close(h)
	return v.currentAttributes(h, attrs, p)
}

func (v *Volume) fileInfo(h vfs.VfsHandle, attrs *vfs.Attributes, p string) *FileInfo {
	info := infoFromVfs(attrs, p)
	if rec, ok := v.readRecord(h); ok {
		info.FileAttributes = vfs.NormalizeAttributes(rec.Attributes, attrs.IsDir())
		if !rec.BirthTime.IsZero() {
			info.CreationTime = rec.BirthTime
		}
	}
	return info
}

func infoFromVfs(attrs *vfs.Attributes, p string) *FileInfo {
	ino, _ := attrs.GetInodeNumber()
	links, _ := attrs.GetLinkCount()
	return &FileInfo{
		FileAttributes: AttributesFromVfs(attrs, p),
		CreationTime:   BirthTimeFromVfs(attrs),
		LastAccessTime: AccessTimeFromVfs(attrs),
		LastWriteTime:  ModifiedTimeFromVfs(attrs),
		ChangeTime:     ChangeTimeFromVfs(attrs),
		EndOfFile:      SizeFromVfs(attrs),
		AllocationSize: DiskSizeFromVfs(attrs),
		FileId:         ino,
		NumberOfLinks:  links,
		Directory:      attrs.IsDir(),
	}
}

// infoAt reports a path that has no open handle, falling back to the
// plain attributes when the file cannot be opened.
func (v *Volume) infoAt(p string, attrs *vfs.Attributes) *FileInfo {
	var h vfs.VfsHandle
	var err error
	if attrs.IsDir() {
		h, err = v.fs.OpenDir(p)
	} else {
		h, err = v.fs.Open(p, os.O_RDONLY, 0)
	}
	if err != nil {
		return infoFromVfs(attrs, p)
	}
	defer v.fs.Close(h)
	return v.fileInfo(h, attrs, p)
}
