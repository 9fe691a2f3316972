package vfs

import "os"

type FileType int

const (
	FileTypeRegularFile FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	// FileTypeOther covers devices, sockets and pipes. The volume serves
	// them as plain files.
	FileTypeOther
)

// FileTypeFromMode classifies a host file mode.
func FileTypeFromMode(m os.FileMode) FileType {
	switch {
	case m.IsRegular():
		return FileTypeRegularFile
	case m.IsDir():
		return FileTypeDirectory
	case m&os.ModeSymlink != 0:
		return FileTypeSymlink
	}
	return FileTypeOther
}

func (t FileType) String() string {
	switch t {
	case FileTypeRegularFile:
		return "file"
	case FileTypeDirectory:
		return "dir"
	case FileTypeSymlink:
		return "symlink"
	}
	return "other"
}
