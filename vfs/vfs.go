package vfs

type VfsHandle uint64

// DirInfo is one directory entry returned by ReadDir.
type DirInfo struct {
	Name string
	Attributes
}

// VFSFileSystem is the POSIX-shaped callback contract a filesystem
// implements. Paths are slash separated and rooted at "/". Errors are in
// the POSIX domain: syscall.Errno values or os errors wrapping them.
//
// Every handle returned by Open or OpenDir is released by exactly one
// Close.
type VFSFileSystem interface {
	GetAttr(VfsHandle) (*Attributes, error)
	// SetAttr applies the times and mode present in the attributes.
	SetAttr(VfsHandle, *Attributes) (*Attributes, error)

	StatFS(VfsHandle) (*FSAttributes, error)

	FSync(VfsHandle) error

	// Open takes os.OpenFile style flags and a creation mode.
	Open(string, int, int) (VfsHandle, error)
	Close(VfsHandle) error

	// Lookup resolves a path relative to a directory handle; handle 0 is
	// the root.
	Lookup(VfsHandle, string) (*Attributes, error)

	Mkdir(string, int) (*Attributes, error)

	Read(VfsHandle, []byte, uint64, int) (int, error)
	Write(VfsHandle, []byte, uint64, int) (int, error)

	OpenDir(string) (VfsHandle, error)
	// ReadDir lists the directory afresh, skipping the first pos entries
	// and returning at most maxEntries (all when maxEntries <= 0).
	ReadDir(handle VfsHandle, pos int, maxEntries int) ([]DirInfo, error)

	// Unlink removes the file or empty directory the handle refers to.
	// The handle stays valid until Close.
	Unlink(VfsHandle) error

	Truncate(VfsHandle, uint64) error

	// Rename moves the object behind the handle to a new path. flags 1
	// replaces an existing target.
	Rename(VfsHandle, string, int) error

	Listxattr(VfsHandle) ([]string, error)
	// Getxattr copies the value into the buffer and returns its length;
	// a nil buffer only queries the length.
	Getxattr(VfsHandle, string, []byte) (int, error)
	Setxattr(VfsHandle, string, []byte) error
	Removexattr(VfsHandle, string) error
}

// Notifier is implemented by filesystems that report directory changes.
// Sends never block, and nothing is sent on a channel once RemoveNotify
// for its handle has returned.
type Notifier interface {
	RegisterNotify(VfsHandle, chan *NotifyEvent) error
	RemoveNotify(VfsHandle) error
}

const (
	NotifyEventCreate uint8 = iota + 1
	NotifyEventRemove
	NotifyEventModify
	NotifyEventRename
)

type NotifyEvent struct {
	EvType uint8
	Handle VfsHandle
	Name   string
}

const (
	RENAME_NOREPLACE = 0
	RENAME_REPLACE   = 1
)
