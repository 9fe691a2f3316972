// Package mount attaches a Dispatcher to a kernel mount point.
package mount

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"

	"github.com/macos-fuse-t/fusent/server"
	"github.com/macos-fuse-t/fusent/vfs"
	"golang.org/x/sys/unix"
)

// ErrUnavailable is returned by New when the binary was built without a
// FUSE host.
var ErrUnavailable = errors.New("mount: no FUSE host in this build")

type Options struct {
	MountPoint string
	Label      string

	// Args are forwarded to the host unchanged, e.g. "-o", "fsname=x".
	Args []string
}

// Host serves a dispatcher at a mount point.
type Host interface {
	// Start mounts and returns once the kernel serves the mount point, or
	// the mount failed, or ctx is done.
	Start(ctx context.Context) error

	// Unmount detaches the mount point and waits for the host to return.
	Unmount() error
}

// openRequest translates open(2) flags. O_TRUNC is not part of the
// request; the caller truncates after the open so named streams survive.
func openRequest(p string, flags int, create bool) (req server.CreateRequest, trunc bool) {
	req = server.CreateRequest{
		Path:              p,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_OPEN,
		CreateOptions:     server.FILE_NON_DIRECTORY_FILE,
	}

	switch flags & unix.O_ACCMODE {
	case os.O_WRONLY:
		req.DesiredAccess = server.GENERIC_WRITE | server.FILE_READ_ATTRIBUTES
	case os.O_RDWR:
		req.DesiredAccess = server.GENERIC_READ | server.GENERIC_WRITE
	default:
		req.DesiredAccess = server.GENERIC_READ
	}

	if create || flags&os.O_CREATE != 0 {
		req.CreateDisposition = server.FILE_OPEN_IF
		if flags&os.O_EXCL != 0 {
			req.CreateDisposition = server.FILE_CREATE
		}
	}
	trunc = flags&os.O_TRUNC != 0 && req.DesiredAccess&server.GENERIC_WRITE != 0
	return req, trunc
}

// fileMode renders the native attributes as a POSIX mode. READONLY
// clears the write bits.
func fileMode(info *server.FileInfo) uint32 {
	var mode uint32 = unix.S_IFREG | 0644
	if info.Directory {
		mode = unix.S_IFDIR | 0755
	}
	if info.FileAttributes&vfs.FILE_ATTRIBUTE_READONLY != 0 {
		mode &^= 0222
	}
	return mode
}

// attributesWith sets or clears one attribute bit of a reported
// attribute set and returns what SetBasicInfo should store.
func attributesWith(current, bit uint32, set bool) uint32 {
	attrs := current &^ (vfs.FILE_ATTRIBUTE_DIRECTORY | vfs.FILE_ATTRIBUTE_NORMAL)
	if set {
		attrs |= bit
	} else {
		attrs &^= bit
	}
	if attrs == 0 {
		attrs = vfs.FILE_ATTRIBUTE_NORMAL
	}
	return attrs
}

// attributesForMode makes READONLY follow the owner write bit of a chmod.
func attributesForMode(current uint32, mode uint32) uint32 {
	return attributesWith(current, vfs.FILE_ATTRIBUTE_READONLY, mode&0200 == 0)
}

// streamPath maps an extended attribute of p onto the named stream that
// holds it.
func streamPath(p, xattrName string) (string, error) {
	if xattrName == "" || strings.ContainsAny(xattrName, ":/\\") {
		return "", syscall.EINVAL
	}
	return p + ":" + xattrName, nil
}

// xattrNames lists the named streams of an enumeration as attribute
// names.
func xattrNames(streams []server.StreamInfo) []string {
	var names []string
	for _, s := range streams {
		name, err := vfs.ParseStreamName(s.Name)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// errno turns a response into the negative errno a FUSE callback returns.
func errno(rsp *server.Response) int {
	if rsp.Err == nil {
		return 0
	}
	if rsp.Errno == 0 {
		return -int(syscall.EIO)
	}
	return -int(rsp.Errno)
}
