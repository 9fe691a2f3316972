// Package memfs is a VFSFileSystem kept entirely in memory. Removed
// nodes stay reachable through handles that are still open, as with
// unlinked files on a POSIX filesystem.
package memfs

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/pkg/xattr"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const blockSize = 4096

type node struct {
	ino      uint64
	name     string
	parent   *node
	dir      bool
	children map[string]*node
	data     []byte
	xattrs   map[string][]byte
	mode     uint32
	mtime    time.Time
	atime    time.Time
	ctime    time.Time
	btime    time.Time
	unlinked bool
}

type openFile struct {
	n     *node
	flags int
}

type FS struct {
	mu         sync.Mutex
	root       *node
	nextIno    uint64
	nextHandle vfs.VfsHandle
	handles    map[vfs.VfsHandle]*openFile
	watchers   map[vfs.VfsHandle]chan *vfs.NotifyEvent

	// Now supplies timestamps. Tests replace it for determinism.
	Now func() time.Time
}

func New() *FS {
	fs := &FS{
		handles:  make(map[vfs.VfsHandle]*openFile),
		watchers: make(map[vfs.VfsHandle]chan *vfs.NotifyEvent),
		Now:      time.Now,
	}
	fs.root = fs.newNode("", nil, true, 0755)
	return fs
}

func (fs *FS) newNode(name string, parent *node, dir bool, mode uint32) *node {
	fs.nextIno++
	now := fs.Now()
	n := &node{
		ino:    fs.nextIno,
		name:   name,
		parent: parent,
		dir:    dir,
		xattrs: make(map[string][]byte),
		mode:   mode & 0777,
		mtime:  now,
		atime:  now,
		ctime:  now,
		btime:  now,
	}
	if dir {
		n.children = make(map[string]*node)
	}
	if parent != nil {
		parent.children[name] = n
		parent.mtime, parent.ctime = now, now
	}
	return n
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(vfs.CleanPath(p), "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func (fs *FS) walk(from *node, p string) (*node, error) {
	n := from
	for _, name := range splitPath(p) {
		if !n.dir {
			return nil, syscall.ENOTDIR
		}
		c, ok := n.children[name]
		if !ok {
			return nil, syscall.ENOENT
		}
		n = c
	}
	return n, nil
}

// parentOf resolves the directory that holds p and returns it with the
// final name.
func (fs *FS) parentOf(p string) (*node, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", syscall.EEXIST
	}
	dir, err := fs.walk(fs.root, strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !dir.dir {
		return nil, "", syscall.ENOTDIR
	}
	return dir, parts[len(parts)-1], nil
}

func (fs *FS) open(h vfs.VfsHandle) (*openFile, error) {
	o, ok := fs.handles[h]
	if !ok {
		log.Debugf("memfs: handle not found %d", h)
		return nil, syscall.EBADF
	}
	return o, nil
}

func (fs *FS) addHandle(n *node, flags int) vfs.VfsHandle {
	fs.nextHandle++
	fs.handles[fs.nextHandle] = &openFile{n: n, flags: flags}
	return fs.nextHandle
}

func (fs *FS) notify(dir *node, ev uint8, name string) {
	for h, ch := range fs.watchers {
		o, ok := fs.handles[h]
		if !ok || o.n != dir {
			continue
		}
		select {
		case ch <- &vfs.NotifyEvent{EvType: ev, Handle: h, Name: name}:
		default:
		}
	}
}

func attributesOf(n *node) *vfs.Attributes {
	a := &vfs.Attributes{}
	if n.dir {
		a.SetFileType(vfs.FileTypeDirectory).SetLinkCount(2)
	} else {
		a.SetFileType(vfs.FileTypeRegularFile).SetLinkCount(1)
	}
	if n.unlinked {
		a.SetLinkCount(0)
	}
	size := uint64(len(n.data))
	return a.SetInodeNumber(n.ino).
		SetSizeBytes(size).
		SetDiskSizeBytes((size + blockSize - 1) / blockSize * blockSize).
		SetUnixMode(n.mode).
		SetPermissions(vfs.NewPermissionsFromMode(n.mode)).
		SetLastDataModificationTime(n.mtime).
		SetAccessTime(n.atime).
		SetLastStatusChangeTime(n.ctime).
		SetBirthTime(n.btime)
}

func (fs *FS) GetAttr(h vfs.VfsHandle) (*vfs.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if h == 0 {
		return attributesOf(fs.root), nil
	}
	o, err := fs.open(h)
	if err != nil {
		return nil, err
	}
	return attributesOf(o.n), nil
}

func (fs *FS) SetAttr(h vfs.VfsHandle, a *vfs.Attributes) (*vfs.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return nil, err
	}
	n := o.n
	if t, ok := a.GetLastDataModificationTime(); ok {
		n.mtime = t
	}
	if t, ok := a.GetAccessTime(); ok {
		n.atime = t
	}
	if t, ok := a.GetBirthTime(); ok {
		n.btime = t
	}
	if m, ok := a.GetUnixMode(); ok {
		n.mode = m
	}
	n.ctime = fs.Now()
	if t, ok := a.GetLastStatusChangeTime(); ok {
		n.ctime = t
	}
	return attributesOf(n), nil
}

func (fs *FS) StatFS(vfs.VfsHandle) (*vfs.FSAttributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var used, files uint64
	var count func(*node)
	count = func(n *node) {
		files++
		used += (uint64(len(n.data)) + blockSize - 1) / blockSize
		for _, c := range n.children {
			count(c)
		}
	}
	count(fs.root)

	const total = 1 << 20
	a := &vfs.FSAttributes{}
	a.SetBlockSize(blockSize).
		SetBlocks(total).
		SetFreeBlocks(total - used).
		SetAvailableBlocks(total - used).
		SetFiles(files).
		SetFreeFiles(total - files)
	return a, nil
}

func (fs *FS) FSync(h vfs.VfsHandle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.open(h)
	return err
}

func (fs *FS) Open(p string, flags int, mode int) (vfs.VfsHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.walk(fs.root, p)
	switch {
	case err == syscall.ENOENT && flags&os.O_CREATE != 0:
		dir, name, perr := fs.parentOf(p)
		if perr != nil {
			return 0, perr
		}
		n = fs.newNode(name, dir, false, uint32(mode))
		fs.notify(dir, vfs.NotifyEventCreate, name)
	case err != nil:
		return 0, err
	case flags&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		return 0, syscall.EEXIST
	case n.dir && flags&(os.O_WRONLY|os.O_RDWR) != 0:
		return 0, syscall.EISDIR
	case flags&os.O_TRUNC != 0 && len(n.data) > 0:
		n.data = nil
		n.mtime, n.ctime = fs.Now(), fs.Now()
	}
	return fs.addHandle(n, flags), nil
}

func (fs *FS) Close(h vfs.VfsHandle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := fs.open(h); err != nil {
		return err
	}
	delete(fs.handles, h)
	delete(fs.watchers, h)
	return nil
}

func (fs *FS) Lookup(h vfs.VfsHandle, name string) (*vfs.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	from := fs.root
	if h != 0 {
		o, err := fs.open(h)
		if err != nil {
			return nil, err
		}
		from = o.n
	}
	n, err := fs.walk(from, name)
	if err != nil {
		return nil, err
	}
	return attributesOf(n), nil
}

func (fs *FS) Mkdir(p string, mode int) (*vfs.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, name, err := fs.parentOf(p)
	if err != nil {
		return nil, err
	}
	if _, ok := dir.children[name]; ok {
		return nil, syscall.EEXIST
	}
	n := fs.newNode(name, dir, true, uint32(mode))
	fs.notify(dir, vfs.NotifyEventCreate, name)
	return attributesOf(n), nil
}

func (fs *FS) Read(h vfs.VfsHandle, buf []byte, offset uint64, flags int) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return 0, err
	}
	if o.n.dir {
		return 0, syscall.EISDIR
	}
	if o.flags&os.O_WRONLY != 0 {
		return 0, syscall.EBADF
	}
	if offset >= uint64(len(o.n.data)) {
		return 0, io.EOF
	}
	o.n.atime = fs.Now()
	return copy(buf, o.n.data[offset:]), nil
}

func (fs *FS) Write(h vfs.VfsHandle, buf []byte, offset uint64, flags int) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return 0, err
	}
	if o.n.dir {
		return 0, syscall.EISDIR
	}
	if o.flags&(os.O_WRONLY|os.O_RDWR) == 0 {
		return 0, syscall.EBADF
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(o.n.data)) {
		grown := make([]byte, end)
		copy(grown, o.n.data)
		o.n.data = grown
	}
	copy(o.n.data[offset:], buf)
	o.n.mtime, o.n.ctime = fs.Now(), fs.Now()
	if o.n.parent != nil && !o.n.unlinked {
		fs.notify(o.n.parent, vfs.NotifyEventModify, o.n.name)
	}
	return len(buf), nil
}

func (fs *FS) OpenDir(p string) (vfs.VfsHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.walk(fs.root, p)
	if err != nil {
		return 0, err
	}
	if !n.dir {
		return 0, syscall.ENOTDIR
	}
	return fs.addHandle(n, os.O_RDONLY), nil
}

func (fs *FS) ReadDir(h vfs.VfsHandle, pos int, maxEntries int) ([]vfs.DirInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return nil, err
	}
	if !o.n.dir {
		return nil, syscall.ENOTDIR
	}

	parent := o.n.parent
	if parent == nil {
		parent = o.n
	}
	entries := []vfs.DirInfo{
		{Name: ".", Attributes: *attributesOf(o.n)},
		{Name: "..", Attributes: *attributesOf(parent)},
	}
	names := maps.Keys(o.n.children)
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, vfs.DirInfo{Name: name, Attributes: *attributesOf(o.n.children[name])})
	}

	if pos >= len(entries) {
		return nil, nil
	}
	entries = entries[pos:]
	if maxEntries > 0 && len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries, nil
}

func (fs *FS) detach(n *node) {
	delete(n.parent.children, n.name)
	now := fs.Now()
	n.parent.mtime, n.parent.ctime = now, now
}

func (fs *FS) Unlink(h vfs.VfsHandle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	n := o.n
	switch {
	case n.parent == nil:
		return syscall.EBUSY
	case n.unlinked:
		return syscall.ENOENT
	case n.dir && len(n.children) > 0:
		return syscall.ENOTEMPTY
	}
	fs.detach(n)
	n.unlinked = true
	fs.notify(n.parent, vfs.NotifyEventRemove, n.name)
	return nil
}

func (fs *FS) Truncate(h vfs.VfsHandle, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	if o.n.dir {
		return syscall.EISDIR
	}
	data := make([]byte, size)
	copy(data, o.n.data)
	o.n.data = data
	o.n.mtime, o.n.ctime = fs.Now(), fs.Now()
	return nil
}

func (fs *FS) Rename(h vfs.VfsHandle, to string, flags int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	n := o.n
	if n.parent == nil {
		return syscall.EBUSY
	}
	if n.unlinked {
		return syscall.ENOENT
	}
	dir, name, err := fs.parentOf(to)
	if err != nil {
		return err
	}
	for d := dir; d != nil; d = d.parent {
		if d == n {
			return syscall.EINVAL
		}
	}

	if target, ok := dir.children[name]; ok {
		if target == n {
			return nil
		}
		switch {
		case flags&vfs.RENAME_REPLACE == 0:
			return syscall.EEXIST
		case target.dir && !n.dir:
			return syscall.EISDIR
		case !target.dir && n.dir:
			return syscall.ENOTDIR
		case target.dir && len(target.children) > 0:
			return syscall.ENOTEMPTY
		}
		fs.detach(target)
		target.unlinked = true
	}

	from := n.parent
	fs.detach(n)
	fs.notify(from, vfs.NotifyEventRename, n.name)
	n.name = name
	n.parent = dir
	dir.children[name] = n
	n.ctime = fs.Now()
	fs.notify(dir, vfs.NotifyEventCreate, name)
	return nil
}

func (fs *FS) Listxattr(h vfs.VfsHandle) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return nil, err
	}
	keys := maps.Keys(o.n.xattrs)
	sort.Strings(keys)
	return keys, nil
}

func (fs *FS) Getxattr(h vfs.VfsHandle, key string, val []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return 0, err
	}
	v, ok := o.n.xattrs[key]
	if !ok {
		return 0, xattr.ENOATTR
	}
	if val == nil {
		return len(v), nil
	}
	if len(val) < len(v) {
		return 0, syscall.ERANGE
	}
	return copy(val, v), nil
}

func (fs *FS) Setxattr(h vfs.VfsHandle, key string, val []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	o.n.xattrs[key] = append([]byte(nil), val...)
	o.n.ctime = fs.Now()
	return nil
}

func (fs *FS) Removexattr(h vfs.VfsHandle, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	if _, ok := o.n.xattrs[key]; !ok {
		return xattr.ENOATTR
	}
	delete(o.n.xattrs, key)
	o.n.ctime = fs.Now()
	return nil
}

func (fs *FS) RegisterNotify(h vfs.VfsHandle, ch chan *vfs.NotifyEvent) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, err := fs.open(h)
	if err != nil {
		return err
	}
	if !o.n.dir {
		return syscall.ENOTDIR
	}
	fs.watchers[h] = ch
	return nil
}

func (fs *FS) RemoveNotify(h vfs.VfsHandle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.watchers[h]; !ok {
		return syscall.EBADF
	}
	delete(fs.watchers, h)
	return nil
}

var (
	_ vfs.VFSFileSystem = (*FS)(nil)
	_ vfs.Notifier      = (*FS)(nil)
)
