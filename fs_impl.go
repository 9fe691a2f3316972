package main

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/pkg/xattr"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type OpenFile struct {
	h     vfs.VfsHandle
	isDir bool
	f     *os.File

	// name is the volume path; it follows renames.
	mu   sync.Mutex
	name string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func (o *OpenFile) path() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name
}

// PassthroughFS exposes a host directory through the vfs callbacks. Named
// streams and attribute records land in the host's extended attributes.
type PassthroughFS struct {
	rootPath  string
	openFiles sync.Map
	nextId    atomic.Uint64
}

func NewPassthroughFS(rootPath string) *PassthroughFS {
	return &PassthroughFS{rootPath: rootPath}
}

func (fs *PassthroughFS) realPath(p string) string {
	return filepath.Join(fs.rootPath, filepath.FromSlash(path.Clean("/"+p)))
}

func (fs *PassthroughFS) getOpen(handle vfs.VfsHandle) (*OpenFile, error) {
	v, ok := fs.openFiles.Load(handle)
	if !ok {
		log.Errorf("filehandle not found %d", handle)
		return nil, syscall.EBADF
	}
	return v.(*OpenFile), nil
}

func (fs *PassthroughFS) addOpen(f *os.File, name string, isDir bool) vfs.VfsHandle {
	h := vfs.VfsHandle(fs.nextId.Add(1))
	fs.openFiles.Store(h, &OpenFile{h: h, f: f, name: name, isDir: isDir})
	return h
}

func (fs *PassthroughFS) GetAttr(handle vfs.VfsHandle) (*vfs.Attributes, error) {
	if handle == 0 {
		info, err := os.Lstat(fs.rootPath)
		if err != nil {
			return nil, err
		}
		return vfs.AttributesFromFileInfo(info), nil
	}

	open, err := fs.getOpen(handle)
	if err != nil {
		return nil, err
	}
	info, err := open.f.Stat()
	if err != nil {
		return nil, err
	}
	return vfs.AttributesFromFileInfo(info), nil
}

// SetAttr applies access and modification times and the permission bits.
// Birth and change times cannot be set on the host and are ignored.
func (fs *PassthroughFS) SetAttr(handle vfs.VfsHandle, a *vfs.Attributes) (*vfs.Attributes, error) {
	open, err := fs.getOpen(handle)
	if err != nil {
		return nil, err
	}
	p := fs.realPath(open.path())

	oldAttrs, err := fs.GetAttr(handle)
	if err != nil {
		log.Errorf("SetAttr: failed to read attributes: %v", err)
		return nil, err
	}

	atime, atimeSet := a.GetAccessTime()
	if !atimeSet {
		atime, _ = oldAttrs.GetAccessTime()
	}
	mtime, mtimeSet := a.GetLastDataModificationTime()
	if !mtimeSet {
		mtime, _ = oldAttrs.GetLastDataModificationTime()
	}
	if atimeSet || mtimeSet {
		if err := os.Chtimes(p, atime, mtime); err != nil {
			return nil, err
		}
	}

	if mode, ok := a.GetUnixMode(); ok {
		if err := os.Chmod(p, os.FileMode(mode).Perm()); err != nil {
			return nil, err
		}
	}
	return fs.GetAttr(handle)
}

func (fs *PassthroughFS) StatFS(handle vfs.VfsHandle) (*vfs.FSAttributes, error) {
	var statfs unix.Statfs_t
	if err := unix.Statfs(fs.rootPath, &statfs); err != nil {
		log.Errorf("statfs: %v", err)
		return nil, err
	}

	a := vfs.FSAttributes{}
	a.SetAvailableBlocks(statfs.Bavail).
		SetBlockSize(uint64(statfs.Bsize)).
		SetBlocks(statfs.Blocks).
		SetFiles(statfs.Files).
		SetFreeBlocks(statfs.Bfree).
		SetFreeFiles(statfs.Ffree)
	return &a, nil
}

func (fs *PassthroughFS) FSync(handle vfs.VfsHandle) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	if open.isDir {
		return nil
	}
	return open.f.Sync()
}

func (fs *PassthroughFS) Open(p string, flags int, mode int) (vfs.VfsHandle, error) {
	name := path.Clean("/" + p)
	f, err := os.OpenFile(fs.realPath(name), flags, os.FileMode(mode))
	if err != nil {
		log.Debugf("open %s: %v, flags %x", name, err, flags)
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	h := fs.addOpen(f, name, info.IsDir())
	log.Debugf("open %s success: %d", name, h)
	return h, nil
}

func (fs *PassthroughFS) Close(handle vfs.VfsHandle) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	fs.stopWatcher(open)
	fs.openFiles.Delete(handle)
	log.Debugf("closing %d", handle)
	return open.f.Close()
}

func (fs *PassthroughFS) Lookup(handle vfs.VfsHandle, name string) (*vfs.Attributes, error) {
	dir := "/"
	if handle != 0 {
		open, err := fs.getOpen(handle)
		if err != nil {
			return nil, err
		}
		dir = open.path()
	}

	info, err := os.Lstat(fs.realPath(path.Join(dir, name)))
	if err != nil {
		return nil, err
	}
	return vfs.AttributesFromFileInfo(info), nil
}

func (fs *PassthroughFS) Mkdir(p string, mode int) (*vfs.Attributes, error) {
	rp := fs.realPath(p)
	if err := os.Mkdir(rp, os.FileMode(mode)); err != nil {
		return nil, err
	}
	info, err := os.Lstat(rp)
	if err != nil {
		return nil, err
	}
	return vfs.AttributesFromFileInfo(info), nil
}

func (fs *PassthroughFS) Read(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (int, error) {
	open, err := fs.getOpen(handle)
	if err != nil {
		return 0, err
	}
	return open.f.ReadAt(buf, int64(offset))
}

func (fs *PassthroughFS) Write(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (int, error) {
	open, err := fs.getOpen(handle)
	if err != nil {
		return 0, err
	}
	return open.f.WriteAt(buf, int64(offset))
}

func (fs *PassthroughFS) OpenDir(p string) (vfs.VfsHandle, error) {
	name := path.Clean("/" + p)
	f, err := os.Open(fs.realPath(name))
	if err != nil {
		log.Debugf("OpenDir %s: %v", name, err)
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	if !info.IsDir() {
		f.Close()
		return 0, syscall.ENOTDIR
	}
	h := fs.addOpen(f, name, true)
	log.Debugf("opendir %s success: %d", name, h)
	return h, nil
}

// ReadDir lists "." and ".." followed by the children in name order. The
// directory is read afresh on every call.
func (fs *PassthroughFS) ReadDir(handle vfs.VfsHandle, pos int, maxEntries int) ([]vfs.DirInfo, error) {
	log.Debugf("ReadDir: %v, pos %d", handle, pos)
	open, err := fs.getOpen(handle)
	if err != nil {
		return nil, err
	}
	if !open.isDir {
		return nil, syscall.ENOTDIR
	}
	name := open.path()

	self, err := fs.GetAttr(handle)
	if err != nil {
		return nil, err
	}
	parent := self
	if name != "/" {
		if info, err := os.Lstat(fs.realPath(path.Dir(name))); err == nil {
			parent = vfs.AttributesFromFileInfo(info)
		}
	}
	results := []vfs.DirInfo{
		{Name: ".", Attributes: *self},
		{Name: "..", Attributes: *parent},
	}

	entries, err := os.ReadDir(fs.realPath(name))
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// removed while listing
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		results = append(results, vfs.DirInfo{Name: entry.Name(), Attributes: *vfs.AttributesFromFileInfo(info)})
	}

	if pos >= len(results) {
		return nil, nil
	}
	results = results[pos:]
	if maxEntries > 0 && len(results) > maxEntries {
		results = results[:maxEntries]
	}
	return results, nil
}

func (fs *PassthroughFS) Unlink(handle vfs.VfsHandle) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	p := fs.realPath(open.path())
	log.Debugf("removing %s", p)
	return os.Remove(p)
}

func (fs *PassthroughFS) Rename(from vfs.VfsHandle, to string, flags int) error {
	open, err := fs.getOpen(from)
	if err != nil {
		return err
	}
	src := open.path()
	dst := path.Clean("/" + to)

	if flags != vfs.RENAME_REPLACE {
		if _, err := os.Lstat(fs.realPath(dst)); err == nil {
			return syscall.EEXIST
		}
	}

	log.Debugf("rename: %s to %s", src, dst)
	if err := os.Rename(fs.realPath(src), fs.realPath(dst)); err != nil {
		return err
	}

	// handles below a renamed directory move with it
	fs.openFiles.Range(func(_, v any) bool {
		o := v.(*OpenFile)
		o.mu.Lock()
		switch {
		case o.name == src:
			o.name = dst
		case strings.HasPrefix(o.name, src+"/"):
			o.name = dst + strings.TrimPrefix(o.name, src)
		}
		o.mu.Unlock()
		return true
	})
	return nil
}

func (fs *PassthroughFS) Listxattr(handle vfs.VfsHandle) ([]string, error) {
	open, err := fs.getOpen(handle)
	if err != nil {
		return nil, err
	}
	return xattr.FList(open.f)
}

func (fs *PassthroughFS) Getxattr(handle vfs.VfsHandle, key string, val []byte) (int, error) {
	open, err := fs.getOpen(handle)
	if err != nil {
		return 0, err
	}

	v, err := xattr.FGet(open.f, key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return len(v), nil
	}
	if len(val) < len(v) {
		return 0, syscall.ERANGE
	}
	return copy(val, v), nil
}

func (fs *PassthroughFS) Setxattr(handle vfs.VfsHandle, key string, val []byte) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	return xattr.FSet(open.f, key, val)
}

func (fs *PassthroughFS) Removexattr(handle vfs.VfsHandle, key string) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	return xattr.FRemove(open.f, key)
}

func (fs *PassthroughFS) Truncate(handle vfs.VfsHandle, size uint64) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	if open.isDir {
		return syscall.EISDIR
	}
	return os.Truncate(fs.realPath(open.path()), int64(size))
}

func (fs *PassthroughFS) RegisterNotify(handle vfs.VfsHandle, ch chan *vfs.NotifyEvent) error {
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	if !open.isDir {
		return syscall.ENOTDIR
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("failed creating a new watcher: %v", err)
		return err
	}
	if err := watcher.Add(fs.realPath(open.path())); err != nil {
		watcher.Close()
		return err
	}

	open.mu.Lock()
	defer open.mu.Unlock()
	if open.watcher != nil {
		watcher.Close()
		return syscall.EBUSY
	}
	open.watcher = watcher
	open.done = make(chan struct{})
	go fs.eventListener(handle, watcher, open.done, ch)
	return nil
}

func (fs *PassthroughFS) RemoveNotify(handle vfs.VfsHandle) error {
	log.Debugf("RemoveNotify %d", handle)
	open, err := fs.getOpen(handle)
	if err != nil {
		return err
	}
	if !fs.stopWatcher(open) {
		return syscall.EBADF
	}
	return nil
}

// stopWatcher closes the open's watcher and waits for its listener, so no
// event is sent afterwards.
func (fs *PassthroughFS) stopWatcher(open *OpenFile) bool {
	open.mu.Lock()
	watcher, done := open.watcher, open.done
	open.watcher, open.done = nil, nil
	open.mu.Unlock()

	if watcher == nil {
		return false
	}
	watcher.Close()
	<-done
	return true
}

func notifyType(op fsnotify.Op) uint8 {
	switch {
	case op.Has(fsnotify.Create):
		return vfs.NotifyEventCreate
	case op.Has(fsnotify.Remove):
		return vfs.NotifyEventRemove
	case op.Has(fsnotify.Rename):
		return vfs.NotifyEventRename
	default:
		return vfs.NotifyEventModify
	}
}

func (fs *PassthroughFS) eventListener(handle vfs.VfsHandle, watcher *fsnotify.Watcher, done chan struct{}, ch chan *vfs.NotifyEvent) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			log.Debugf("watcher event: %+v", event)
			name := filepath.Base(event.Name)
			if name == "" {
				continue
			}
			select {
			case ch <- &vfs.NotifyEvent{EvType: notifyType(event.Op), Handle: handle, Name: name}:
			default:
				log.Debugf("watcher %d: dropping event for %s", handle, name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

var (
	_ vfs.VFSFileSystem = (*PassthroughFS)(nil)
	_ vfs.Notifier      = (*PassthroughFS)(nil)
)
