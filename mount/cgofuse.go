//go:build cgofuse

package mount

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/server"
	"github.com/macos-fuse-t/fusent/vfs"
	log "github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"
)

const (
	noHandle = ^uint64(0)

	xattrChunk = 64 * 1024
)

// fuseFS feeds kernel callbacks into a Dispatcher. Paths without a file
// handle get a transient open that is closed before the callback returns.
type fuseFS struct {
	fuse.FileSystemBase

	d *server.Dispatcher

	ready     chan struct{}
	readyOnce sync.Once
}

type fuseHost struct {
	fs   *fuseFS
	host *fuse.FileSystemHost
	opts Options

	lock    sync.Mutex
	mounted bool
	done    chan bool
}

func New(d *server.Dispatcher, opts Options) (Host, error) {
	if opts.MountPoint == "" {
		return nil, errors.New("mount: no mount point")
	}
	fs := &fuseFS{d: d, ready: make(chan struct{})}
	return &fuseHost{fs: fs, host: fuse.NewFileSystemHost(fs), opts: opts}, nil
}

func (h *fuseHost) Start(ctx context.Context) error {
	h.lock.Lock()
	if h.mounted {
		h.lock.Unlock()
		return errors.New("mount: already mounted")
	}
	h.done = make(chan bool, 1)
	done := h.done
	h.lock.Unlock()

	args := append([]string(nil), h.opts.Args...)
	go func() {
		done <- h.host.Mount(h.opts.MountPoint, args)
	}()

	select {
	case <-h.fs.ready:
	case ok := <-done:
		done <- ok
		return errors.New("mount: host failed to mount " + h.opts.MountPoint)
	case <-ctx.Done():
		return ctx.Err()
	}

	h.lock.Lock()
	h.mounted = true
	h.lock.Unlock()
	log.Infof("mounted %s at %s", h.opts.Label, h.opts.MountPoint)
	return nil
}

func (h *fuseHost) Unmount() error {
	h.lock.Lock()
	mounted, done := h.mounted, h.done
	h.mounted = false
	h.lock.Unlock()

	if !mounted {
		return nil
	}
	if !h.host.Unmount() {
		return errors.New("mount: unmount of " + h.opts.MountPoint + " failed")
	}
	<-done
	log.Infof("unmounted %s", h.opts.MountPoint)
	return nil
}

func (fs *fuseFS) Init() {
	fs.readyOnce.Do(func() { close(fs.ready) })
}

func (fs *fuseFS) submit(req server.Request) *server.Response {
	return fs.d.Submit(context.Background(), req)
}

func (fs *fuseFS) lookup(fh uint64) *server.Open {
	if fh == noHandle {
		return nil
	}
	return fs.d.Volume().GetOpen(fh)
}

// withOpen runs fn on the open behind fh, or on a transient open of path
// with the given access.
func (fs *fuseFS) withOpen(path string, fh uint64, access uint32, fn func(*server.Open) *server.Response) int {
	if o := fs.lookup(fh); o != nil {
		return errno(fn(o))
	}

	rsp := fs.submit(server.CreateRequest{
		Path:              path,
		DesiredAccess:     access,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_OPEN,
	})
	if rsp.Err != nil {
		return errno(rsp)
	}
	o := rsp.Open
	rc := errno(fn(o))
	if cr := fs.submit(server.CloseRequest{Open: o}); rc == 0 {
		rc = errno(cr)
	}
	return rc
}

func timespec(t time.Time) fuse.Timespec {
	if t.IsZero() {
		return fuse.Timespec{}
	}
	return fuse.NewTimespec(t)
}

func fillStat(stat *fuse.Stat_t, info *server.FileInfo) {
	*stat = fuse.Stat_t{}
	stat.Mode = fileMode(info)
	stat.Ino = info.FileId
	stat.Nlink = info.NumberOfLinks
	if stat.Nlink == 0 {
		stat.Nlink = 1
	}
	stat.Size = int64(info.EndOfFile)
	stat.Blocks = int64((info.AllocationSize + 511) / 512)
	stat.Atim = timespec(info.LastAccessTime)
	stat.Mtim = timespec(info.LastWriteTime)
	stat.Ctim = timespec(info.ChangeTime)
	stat.Birthtim = timespec(info.CreationTime)
	if info.FileAttributes&vfs.FILE_ATTRIBUTE_HIDDEN != 0 {
		stat.Flags |= vfs.FlagHidden
	}
}

func (fs *fuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	vi, err := fs.d.Volume().StatFS(context.Background())
	if err != nil {
		return -int(ErrnoFromError(err))
	}
	bsize := vi.BlockSize
	if bsize == 0 {
		bsize = 512
	}
	*stat = fuse.Statfs_t{
		Bsize:   bsize,
		Frsize:  bsize,
		Blocks:  vi.TotalBytes / bsize,
		Bfree:   vi.FreeBytes / bsize,
		Bavail:  vi.FreeBytes / bsize,
		Namemax: vi.NameMax,
	}
	return 0
}

func (fs *fuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	return fs.withOpen(path, fh, server.FILE_READ_ATTRIBUTES, func(o *server.Open) *server.Response {
		rsp := fs.submit(server.QueryInfoRequest{Open: o})
		if rsp.Err == nil {
			fillStat(stat, rsp.Info)
		}
		return rsp
	})
}

func (fs *fuseFS) Mkdir(path string, mode uint32) int {
	rsp := fs.submit(server.CreateRequest{
		Path:              path,
		DesiredAccess:     server.FILE_READ_ATTRIBUTES,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_CREATE,
		CreateOptions:     server.FILE_DIRECTORY_FILE,
	})
	if rsp.Err != nil {
		return errno(rsp)
	}
	return errno(fs.submit(server.CloseRequest{Open: rsp.Open}))
}

func (fs *fuseFS) remove(path string, options uint32) int {
	rsp := fs.submit(server.CreateRequest{
		Path:              path,
		DesiredAccess:     server.DELETE | server.FILE_READ_ATTRIBUTES,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_OPEN,
		CreateOptions:     options,
	})
	if rsp.Err != nil {
		return errno(rsp)
	}
	rc := errno(fs.submit(server.SetDispositionRequest{Open: rsp.Open, Delete: true}))
	if cr := fs.submit(server.CloseRequest{Open: rsp.Open}); rc == 0 {
		rc = errno(cr)
	}
	return rc
}

func (fs *fuseFS) Unlink(path string) int {
	return fs.remove(path, server.FILE_NON_DIRECTORY_FILE)
}

func (fs *fuseFS) Rmdir(path string) int {
	return fs.remove(path, server.FILE_DIRECTORY_FILE)
}

func (fs *fuseFS) Rename(oldpath string, newpath string) int {
	return fs.withOpen(oldpath, noHandle, server.DELETE|server.FILE_READ_ATTRIBUTES, func(o *server.Open) *server.Response {
		return fs.submit(server.RenameRequest{Open: o, NewPath: newpath, Replace: true})
	})
}

func (fs *fuseFS) Chmod(path string, mode uint32) int {
	return fs.withOpen(path, noHandle, server.FILE_READ_ATTRIBUTES|server.FILE_WRITE_ATTRIBUTES, func(o *server.Open) *server.Response {
		rsp := fs.submit(server.QueryInfoRequest{Open: o})
		if rsp.Err != nil {
			return rsp
		}
		attrs := attributesForMode(rsp.Info.FileAttributes, mode)
		return fs.submit(server.SetBasicInfoRequest{Open: o, Info: server.BasicInfo{FileAttributes: attrs}})
	})
}

func (fs *fuseFS) Chflags(path string, flags uint32) int {
	return fs.withOpen(path, noHandle, server.FILE_READ_ATTRIBUTES|server.FILE_WRITE_ATTRIBUTES, func(o *server.Open) *server.Response {
		rsp := fs.submit(server.QueryInfoRequest{Open: o})
		if rsp.Err != nil {
			return rsp
		}
		attrs := attributesWith(rsp.Info.FileAttributes, vfs.FILE_ATTRIBUTE_HIDDEN, flags&vfs.FlagHidden != 0)
		return fs.submit(server.SetBasicInfoRequest{Open: o, Info: server.BasicInfo{FileAttributes: attrs}})
	})
}

func (fs *fuseFS) Utimens(path string, tmsp []fuse.Timespec) int {
	var bi server.BasicInfo
	if len(tmsp) > 0 {
		bi.LastAccessTime = tmsp[0].Time()
	}
	if len(tmsp) > 1 {
		bi.LastWriteTime = tmsp[1].Time()
	}
	return fs.withOpen(path, noHandle, server.FILE_WRITE_ATTRIBUTES, func(o *server.Open) *server.Response {
		return fs.submit(server.SetBasicInfoRequest{Open: o, Info: bi})
	})
}

func (fs *fuseFS) Setcrtime(path string, tmsp fuse.Timespec) int {
	return fs.withOpen(path, noHandle, server.FILE_WRITE_ATTRIBUTES, func(o *server.Open) *server.Response {
		return fs.submit(server.SetBasicInfoRequest{Open: o, Info: server.BasicInfo{CreationTime: tmsp.Time()}})
	})
}

func (fs *fuseFS) open(path string, flags int, create bool) (int, uint64) {
	req, trunc := openRequest(path, flags, create)
	rsp := fs.submit(req)
	if rsp.Err != nil {
		return errno(rsp), noHandle
	}
	o := rsp.Open
	if trunc {
		if tr := fs.submit(server.SetEndOfFileRequest{Open: o, Size: 0}); tr.Err != nil {
			fs.submit(server.CloseRequest{Open: o})
			return errno(tr), noHandle
		}
	}
	return 0, o.ID()
}

func (fs *fuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	return fs.open(path, flags, true)
}

func (fs *fuseFS) Open(path string, flags int) (int, uint64) {
	return fs.open(path, flags, false)
}

func (fs *fuseFS) Truncate(path string, size int64, fh uint64) int {
	if size < 0 {
		return -fuse.EINVAL
	}
	return fs.withOpen(path, fh, server.FILE_WRITE_DATA, func(o *server.Open) *server.Response {
		return fs.submit(server.SetEndOfFileRequest{Open: o, Size: uint64(size)})
	})
}

func (fs *fuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	o := fs.lookup(fh)
	if o == nil {
		return -fuse.EBADF
	}
	rsp := fs.submit(server.ReadRequest{Open: o, Offset: uint64(ofst), Length: len(buff)})
	if rsp.Status == STATUS_END_OF_FILE {
		return 0
	}
	if rsp.Err != nil {
		return errno(rsp)
	}
	return copy(buff, rsp.Data)
}

func (fs *fuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	o := fs.lookup(fh)
	if o == nil {
		return -fuse.EBADF
	}
	rsp := fs.submit(server.WriteRequest{Open: o, Offset: uint64(ofst), Data: buff})
	if rsp.Err != nil {
		return errno(rsp)
	}
	return rsp.Written
}

func (fs *fuseFS) Flush(path string, fh uint64) int {
	o := fs.lookup(fh)
	if o == nil {
		return -fuse.EBADF
	}
	return errno(fs.submit(server.FlushRequest{Open: o}))
}

func (fs *fuseFS) Fsync(path string, datasync bool, fh uint64) int {
	return fs.Flush(path, fh)
}

func (fs *fuseFS) Release(path string, fh uint64) int {
	o := fs.lookup(fh)
	if o == nil {
		return -fuse.EBADF
	}
	return errno(fs.submit(server.CloseRequest{Open: o}))
}

func (fs *fuseFS) Opendir(path string) (int, uint64) {
	rsp := fs.submit(server.CreateRequest{
		Path:              path,
		DesiredAccess:     server.FILE_LIST_DIRECTORY | server.FILE_READ_ATTRIBUTES,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_OPEN,
		CreateOptions:     server.FILE_DIRECTORY_FILE,
	})
	if rsp.Err != nil {
		return errno(rsp), noHandle
	}
	return 0, rsp.Open.ID()
}

func (fs *fuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	o := fs.lookup(fh)
	if o == nil {
		return -fuse.EBADF
	}
	rsp := fs.submit(server.QueryDirectoryRequest{Open: o, Pattern: "*", Restart: true})
	if rsp.Err != nil {
		return errno(rsp)
	}
	for i := range rsp.Entries {
		e := &rsp.Entries[i]
		var st fuse.Stat_t
		fillStat(&st, &e.FileInfo)
		if !fill(e.Name, &st, 0) {
			break
		}
	}
	return 0
}

func (fs *fuseFS) Releasedir(path string, fh uint64) int {
	return fs.Release(path, fh)
}

func (fs *fuseFS) Listxattr(path string, fill func(name string) bool) int {
	return fs.withOpen(path, noHandle, server.FILE_READ_ATTRIBUTES, func(o *server.Open) *server.Response {
		rsp := fs.submit(server.QueryStreamsRequest{Open: o, Restart: true})
		if rsp.Status == STATUS_OBJECT_NAME_NOT_FOUND {
			return &server.Response{}
		}
		if rsp.Err != nil {
			return rsp
		}
		for _, name := range xattrNames(rsp.Streams) {
			if !fill(name) {
				break
			}
		}
		return rsp
	})
}

func (fs *fuseFS) Getxattr(path string, name string) (int, []byte) {
	sp, err := streamPath(path, name)
	if err != nil {
		return -fuse.EINVAL, nil
	}
	var value []byte
	rc := fs.withOpen(sp, noHandle, server.FILE_READ_DATA|server.FILE_READ_ATTRIBUTES, func(o *server.Open) *server.Response {
		for {
			rsp := fs.submit(server.ReadRequest{Open: o, Offset: uint64(len(value)), Length: xattrChunk})
			if rsp.Status == STATUS_END_OF_FILE {
				return &server.Response{}
			}
			if rsp.Err != nil {
				return rsp
			}
			value = append(value, rsp.Data...)
			if len(rsp.Data) < xattrChunk {
				return rsp
			}
		}
	})
	if rc == -int(ToErrno(STATUS_OBJECT_NAME_NOT_FOUND)) {
		return -fuse.ENOATTR, nil
	}
	return rc, value
}

func (fs *fuseFS) Setxattr(path string, name string, value []byte, flags int) int {
	sp, err := streamPath(path, name)
	if err != nil {
		return -fuse.EINVAL
	}
	disposition := server.FILE_OVERWRITE_IF
	switch flags {
	case fuse.XATTR_CREATE:
		disposition = server.FILE_CREATE
	case fuse.XATTR_REPLACE:
		disposition = server.FILE_OVERWRITE
	}
	rsp := fs.submit(server.CreateRequest{
		Path:              sp,
		DesiredAccess:     server.GENERIC_WRITE,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: disposition,
	})
	if rsp.Err != nil {
		if rsp.Status == STATUS_OBJECT_NAME_NOT_FOUND {
			return -fuse.ENOATTR
		}
		return errno(rsp)
	}
	o := rsp.Open
	rc := 0
	if len(value) > 0 {
		rc = errno(fs.submit(server.WriteRequest{Open: o, Data: value}))
	}
	if cr := fs.submit(server.CloseRequest{Open: o}); rc == 0 {
		rc = errno(cr)
	}
	return rc
}

func (fs *fuseFS) Removexattr(path string, name string) int {
	sp, err := streamPath(path, name)
	if err != nil {
		return -fuse.EINVAL
	}
	rc := fs.remove(sp, 0)
	if rc == -int(ToErrno(STATUS_OBJECT_NAME_NOT_FOUND)) {
		return -fuse.ENOATTR
	}
	return rc
}

var (
	_ fuse.FileSystemInterface = (*fuseFS)(nil)
	_ fuse.FileSystemChflags   = (*fuseFS)(nil)
	_ fuse.FileSystemSetcrtime = (*fuseFS)(nil)
)
