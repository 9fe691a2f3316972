package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/stats"
	"github.com/macos-fuse-t/fusent/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

type VolumeConfig struct {
	Label string

	// Xattrs enables the attribute record and named streams. Without it
	// attributes come from the host and cannot be changed, and named
	// streams are refused.
	Xattrs bool
}

// Volume layers native open semantics (share modes, pending delete, named
// streams, attribute records) over a POSIX-shaped VFSFileSystem.
type Volume struct {
	fs     vfs.VFSFileSystem
	cfg    VolumeConfig
	shares *shareTable

	lock   sync.Mutex
	opens  map[uint64]*Open
	nextId uint64
}

type CreateRequest struct {
	Path              string
	DesiredAccess     uint32
	ShareAccess       uint32
	CreateDisposition uint32
	CreateOptions     uint32
	FileAttributes    uint32
}

// FileInfo is what QueryInfo and directory listings report per file.
type FileInfo struct {
	FileAttributes uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      uint64
	AllocationSize uint64
	FileId         uint64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
}

// BasicInfo carries the settable times and attributes. Zero fields are
// left unchanged.
type BasicInfo struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileAttributes uint32
}

type StreamInfo struct {
	Name           string
	Size           uint64
	AllocationSize uint64
}

type DirEntry struct {
	Name string
	FileInfo
}

type VolumeInfo struct {
	Label      string
	BlockSize  uint64
	TotalBytes uint64
	FreeBytes  uint64
	NameMax    uint64
}

func NewVolume(fs vfs.VFSFileSystem, cfg *VolumeConfig) *Volume {
	v := &Volume{
		fs:     fs,
		shares: newShareTable(),
		opens:  map[uint64]*Open{},
	}
	if cfg != nil {
		v.cfg = *cfg
	}
	return v
}

func (v *Volume) addOpen(open *Open) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.nextId++
	open.id = v.nextId
	v.opens[open.id] = open
}

// GetOpen returns the open with the given id, or nil.
func (v *Volume) GetOpen(id uint64) *Open {
	v.lock.Lock()
	defer v.lock.Unlock()

	return v.opens[id]
}

func (v *Volume) deleteOpen(id uint64) bool {
	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.opens[id]; !ok {
		return false
	}
	delete(v.opens, id)
	return true
}

func isOverwrite(disposition uint32) bool {
	return disposition == FILE_OVERWRITE || disposition == FILE_OVERWRITE_IF || disposition == FILE_SUPERSEDE
}

// Create opens or creates the file, directory or named stream named by
// req.Path.
func (v *Volume) Create(ctx context.Context, req CreateRequest) (*Open, error) {
	const op = "create"

	log.Debugf("create name: %s, access %x, share %x, options %x, disp %d",
		req.Path, req.DesiredAccess, req.ShareAccess, req.CreateOptions, req.CreateDisposition)

	id, err := vfs.ParseStreamPath(req.Path)
	if err != nil {
		return nil, NewOpError(op, req.Path, STATUS_OBJECT_NAME_INVALID)
	}
	dirOpt := req.CreateOptions&FILE_DIRECTORY_FILE != 0
	if dirOpt && req.CreateOptions&FILE_NON_DIRECTORY_FILE != 0 ||
		req.CreateDisposition > FILE_OVERWRITE_IF {
		return nil, NewOpError(op, id.String(), STATUS_INVALID_PARAMETER)
	}
	if !id.IsDefault() {
		if !v.cfg.Xattrs {
			return nil, NewOpError(op, id.String(), STATUS_NOT_SUPPORTED)
		}
		if dirOpt {
			return nil, NewOpError(op, id.String(), STATUS_INVALID_PARAMETER)
		}
	}

	access := MapGenericAccess(req.DesiredAccess)
	if req.CreateOptions&FILE_DELETE_ON_CLOSE != 0 && access&(DELETE|MAXIMUM_ALLOWED) == 0 {
		return nil, NewOpError(op, id.String(), STATUS_ACCESS_DENIED)
	}

	mayCreate := req.CreateDisposition != FILE_OPEN && req.CreateDisposition != FILE_OVERWRITE
	parentPending := mayCreate && v.shares.pendingAbove(id.Path)

	e := v.shares.acquire(id.Path)
	o, err := v.createLocked(e, id, access, req, parentPending)
	if err != nil {
		v.shares.release(e)
		return nil, err
	}
	// the acquire reference now belongs to the open
	e.mu.Unlock()

	v.addOpen(o)
	if o.action == FILE_CREATED && id.IsDefault() && v.shares.pendingAbove(id.Path) {
		// a parent was marked for deletion while this entry was created
		e.mu.Lock()
		e.stream("").deletePending = true
		e.mu.Unlock()
		if err := v.Close(ctx, o); err != nil {
			log.Errorf("create %s: discard under pending parent: %v", id, err)
		}
		return nil, NewOpError(op, id.String(), STATUS_DELETE_PENDING)
	}
	stats.AddOpen(id.Path)
	log.Debugf("create %s: open %d, action %d, access %x", id, o.id, o.action, o.access)
	return o, nil
}

func (v *Volume) createLocked(e *fileEntry, id vfs.StreamIdentity, access uint32, req CreateRequest, parentPending bool) (*Open, error) {
	const op = "create"
	name := id.String()
	disp := req.CreateDisposition
	dirOpt := req.CreateOptions&FILE_DIRECTORY_FILE != 0
	nonDirOpt := req.CreateOptions&FILE_NON_DIRECTORY_FILE != 0
	deleteOnClose := req.CreateOptions&FILE_DELETE_ON_CLOSE != 0

	if e.deletePending(id.Stream) {
		return nil, NewOpError(op, name, STATUS_DELETE_PENDING)
	}

	attrs, err := v.fs.Lookup(0, id.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		if errors.Is(err, syscall.ENOTDIR) {
			return nil, NewOpError(op, name, STATUS_OBJECT_PATH_NOT_FOUND)
		}
		return nil, WrapError(op, name, err)
	}
	isDir := exists && attrs.IsDir()

	if exists {
		if isDir && nonDirOpt && id.IsDefault() {
			return nil, NewOpError(op, name, STATUS_FILE_IS_A_DIRECTORY)
		}
		if !isDir && dirOpt {
			return nil, NewOpError(op, name, STATUS_NOT_A_DIRECTORY)
		}
	} else {
		if disp == FILE_OPEN || disp == FILE_OVERWRITE {
			return nil, NewOpError(op, name, STATUS_OBJECT_NAME_NOT_FOUND)
		}
		if parentPending {
			return nil, NewOpError(op, name, STATUS_DELETE_PENDING)
		}
	}
	willBeDir := isDir || (!exists && dirOpt)
	if willBeDir && id.IsDefault() && isOverwrite(disp) {
		return nil, NewOpError(op, name, STATUS_INVALID_PARAMETER)
	}
	if exists && id.IsDefault() && disp == FILE_CREATE {
		return nil, NewOpError(op, name, STATUS_OBJECT_NAME_COLLISION)
	}

	overwriteFile := exists && id.IsDefault() && isOverwrite(disp)
	if !v.cfg.Xattrs && (!exists || overwriteFile) && req.FileAttributes&vfs.SettableAttributes != 0 {
		return nil, NewOpError(op, name, STATUS_NOT_SUPPORTED)
	}
	if overwriteFile {
		access |= FILE_WRITE_DATA
	}
	if access&MAXIMUM_ALLOWED != 0 {
		if exists {
			access |= MaxAccessFromVfs(attrs)
		} else {
			access |= FILE_ALL_ACCESS
		}
		access &^= MAXIMUM_ALLOWED
	}

	// nothing on disk changes before admission
	if s, ok := e.streams[id.Stream]; ok && !s.admits(access, req.ShareAccess) {
		log.Debugf("create %s: sharing violation, access %x share %x", name, access, req.ShareAccess)
		return nil, NewOpError(op, name, STATUS_SHARING_VIOLATION)
	}

	var h vfs.VfsHandle
	created := false
	fail := func(status NtStatus, err error) (*Open, error) {
		if created {
			if uerr := v.fs.Unlink(h); uerr != nil {
				log.Errorf("create %s: rollback failed: %v", name, uerr)
			}
		}
		v.fs.Close(h)
		if err != nil {
			return nil, WrapError(op, name, err)
		}
		return nil, NewOpError(op, name, status)
	}

	switch {
	case !exists && willBeDir:
		if _, err = v.fs.Mkdir(id.Path, 0777); err != nil {
			return nil, WrapError(op, name, err)
		}
		stats.AddMkdir(id.Path)
		if h, err = v.fs.OpenDir(id.Path); err != nil {
			return nil, WrapError(op, name, err)
		}
		created = true
	case !exists:
		if h, err = v.fs.Open(id.Path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644); err != nil {
			return nil, WrapError(op, name, err)
		}
		created = true
	case isDir:
		if h, err = v.fs.OpenDir(id.Path); err != nil {
			return nil, WrapError(op, name, err)
		}
	default:
		flags := os.O_RDONLY
		if id.IsDefault() && access&accessWrite != 0 {
			flags = os.O_RDWR
		}
		if h, err = v.fs.Open(id.Path, flags, 0644); err != nil {
			return nil, WrapError(op, name, err)
		}
	}

	action := FILE_OPENED
	if created {
		action = FILE_CREATED
		a, err := v.fs.GetAttr(h)
		if err != nil {
			return fail(0, err)
		}
		rec := vfs.DosAttrib{Attributes: vfs.NormalizeAttributes(req.FileAttributes, willBeDir)}
		if _, ok := a.GetBirthTime(); !ok {
			rec.BirthTime = time.Now()
		}
		if v.cfg.Xattrs {
			if err := v.writeRecord(h, rec); err != nil {
				return fail(0, err)
			}
		}
	} else {
		fileAttrs := v.currentAttributes(h, attrs, id.Path)
		if fileAttrs&vfs.FILE_ATTRIBUTE_READONLY != 0 && !isDir {
			if deleteOnClose {
				return fail(STATUS_CANNOT_DELETE, nil)
			}
			if access&accessWrite != 0 || isOverwrite(disp) {
				return fail(STATUS_ACCESS_DENIED, nil)
			}
		}
	}

	if overwriteFile {
		if err := v.overwrite(h, req.FileAttributes); err != nil {
			return fail(0, err)
		}
		action = FILE_OVERWRITTEN
		if disp == FILE_SUPERSEDE {
			action = FILE_SUPERSEDED
		}
	}

	if !id.IsDefault() {
		key := id.XattrKey()
		_, serr := v.fs.Getxattr(h, key, nil)
		streamExists := serr == nil
		if serr != nil && !isNoAttr(serr) {
			return fail(0, serr)
		}
		switch {
		case !streamExists && (disp == FILE_OPEN || disp == FILE_OVERWRITE):
			return fail(STATUS_OBJECT_NAME_NOT_FOUND, nil)
		case streamExists && disp == FILE_CREATE:
			return fail(STATUS_OBJECT_NAME_COLLISION, nil)
		}
		if !streamExists || isOverwrite(disp) {
			if err := v.fs.Setxattr(h, key, []byte{}); err != nil {
				return fail(0, err)
			}
			stats.AddXattrWrite(id.Path)
			switch {
			case !streamExists:
				action = FILE_CREATED
			case disp == FILE_SUPERSEDE:
				action = FILE_SUPERSEDED
			default:
				action = FILE_OVERWRITTEN
			}
		}
	}

	o := &Open{
		entry:         e,
		stream:        id.Stream,
		handle:        h,
		isDir:         willBeDir,
		access:        access,
		share:         req.ShareAccess,
		createOptions: req.CreateOptions,
		action:        action,
		path:          id.Path,
		deleteOnClose: deleteOnClose,
	}
	e.register(o)
	return o, nil
}

// overwrite truncates the default stream, drops every named stream and
// resets the attribute record.
func (v *Volume) overwrite(h vfs.VfsHandle, fileAttributes uint32) error {
	rec, _ := v.readRecord(h)
	if v.cfg.Xattrs {
		keys, err := v.fs.Listxattr(h)
		if err != nil && !isNotSupported(err) {
			return err
		}
		for _, key := range keys {
			if _, ok := vfs.StreamNameFromXattr(key); !ok {
				continue
			}
			if err := v.fs.Removexattr(h, key); err != nil {
				return err
			}
		}
	}
	if err := v.fs.Truncate(h, 0); err != nil {
		return err
	}
	if !v.cfg.Xattrs {
		return nil
	}
	rec.Attributes = vfs.NormalizeAttributes(fileAttributes, false)
	return v.writeRecord(h, rec)
}

func (v *Volume) Close(ctx context.Context, o *Open) error {
	const op = "close"
	if !v.deleteOpen(o.id) {
		return NewOpError(op, "", STATUS_FILE_CLOSED)
	}

	e := o.entry
	e.mu.Lock()
	id := o.identityLocked()

	if o.deleteOnClose {
		e.stream(o.stream).deletePending = true
	}
	s := e.unregister(o)
	v.stopNotify(o)

	var result error
	switch {
	case e.filePending() && e.handles == 0:
		if err := v.fs.Unlink(o.handle); err != nil {
			log.Errorf("close %s: delete failed: %v", id, err)
			if errors.Is(err, syscall.ENOTEMPTY) {
				err = STATUS_DIRECTORY_NOT_EMPTY
			}
			result = multierror.Append(result, err)
		} else {
			stats.AddDelete(id.Path)
			log.Debugf("close %s: deleted", id)
		}
		e.streams = make(map[string]*streamState)
	case !id.IsDefault() && s.deletePending && len(s.handles) == 0 && !e.filePending():
		if err := v.fs.Removexattr(o.handle, id.XattrKey()); err != nil && !isNoAttr(err) {
			log.Errorf("close %s: stream delete failed: %v", id, err)
			result = multierror.Append(result, err)
		} else {
			stats.AddXattrDelete(id.Path)
		}
	}
	if len(s.handles) == 0 && (!id.IsDefault() || e.handles == 0) {
		e.forget(o.stream)
	}

	if err := v.fs.Close(o.handle); err != nil {
		result = multierror.Append(result, err)
	}
	v.shares.release(e)

	if result != nil {
		return WrapError(op, id.String(), result)
	}
	return nil
}

func (v *Volume) Read(ctx context.Context, o *Open, offset uint64, length int) ([]byte, error) {
	const op = "read"
	if o.isDir && o.stream == "" {
		return nil, NewOpError(op, o.Identity().String(), STATUS_FILE_IS_A_DIRECTORY)
	}
	if !o.has(FILE_READ_DATA) {
		return nil, NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}

	if o.stream != "" {
		e := o.entry
		e.mu.Lock()
		defer e.mu.Unlock()

		data, err := v.getStream(o.handle, o.stream)
		if err != nil {
			return nil, WrapError(op, o.identityLocked().String(), err)
		}
		if offset >= uint64(len(data)) {
			return nil, NewOpError(op, o.identityLocked().String(), STATUS_END_OF_FILE)
		}
		data = data[offset:]
		if len(data) > length {
			data = data[:length]
		}
		stats.AddReadBytes(o.path, uint64(len(data)))
		return data, nil
	}

	buf := make([]byte, length)
	n, err := v.fs.Read(o.handle, buf, offset, 0)
	if n == 0 && length > 0 && (err == nil || errors.Is(err, io.EOF)) {
		return nil, NewOpError(op, o.Identity().String(), STATUS_END_OF_FILE)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, WrapError(op, o.Identity().String(), err)
	}
	stats.AddReadBytes(o.Identity().Path, uint64(n))
	return buf[:n], nil
}

func (v *Volume) Write(ctx context.Context, o *Open, offset uint64, data []byte) (int, error) {
	const op = "write"
	if o.isDir && o.stream == "" {
		return 0, NewOpError(op, o.Identity().String(), STATUS_FILE_IS_A_DIRECTORY)
	}
	if !o.has(accessWrite) {
		return 0, NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}

	if o.stream != "" {
		end := offset + uint64(len(data))
		if end < offset || end > vfs.MaxStreamSize {
			return 0, NewOpError(op, o.Identity().String(), STATUS_EA_TOO_LARGE)
		}

		e := o.entry
		e.mu.Lock()
		defer e.mu.Unlock()

		cur, err := v.getStream(o.handle, o.stream)
		if err != nil {
			return 0, WrapError(op, o.identityLocked().String(), err)
		}
		if end > uint64(len(cur)) {
			grown := make([]byte, end)
			copy(grown, cur)
			cur = grown
		}
		copy(cur[offset:], data)
		if err := v.fs.Setxattr(o.handle, o.identityLocked().XattrKey(), cur); err != nil {
			return 0, WrapError(op, o.identityLocked().String(), err)
		}
		stats.AddXattrWrite(o.path)
		stats.AddWriteBytes(o.path, uint64(len(data)))
		return len(data), nil
	}

	n, err := v.fs.Write(o.handle, data, offset, 0)
	if err != nil {
		return n, WrapError(op, o.Identity().String(), err)
	}
	stats.AddWriteBytes(o.Identity().Path, uint64(n))
	return n, nil
}

func (v *Volume) Flush(ctx context.Context, o *Open) error {
	if err := v.fs.FSync(o.handle); err != nil {
		return WrapError("flush", o.Identity().String(), err)
	}
	return nil
}

func (v *Volume) QueryInfo(ctx context.Context, o *Open) (*FileInfo, error) {
	const op = "queryinfo"
	attrs, err := v.fs.GetAttr(o.handle)
	if err != nil {
		return nil, WrapError(op, o.Identity().String(), err)
	}

	e := o.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	info := v.fileInfo(o.handle, attrs, o.path)
	info.DeletePending = e.deletePending(o.stream)
	if o.stream != "" {
		data, err := v.getStream(o.handle, o.stream)
		if err != nil {
			return nil, WrapError(op, o.identityLocked().String(), err)
		}
		info.EndOfFile = uint64(len(data))
		info.AllocationSize = uint64(len(data))
	}
	return info, nil
}

func (v *Volume) SetBasicInfo(ctx context.Context, o *Open, bi BasicInfo) error {
	const op = "setbasicinfo"
	if !o.has(FILE_WRITE_ATTRIBUTES) {
		return NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}

	for _, t := range []time.Time{bi.CreationTime, bi.LastAccessTime, bi.LastWriteTime, bi.ChangeTime} {
		if !t.IsZero() && !vfs.ValidFileTime(t) {
			return NewOpError(op, o.Identity().String(), STATUS_INVALID_PARAMETER)
		}
	}

	e := o.entry
	e.mu.Lock()
	defer e.mu.Unlock()
	name := o.identityLocked().String()

	attrs, err := v.fs.GetAttr(o.handle)
	if err != nil {
		return WrapError(op, name, err)
	}

	old, hadRec := v.readRecord(o.handle)
	rec := old
	if !hadRec {
		rec.Attributes = AttributesFromVfs(attrs, o.path)
	}
	changed := false
	if bi.FileAttributes != 0 {
		want := vfs.NormalizeAttributes(bi.FileAttributes, attrs.IsDir())
		if want != vfs.NormalizeAttributes(rec.Attributes, attrs.IsDir()) {
			rec.Attributes = want
			changed = true
		}
	}
	if !bi.CreationTime.IsZero() {
		rec.BirthTime = bi.CreationTime
		changed = true
	}
	if changed {
		// without the record only the host's own attributes exist
		if !v.cfg.Xattrs {
			return NewOpError(op, name, STATUS_NOT_SUPPORTED)
		}
		if err := v.writeRecord(o.handle, rec); err != nil {
			return WrapError(op, name, err)
		}
	}

	a := &vfs.Attributes{}
	set := false
	if !bi.LastAccessTime.IsZero() {
		a.SetAccessTime(bi.LastAccessTime)
		set = true
	}
	if !bi.LastWriteTime.IsZero() {
		a.SetLastDataModificationTime(bi.LastWriteTime)
		set = true
	}
	if !bi.ChangeTime.IsZero() {
		a.SetLastStatusChangeTime(bi.ChangeTime)
		set = true
	}
	if !bi.CreationTime.IsZero() {
		a.SetBirthTime(bi.CreationTime)
	}
	if !set {
		return nil
	}
	if _, err := v.fs.SetAttr(o.handle, a); err != nil {
		log.Errorf("SetAttr failed: %v", err)
		if changed {
			v.restoreRecord(o.handle, old, hadRec)
		}
		return WrapError(op, name, err)
	}
	return nil
}

func (v *Volume) SetEndOfFile(ctx context.Context, o *Open, size uint64) error {
	const op = "setendoffile"
	if !o.has(accessWrite) {
		return NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}
	if o.isDir && o.stream == "" {
		return NewOpError(op, o.Identity().String(), STATUS_FILE_IS_A_DIRECTORY)
	}

	if o.stream != "" {
		if size > vfs.MaxStreamSize {
			return NewOpError(op, o.Identity().String(), STATUS_EA_TOO_LARGE)
		}

		e := o.entry
		e.mu.Lock()
		defer e.mu.Unlock()

		cur, err := v.getStream(o.handle, o.stream)
		if err != nil {
			return WrapError(op, o.identityLocked().String(), err)
		}
		resized := make([]byte, size)
		copy(resized, cur)
		if err := v.fs.Setxattr(o.handle, o.identityLocked().XattrKey(), resized); err != nil {
			return WrapError(op, o.identityLocked().String(), err)
		}
		stats.AddXattrWrite(o.path)
		return nil
	}

	if err := v.fs.Truncate(o.handle, size); err != nil {
		return WrapError(op, o.Identity().String(), err)
	}
	stats.AddTruncate(o.Identity().Path)
	return nil
}

// SetDisposition marks or unmarks the open's stream for deletion once
// its last handle closes.
func (v *Volume) SetDisposition(ctx context.Context, o *Open, deleteFile bool) error {
	const op = "setdisposition"
	if !o.has(DELETE) {
		return NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}

	e := o.entry
	e.mu.Lock()
	defer e.mu.Unlock()
	name := o.identityLocked().String()

	s := e.stream(o.stream)
	if !deleteFile {
		s.deletePending = false
		return nil
	}

	attrs, err := v.fs.GetAttr(o.handle)
	if err != nil {
		return WrapError(op, name, err)
	}
	if !o.isDir && v.currentAttributes(o.handle, attrs, o.path)&vfs.FILE_ATTRIBUTE_READONLY != 0 {
		return NewOpError(op, name, STATUS_CANNOT_DELETE)
	}
	if o.isDir && o.stream == "" {
		entries, err := v.fs.ReadDir(o.handle, 0, 0)
		if err != nil {
			return WrapError(op, name, err)
		}
		for _, d := range entries {
			if d.Name != "." && d.Name != ".." {
				return NewOpError(op, name, STATUS_DIRECTORY_NOT_EMPTY)
			}
		}
	}
	s.deletePending = true
	log.Debugf("%s: delete pending", name)
	return nil
}

// Rename moves the file behind o. Share state moves with it.
func (v *Volume) Rename(ctx context.Context, o *Open, newPath string, replace bool) error {
	const op = "rename"
	if o.stream != "" {
		return NewOpError(op, o.Identity().String(), STATUS_INVALID_PARAMETER)
	}
	if !o.has(DELETE) {
		return NewOpError(op, o.Identity().String(), STATUS_ACCESS_DENIED)
	}
	to, err := vfs.ParseStreamPath(newPath)
	if err != nil || !to.IsDefault() {
		return NewOpError(op, newPath, STATUS_OBJECT_NAME_INVALID)
	}

	src := o.entry
	for {
		cur := o.Identity().Path
		if cur == to.Path {
			return nil
		}

		var target *fileEntry
		if cur < to.Path {
			src.mu.Lock()
			if o.path != cur {
				src.mu.Unlock()
				continue
			}
			target = v.shares.acquire(to.Path)
		} else {
			target = v.shares.acquire(to.Path)
			src.mu.Lock()
			if o.path != cur {
				src.mu.Unlock()
				v.shares.release(target)
				continue
			}
		}

		err := v.renameLocked(o, src, target, cur, to.Path, replace)
		v.shares.release(target)
		src.mu.Unlock()
		return err
	}
}

func (v *Volume) renameLocked(o *Open, src, target *fileEntry, from, to string, replace bool) error {
	const op = "rename"
	switch {
	case src.filePending():
		return NewOpError(op, from, STATUS_DELETE_PENDING)
	case target.handles > 0:
		return NewOpError(op, to, STATUS_ACCESS_DENIED)
	case o.isDir && v.shares.busyBelow(from):
		return NewOpError(op, from, STATUS_ACCESS_DENIED)
	}

	if attrs, err := v.fs.Lookup(0, to); err == nil {
		if !replace {
			return NewOpError(op, to, STATUS_OBJECT_NAME_COLLISION)
		}
		if attrs.IsDir() {
			return NewOpError(op, to, STATUS_ACCESS_DENIED)
		}
		if v.attributesAt(to, attrs)&vfs.FILE_ATTRIBUTE_READONLY != 0 {
			return NewOpError(op, to, STATUS_ACCESS_DENIED)
		}
	}

	flags := vfs.RENAME_NOREPLACE
	if replace {
		flags = vfs.RENAME_REPLACE
	}
	if err := v.fs.Rename(o.handle, to, flags); err != nil {
		log.Errorf("rename failed: %v", err)
		if errors.Is(err, fs.ErrExist) {
			return NewOpError(op, to, STATUS_OBJECT_NAME_COLLISION)
		}
		return WrapError(op, from, err)
	}

	v.shares.rekey(src, to, target)
	for _, other := range src.opens() {
		other.path = to
	}
	stats.AddRename(from)
	log.Debugf("rename %s -> %s", from, to)
	return nil
}

func (v *Volume) StatFS(ctx context.Context) (*VolumeInfo, error) {
	a, err := v.fs.StatFS(0)
	if err != nil {
		return nil, WrapError("statfs", "/", err)
	}
	bsize, _ := a.GetBlockSize()
	nameMax, _ := a.GetNameMax()
	return &VolumeInfo{
		Label:      v.cfg.Label,
		BlockSize:  bsize,
		TotalBytes: a.TotalBytes(),
		FreeBytes:  a.FreeBytes(),
		NameMax:    nameMax,
	}, nil
}

// GetAttributes queries a path without taking part in share accounting.
func (v *Volume) GetAttributes(ctx context.Context, p string) (*FileInfo, error) {
	o, err := v.Create(ctx, CreateRequest{
		Path:              p,
		DesiredAccess:     FILE_READ_ATTRIBUTES,
		ShareAccess:       FILE_SHARE_ALL,
		CreateDisposition: FILE_OPEN,
	})
	if err != nil {
		return nil, err
	}
	info, err := v.QueryInfo(ctx, o)
	if cerr := v.Close(ctx, o); err == nil {
		err = cerr
	}
	return info, err
}

// CloseAll closes every open handle. It is used when the volume is torn
// down.
func (v *Volume) CloseAll(ctx context.Context) error {
	v.lock.Lock()
	opens := maps.Values(v.opens)
	v.lock.Unlock()

	var result error
	for _, o := range opens {
		if err := v.Close(ctx, o); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// OpenCount is the number of handles currently open.
func (v *Volume) OpenCount() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.opens)
}
