package server

import (
	"context"
	"errors"
	"io/fs"
	"path"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/vfs"
	log "github.com/sirupsen/logrus"
)

// QueryDirectory lists the entries of the directory behind o that match
// pattern. Every call reads the directory afresh. Once a listing has been
// returned, the next call without restart reports STATUS_NO_MORE_FILES.
func (v *Volume) QueryDirectory(ctx context.Context, o *Open, pattern string, restart bool) ([]DirEntry, error) {
	const op = "querydirectory"
	id := o.Identity()
	if !o.isDir || !id.IsDefault() {
		return nil, NewOpError(op, id.String(), STATUS_NOT_A_DIRECTORY)
	}
	if !o.has(FILE_LIST_DIRECTORY) {
		return nil, NewOpError(op, id.String(), STATUS_ACCESS_DENIED)
	}
	if pattern == "" {
		pattern = "*"
	}
	log.Debugf("querydirectory %s: pattern %s, restart %v", id, pattern, restart)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dirDone && !restart {
		return nil, NewOpError(op, id.String(), STATUS_NO_MORE_FILES)
	}

	var out []DirEntry
	if !ContainsWildcard(pattern) {
		attrs, err := v.fs.Lookup(o.handle, pattern)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, NewOpError(op, path.Join(id.Path, pattern), STATUS_NO_SUCH_FILE)
			}
			return nil, WrapError(op, path.Join(id.Path, pattern), err)
		}
		out = append(out, v.dirEntry(id.Path, vfs.DirInfo{Name: pattern, Attributes: *attrs}))
	} else {
		list, err := v.listDir(o.handle)
		if err != nil {
			return nil, WrapError(op, id.String(), err)
		}
		for _, d := range list {
			if MatchWildcard(d.Name, pattern) {
				out = append(out, v.dirEntry(id.Path, d))
			}
		}
		if len(out) == 0 {
			return nil, NewOpError(op, id.String(), STATUS_NO_SUCH_FILE)
		}
	}
	o.dirDone = true
	return out, nil
}

// listDir reads the whole directory, making sure "." and ".." lead the
// listing even when the backing filesystem leaves them out.
func (v *Volume) listDir(h vfs.VfsHandle) ([]vfs.DirInfo, error) {
	list, err := v.fs.ReadDir(h, 0, 0)
	if err != nil {
		return nil, err
	}
	var dot, dotdot bool
	for _, d := range list {
		switch d.Name {
		case ".":
			dot = true
		case "..":
			dotdot = true
		}
	}
	if dot && dotdot {
		return list, nil
	}

	attrs, err := v.fs.GetAttr(h)
	if err != nil {
		return nil, err
	}
	var head []vfs.DirInfo
	if !dot {
		head = append(head, vfs.DirInfo{Name: ".", Attributes: *attrs})
	}
	if !dotdot {
		head = append(head, vfs.DirInfo{Name: "..", Attributes: *attrs})
	}
	return append(head, list...), nil
}

func (v *Volume) dirEntry(dir string, d vfs.DirInfo) DirEntry {
	attrs := d.Attributes
	if d.Name == "." || d.Name == ".." {
		return DirEntry{Name: d.Name, FileInfo: *infoFromVfs(&attrs, dir)}
	}
	p := path.Join(dir, d.Name)
	info := v.infoAt(p, &attrs)
	info.DeletePending = v.peekPending(p)
	return DirEntry{Name: d.Name, FileInfo: *info}
}

// peekPending reports whether p is marked for deletion without creating
// share state for it.
func (v *Volume) peekPending(p string) bool {
	v.shares.mu.Lock()
	e, ok := v.shares.files[p]
	if ok {
		e.refs++
	}
	v.shares.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	pending := e.path == p && e.filePending()
	v.shares.release(e)
	return pending
}

// Notify subscribes to change events of the directory behind o. The
// channel is closed when o is closed.
func (v *Volume) Notify(ctx context.Context, o *Open) (<-chan *vfs.NotifyEvent, error) {
	const op = "notify"
	id := o.Identity()
	n, ok := v.fs.(vfs.Notifier)
	if !ok {
		return nil, NewOpError(op, id.String(), STATUS_NOT_SUPPORTED)
	}
	if !o.isDir || !id.IsDefault() {
		return nil, NewOpError(op, id.String(), STATUS_INVALID_PARAMETER)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.notify != nil {
		return o.notify, nil
	}
	ch := make(chan *vfs.NotifyEvent, 64)
	if err := n.RegisterNotify(o.handle, ch); err != nil {
		return nil, WrapError(op, id.String(), err)
	}
	o.notify = ch
	return ch, nil
}

func (v *Volume) stopNotify(o *Open) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.notify == nil {
		return
	}
	if n, ok := v.fs.(vfs.Notifier); ok {
		if err := n.RemoveNotify(o.handle); err != nil {
			log.Errorf("remove notify: %v", err)
		}
	}
	close(o.notify)
	o.notify = nil
}
