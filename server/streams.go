package server

import (
	"context"
	"sort"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/stats"
	"github.com/macos-fuse-t/fusent/vfs"
)

// getStream reads the whole value of a named stream.
func (v *Volume) getStream(h vfs.VfsHandle, name string) ([]byte, error) {
	key := vfs.StreamXattrPrefix + name
	n, err := v.fs.Getxattr(h, key, nil)
	if err != nil {
		if isNoAttr(err) {
			return nil, STATUS_OBJECT_NAME_NOT_FOUND
		}
		return nil, err
	}
	stats.AddXattrRead("")
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	n, err = v.fs.Getxattr(h, key, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// listStreams enumerates the default stream of a file followed by its
// named streams in name order. Directories have no default stream.
func (v *Volume) listStreams(h vfs.VfsHandle) ([]StreamInfo, error) {
	attrs, err := v.fs.GetAttr(h)
	if err != nil {
		return nil, err
	}

	var out []StreamInfo
	if !attrs.IsDir() {
		out = append(out, StreamInfo{
			Name:           vfs.RenderStreamName(""),
			Size:           SizeFromVfs(attrs),
			AllocationSize: DiskSizeFromVfs(attrs),
		})
	}
	if !v.cfg.Xattrs {
		return out, nil
	}

	keys, err := v.fs.Listxattr(h)
	if err != nil {
		if isNotSupported(err) {
			return out, nil
		}
		return nil, err
	}
	stats.AddXattrList("")

	var named []StreamInfo
	for _, key := range keys {
		name, ok := vfs.StreamNameFromXattr(key)
		if !ok {
			continue
		}
		n, err := v.fs.Getxattr(h, key, nil)
		if err != nil {
			if isNoAttr(err) {
				continue
			}
			return nil, err
		}
		named = append(named, StreamInfo{
			Name:           vfs.RenderStreamName(name),
			Size:           uint64(n),
			AllocationSize: uint64(n),
		})
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })
	return append(out, named...), nil
}

// QueryStreams enumerates the streams of the open's file. After a full
// enumeration the next call without restart reports STATUS_NO_MORE_FILES.
func (v *Volume) QueryStreams(ctx context.Context, o *Open, restart bool) ([]StreamInfo, error) {
	const op = "querystreams"

	e := o.entry
	e.mu.Lock()
	defer e.mu.Unlock()
	o.mu.Lock()
	defer o.mu.Unlock()
	name := o.identityLocked().File().String()

	if o.streamsDone && !restart {
		return nil, NewOpError(op, name, STATUS_NO_MORE_FILES)
	}

	streams, err := v.listStreams(o.handle)
	if err != nil {
		return nil, WrapError(op, name, err)
	}
	if len(streams) == 0 {
		return nil, NewOpError(op, name, STATUS_OBJECT_NAME_NOT_FOUND)
	}
	o.streamsDone = true
	return streams, nil
}

// ListStreams enumerates the streams of the file at p. A path that does
// not exist fails with not found.
func (v *Volume) ListStreams(ctx context.Context, p string) ([]StreamInfo, error) {
	id, err := vfs.ParseStreamPath(p)
	if err != nil {
		return nil, NewOpError("liststreams", p, STATUS_OBJECT_NAME_INVALID)
	}
	o, err := v.Create(ctx, CreateRequest{
		Path:              id.Path,
		DesiredAccess:     FILE_READ_ATTRIBUTES,
		ShareAccess:       FILE_SHARE_ALL,
		CreateDisposition: FILE_OPEN,
	})
	if err != nil {
		return nil, err
	}
	streams, err := v.QueryStreams(ctx, o, true)
	if cerr := v.Close(ctx, o); err == nil {
		err = cerr
	}
	return streams, err
}
