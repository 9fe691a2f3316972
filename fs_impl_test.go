package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/macos-fuse-t/fusent/server"
	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dirNames(entries []vfs.DirInfo) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

// requireXattrs skips the test when the temp filesystem has no user
// extended attributes.
func requireXattrs(t *testing.T, dir string) {
	t.Helper()
	p := filepath.Join(dir, ".xattr-check")
	require.NoError(t, os.WriteFile(p, nil, 0644))
	defer os.Remove(p)
	if err := xattr.Set(p, "user.check", []byte("1")); err != nil {
		t.Skipf("no user xattrs on %s: %v", dir, err)
	}
}

func TestPassthroughFiles(t *testing.T) {
	root := t.TempDir()
	fs := NewPassthroughFS(root)

	_, err := fs.Open("/a.txt", os.O_RDWR, 0644)
	assert.ErrorIs(t, err, os.ErrNotExist)

	h, err := fs.Open("/a.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	require.NoError(t, err)
	n, err := fs.Write(h, []byte("hello"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, fs.FSync(h))

	buf := make([]byte, 16)
	n, err = fs.Read(h, buf, 1, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ello", string(buf[:n]))

	require.NoError(t, fs.Truncate(h, 2))
	a, err := fs.GetAttr(h)
	require.NoError(t, err)
	size, _ := a.GetSizeBytes()
	assert.Equal(t, uint64(2), size)
	assert.Equal(t, vfs.FileTypeRegularFile, a.GetFileType())

	_, err = fs.Open("/a.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	assert.ErrorIs(t, err, os.ErrExist)

	mtime := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	_, err = fs.SetAttr(h, (&vfs.Attributes{}).SetLastDataModificationTime(mtime))
	require.NoError(t, err)
	a, err = fs.Lookup(0, "/a.txt")
	require.NoError(t, err)
	got, _ := a.GetLastDataModificationTime()
	assert.True(t, mtime.Equal(got))

	require.NoError(t, fs.Unlink(h))
	require.NoError(t, fs.Close(h))
	_, err = os.Stat(filepath.Join(root, "a.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.ErrorIs(t, fs.Close(h), syscall.EBADF)
}

func TestPassthroughDirectories(t *testing.T) {
	root := t.TempDir()
	fs := NewPassthroughFS(root)

	_, err := fs.Mkdir("/dir", 0755)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "b"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "a"), nil, 0644))

	h, err := fs.OpenDir("/dir")
	require.NoError(t, err)
	entries, err := fs.ReadDir(h, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "a", "b"}, dirNames(entries))

	entries, err = fs.ReadDir(h, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"..", "a"}, dirNames(entries))

	a, err := fs.Lookup(h, "b")
	require.NoError(t, err)
	assert.False(t, a.IsDir())

	assert.Error(t, fs.Unlink(h))
	require.NoError(t, fs.Close(h))

	_, err = fs.OpenDir("/dir/a")
	assert.ErrorIs(t, err, syscall.ENOTDIR)

	st, err := fs.StatFS(0)
	require.NoError(t, err)
	assert.NotZero(t, st.TotalBytes())
}

func TestPassthroughRenameMovesHandles(t *testing.T) {
	root := t.TempDir()
	fs := NewPassthroughFS(root)

	_, err := fs.Mkdir("/dir", 0755)
	require.NoError(t, err)
	f, err := fs.Open("/dir/f", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	d, err := fs.OpenDir("/dir")
	require.NoError(t, err)

	other, err := fs.Open("/other", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Rename(d, "/other", vfs.RENAME_NOREPLACE), syscall.EEXIST)

	require.NoError(t, fs.Rename(d, "/moved", vfs.RENAME_NOREPLACE))
	require.NoError(t, fs.Truncate(f, 3))
	a, err := fs.Lookup(0, "/moved/f")
	require.NoError(t, err)
	size, _ := a.GetSizeBytes()
	assert.Equal(t, uint64(3), size)

	require.NoError(t, fs.Rename(f, "/other", vfs.RENAME_REPLACE))
	_, err = fs.Lookup(0, "/moved/f")
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, h := range []vfs.VfsHandle{f, d, other} {
		require.NoError(t, fs.Close(h))
	}
}

func TestPassthroughXattrs(t *testing.T) {
	root := t.TempDir()
	requireXattrs(t, root)
	fs := NewPassthroughFS(root)

	h, err := fs.Open("/f", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer fs.Close(h)

	_, err = fs.Getxattr(h, "user.missing", nil)
	assert.True(t, errors.Is(err, xattr.ENOATTR), "%v", err)

	require.NoError(t, fs.Setxattr(h, "user.k", []byte("value")))
	n, err := fs.Getxattr(h, "user.k", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, err = fs.Getxattr(h, "user.k", make([]byte, 2))
	assert.ErrorIs(t, err, syscall.ERANGE)
	buf := make([]byte, n)
	_, err = fs.Getxattr(h, "user.k", buf)
	require.NoError(t, err)
	assert.Equal(t, "value", string(buf))

	keys, err := fs.Listxattr(h)
	require.NoError(t, err)
	assert.Contains(t, keys, "user.k")

	require.NoError(t, fs.Removexattr(h, "user.k"))
	_, err = fs.Getxattr(h, "user.k", nil)
	assert.True(t, errors.Is(err, xattr.ENOATTR))
}

func TestPassthroughNotify(t *testing.T) {
	root := t.TempDir()
	fs := NewPassthroughFS(root)

	d, err := fs.OpenDir("/")
	require.NoError(t, err)
	ch := make(chan *vfs.NotifyEvent, 16)
	require.NoError(t, fs.RegisterNotify(d, ch))

	require.NoError(t, os.WriteFile(filepath.Join(root, "new"), nil, 0644))
	select {
	case ev := <-ch:
		assert.Equal(t, "new", ev.Name)
		assert.Equal(t, d, ev.Handle)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}

	require.NoError(t, fs.RemoveNotify(d))
	assert.ErrorIs(t, fs.RemoveNotify(d), syscall.EBADF)
	require.NoError(t, fs.Close(d))
}

// The volume behaves the same on a host directory as on the in-memory
// filesystem.
func TestPassthroughVolume(t *testing.T) {
	root := t.TempDir()
	requireXattrs(t, root)
	ctx := context.Background()
	v := server.NewVolume(NewPassthroughFS(root), &server.VolumeConfig{Xattrs: true})

	o, err := v.Create(ctx, server.CreateRequest{
		Path:              "/file.txt",
		DesiredAccess:     server.GENERIC_READ | server.GENERIC_WRITE,
		ShareAccess:       server.FILE_SHARE_READ,
		CreateDisposition: server.FILE_CREATE,
		FileAttributes:    vfs.FILE_ATTRIBUTE_HIDDEN,
	})
	require.NoError(t, err)
	created := time.Date(1999, 12, 31, 23, 59, 59, 987654321, time.UTC)
	require.NoError(t, v.SetBasicInfo(ctx, o, server.BasicInfo{CreationTime: created}))
	require.NoError(t, v.Close(ctx, o))

	for _, s := range []string{"/file.txt:foo", "/file.txt:bar"} {
		o, err := v.Create(ctx, server.CreateRequest{
			Path:              s,
			DesiredAccess:     server.GENERIC_WRITE,
			ShareAccess:       server.FILE_SHARE_ALL,
			CreateDisposition: server.FILE_CREATE,
		})
		require.NoError(t, err)
		_, err = v.Write(ctx, o, 0, []byte(s))
		require.NoError(t, err)
		require.NoError(t, v.Close(ctx, o))
	}

	info, err := v.GetAttributes(ctx, "/file.txt")
	require.NoError(t, err)
	assert.Equal(t, vfs.FILE_ATTRIBUTE_HIDDEN, info.FileAttributes)
	assert.True(t, created.Equal(info.CreationTime))

	streams, err := v.ListStreams(ctx, "/file.txt")
	require.NoError(t, err)
	assert.Len(t, streams, 3)

	del, err := v.Create(ctx, server.CreateRequest{
		Path:              "/file.txt",
		DesiredAccess:     server.DELETE,
		ShareAccess:       server.FILE_SHARE_ALL,
		CreateDisposition: server.FILE_OPEN,
	})
	require.NoError(t, err)
	require.NoError(t, v.SetDisposition(ctx, del, true))
	require.NoError(t, v.Close(ctx, del))

	_, err = v.ListStreams(ctx, "/file.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(root, "file.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
