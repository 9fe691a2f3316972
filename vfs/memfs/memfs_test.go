package memfs

import (
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []vfs.DirInfo) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestOpenCreateReadWrite(t *testing.T) {
	fs := New()

	_, err := fs.Open("/a.txt", os.O_RDWR, 0644)
	assert.ErrorIs(t, err, syscall.ENOENT)

	h, err := fs.Open("/a.txt", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	n, err := fs.Write(h, []byte("hello"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, err = fs.Write(h, []byte("!"), 7, 0)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err = fs.Read(h, buf, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00\x00!"), buf[:n])

	_, err = fs.Read(h, buf, 8, 0)
	assert.ErrorIs(t, err, io.EOF)

	a, err := fs.GetAttr(h)
	require.NoError(t, err)
	size, _ := a.GetSizeBytes()
	assert.Equal(t, uint64(8), size)
	assert.Equal(t, vfs.FileTypeRegularFile, a.GetFileType())

	require.NoError(t, fs.Truncate(h, 2))
	n, err = fs.Read(h, buf, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "he", string(buf[:n]))

	_, err = fs.Open("/a.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	assert.ErrorIs(t, err, syscall.EEXIST)

	require.NoError(t, fs.Close(h))
	assert.ErrorIs(t, fs.Close(h), syscall.EBADF)
}

func TestDirectories(t *testing.T) {
	fs := New()

	_, err := fs.Mkdir("/d", 0755)
	require.NoError(t, err)
	_, err = fs.Mkdir("/d", 0755)
	assert.ErrorIs(t, err, syscall.EEXIST)
	_, err = fs.Mkdir("/missing/d", 0755)
	assert.ErrorIs(t, err, syscall.ENOENT)

	f, err := fs.Open("/d/child", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	dh, err := fs.OpenDir("/d")
	require.NoError(t, err)
	entries, err := fs.ReadDir(dh, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "child"}, names(entries))

	entries, err = fs.ReadDir(dh, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{".."}, names(entries))

	_, err = fs.Open("/d/child/x", os.O_CREATE, 0644)
	assert.ErrorIs(t, err, syscall.ENOTDIR)

	assert.ErrorIs(t, fs.Unlink(dh), syscall.ENOTEMPTY)

	require.NoError(t, fs.Unlink(f))
	entries, err = fs.ReadDir(dh, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{".", ".."}, names(entries))

	// unlinked file stays usable through its handle
	_, err = fs.Write(f, []byte("x"), 0, 0)
	assert.NoError(t, err)
	assert.ErrorIs(t, fs.Unlink(f), syscall.ENOENT)
	require.NoError(t, fs.Close(f))

	_, err = fs.Lookup(0, "/d/child")
	assert.ErrorIs(t, err, syscall.ENOENT)

	require.NoError(t, fs.Unlink(dh))
	require.NoError(t, fs.Close(dh))
	_, err = fs.OpenDir("/d")
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestLookupRelative(t *testing.T) {
	fs := New()
	_, err := fs.Mkdir("/d", 0755)
	require.NoError(t, err)
	h, err := fs.Open("/d/f", os.O_CREATE|os.O_RDWR, 0600)
	require.NoError(t, err)
	defer fs.Close(h)

	dh, err := fs.OpenDir("/d")
	require.NoError(t, err)
	defer fs.Close(dh)

	a, err := fs.Lookup(dh, "f")
	require.NoError(t, err)
	mode, _ := a.GetUnixMode()
	assert.Equal(t, uint32(0600), mode)
}

func TestRename(t *testing.T) {
	fs := New()
	a, err := fs.Open("/a", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	b, err := fs.Open("/b", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	assert.ErrorIs(t, fs.Rename(a, "/b", vfs.RENAME_NOREPLACE), syscall.EEXIST)
	require.NoError(t, fs.Rename(a, "/b", vfs.RENAME_REPLACE))

	attrs, err := fs.GetAttr(b)
	require.NoError(t, err)
	links, _ := attrs.GetLinkCount()
	assert.Zero(t, links)

	_, err = fs.Lookup(0, "/a")
	assert.ErrorIs(t, err, syscall.ENOENT)
	_, err = fs.Lookup(0, "/b")
	assert.NoError(t, err)

	_, err = fs.Mkdir("/d", 0755)
	require.NoError(t, err)
	dh, err := fs.OpenDir("/d")
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Rename(dh, "/d/sub", 0), syscall.EINVAL)
}

func TestXattrs(t *testing.T) {
	fs := New()
	h, err := fs.Open("/f", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = fs.Getxattr(h, "user.x", nil)
	assert.ErrorIs(t, err, xattr.ENOATTR)

	require.NoError(t, fs.Setxattr(h, "user.x", []byte("value")))
	n, err := fs.Getxattr(h, "user.x", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = fs.Getxattr(h, "user.x", make([]byte, 2))
	assert.ErrorIs(t, err, syscall.ERANGE)

	buf := make([]byte, n)
	_, err = fs.Getxattr(h, "user.x", buf)
	require.NoError(t, err)
	assert.Equal(t, "value", string(buf))

	keys, err := fs.Listxattr(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"user.x"}, keys)

	require.NoError(t, fs.Removexattr(h, "user.x"))
	assert.ErrorIs(t, fs.Removexattr(h, "user.x"), xattr.ENOATTR)
}

func TestSetAttrTimes(t *testing.T) {
	fs := New()
	h, err := fs.Open("/f", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	birth := time.Date(2001, 2, 3, 4, 5, 6, 7, time.UTC)
	_, err = fs.SetAttr(h, (&vfs.Attributes{}).SetBirthTime(birth).SetUnixMode(0400))
	require.NoError(t, err)

	a, err := fs.Lookup(0, "/f")
	require.NoError(t, err)
	got, ok := a.GetBirthTime()
	require.True(t, ok)
	assert.True(t, birth.Equal(got))
	perms, _ := a.GetPermissions()
	assert.Zero(t, perms&vfs.PermissionsWrite)
}

func TestNotify(t *testing.T) {
	fs := New()
	dh, err := fs.OpenDir("/")
	require.NoError(t, err)

	ch := make(chan *vfs.NotifyEvent, 4)
	require.NoError(t, fs.RegisterNotify(dh, ch))

	_, err = fs.Mkdir("/d", 0755)
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, vfs.NotifyEventCreate, ev.EvType)
	assert.Equal(t, "d", ev.Name)
	assert.Equal(t, dh, ev.Handle)

	require.NoError(t, fs.RemoveNotify(dh))
	assert.ErrorIs(t, fs.RemoveNotify(dh), syscall.EBADF)
}

func TestStatFS(t *testing.T) {
	fs := New()
	a, err := fs.StatFS(0)
	require.NoError(t, err)
	bsize, ok := a.GetBlockSize()
	assert.True(t, ok)
	assert.Equal(t, uint64(blockSize), bsize)
	assert.NotZero(t, a.FreeBytes())
}
