package vfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statOf(t *testing.T, p string) os.FileInfo {
	t.Helper()
	fi, err := os.Lstat(p)
	require.NoError(t, err)
	return fi
}

func TestAttributesFromFileInfo(t *testing.T) {
	dir := t.TempDir()
	a := AttributesFromFileInfo(statOf(t, dir))
	assert.True(t, a.IsDir())
	_, ok := a.GetInodeNumber()
	assert.True(t, ok)
	perms, ok := a.GetPermissions()
	assert.True(t, ok)
	assert.NotZero(t, perms&PermissionsRead)

	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, []byte("abc"), 0640))
	a = AttributesFromFileInfo(statOf(t, f))
	assert.Equal(t, FileTypeRegularFile, a.GetFileType())
	size, _ := a.GetSizeBytes()
	assert.Equal(t, uint64(3), size)
	mode, _ := a.GetUnixMode()
	assert.Equal(t, uint32(0640), mode)
	assert.True(t, a.Has(AttributesMaskAccessTime|AttributesMaskLastStatusChangeTime|AttributesMaskLinkCount))
}

func TestAttributesPresence(t *testing.T) {
	a := &Attributes{}
	assert.False(t, a.IsDir())
	assert.Panics(t, func() { a.GetFileType() })

	_, ok := a.GetBirthTime()
	assert.False(t, ok)
	now := time.Now()
	a.SetFileType(FileTypeDirectory).SetBirthTime(now).SetFlags(FlagHidden)
	bt, ok := a.GetBirthTime()
	assert.True(t, ok)
	assert.True(t, now.Equal(bt))
	flags, ok := a.GetFlags()
	assert.True(t, ok)
	assert.Equal(t, FlagHidden, flags)
	assert.True(t, a.IsDir())

	a.SetSizeBytes(10)
	disk, ok := a.GetDiskSizeBytes()
	assert.False(t, ok)
	assert.Equal(t, uint64(10), disk)

	a.SetUnixMode(0100755)
	mode, _ := a.GetUnixMode()
	assert.Equal(t, uint32(0755), mode)
}

func TestFSAttributes(t *testing.T) {
	a := &FSAttributes{}
	a.SetBlocks(100).SetAvailableBlocks(40)
	assert.Equal(t, uint64(100*512), a.TotalBytes())
	assert.Equal(t, uint64(40*512), a.FreeBytes())

	a.SetBlockSize(4096)
	assert.Equal(t, uint64(100*4096), a.TotalBytes())

	n, ok := a.GetNameMax()
	assert.False(t, ok)
	assert.Equal(t, uint64(DefaultNameMax), n)
	a.SetNameMax(1024)
	n, ok = a.GetNameMax()
	assert.True(t, ok)
	assert.Equal(t, uint64(1024), n)
}
