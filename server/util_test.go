package server

import (
	"testing"

	"github.com/macos-fuse-t/fusent/vfs"
	"github.com/stretchr/testify/assert"
)

func TestMatchWildcard(t *testing.T) {
	cases := []struct {
		name, pattern string
		match         bool
	}{
		{"a.txt", "*", true},
		{"a.txt", "*.TXT", true},
		{"a.txt", "?.txt", true},
		{"ab.txt", "?.txt", false},
		{"a+b", "a+b", true},
		{"a(b)", "a(*", true},
		{"abc", "a*c*", true},
		{"abd", "a*c", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, MatchWildcard(c.name, c.pattern), "%s ~ %s", c.name, c.pattern)
	}
	assert.True(t, ContainsWildcard("a*"))
	assert.False(t, ContainsWildcard("a.txt"))
}

func TestMapGenericAccess(t *testing.T) {
	a := MapGenericAccess(GENERIC_READ)
	assert.NotZero(t, a&FILE_READ_DATA)
	assert.Zero(t, a&FILE_WRITE_DATA)
	assert.Zero(t, a&GENERIC_READ)

	a = MapGenericAccess(GENERIC_WRITE | DELETE)
	assert.NotZero(t, a&FILE_WRITE_DATA)
	assert.NotZero(t, a&FILE_APPEND_DATA)
	assert.NotZero(t, a&DELETE)

	assert.Equal(t, FILE_ALL_ACCESS, MapGenericAccess(GENERIC_ALL)&FILE_ALL_ACCESS)
}

func TestAttributesFromVfs(t *testing.T) {
	file := (&vfs.Attributes{}).SetFileType(vfs.FileTypeRegularFile).SetPermissions(vfs.NewPermissionsFromMode(0644))
	assert.Equal(t, vfs.FILE_ATTRIBUTE_NORMAL, AttributesFromVfs(file, "/dir/a"))
	assert.Equal(t, vfs.FILE_ATTRIBUTE_HIDDEN, AttributesFromVfs(file, "/dir/.a"))

	ro := (&vfs.Attributes{}).SetFileType(vfs.FileTypeRegularFile).SetPermissions(vfs.NewPermissionsFromMode(0444))
	assert.Equal(t, vfs.FILE_ATTRIBUTE_READONLY, AttributesFromVfs(ro, "/a"))

	flagged := (&vfs.Attributes{}).SetFileType(vfs.FileTypeRegularFile).
		SetPermissions(vfs.NewPermissionsFromMode(0644)).
		SetFlags(vfs.FlagHidden | vfs.FlagImmutable)
	assert.Equal(t, vfs.FILE_ATTRIBUTE_HIDDEN|vfs.FILE_ATTRIBUTE_READONLY, AttributesFromVfs(flagged, "/a"))

	dir := (&vfs.Attributes{}).SetFileType(vfs.FileTypeDirectory).SetPermissions(vfs.NewPermissionsFromMode(0755))
	assert.Equal(t, vfs.FILE_ATTRIBUTE_DIRECTORY, AttributesFromVfs(dir, "/d"))
	assert.Equal(t, vfs.FILE_ATTRIBUTE_DIRECTORY, AttributesFromVfs(dir, ".."))
}
