package server

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/macos-fuse-t/fusent/vfs"
)

func wildcardToRegexp(pattern string) string {
	q := regexp.QuoteMeta(pattern)
	q = strings.ReplaceAll(q, `\*`, ".*")
	q = strings.ReplaceAll(q, `\?`, ".")
	return "(?is)^" + q + "$"
}

// MatchWildcard matches a name against a "*" and "?" pattern, ignoring
// case.
func MatchWildcard(s, pattern string) bool {
	r, err := regexp.Compile(wildcardToRegexp(pattern))
	if err != nil {
		return false
	}
	return r.MatchString(s)
}

func ContainsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// MapGenericAccess expands the GENERIC_* bits into specific rights.
func MapGenericAccess(access uint32) uint32 {
	if access&GENERIC_READ != 0 {
		access |= FILE_READ_DATA | FILE_READ_ATTRIBUTES | FILE_READ_EA | READ_CONTROL | SYNCHRONIZE
	}
	if access&GENERIC_WRITE != 0 {
		access |= FILE_WRITE_DATA | FILE_APPEND_DATA | FILE_WRITE_ATTRIBUTES | FILE_WRITE_EA | READ_CONTROL | SYNCHRONIZE
	}
	if access&GENERIC_EXECUTE != 0 {
		access |= FILE_EXECUTE | FILE_READ_ATTRIBUTES | READ_CONTROL | SYNCHRONIZE
	}
	if access&GENERIC_ALL != 0 {
		access |= FILE_ALL_ACCESS
	}
	return access &^ (GENERIC_READ | GENERIC_WRITE | GENERIC_EXECUTE | GENERIC_ALL)
}

func BirthTimeFromVfs(a *vfs.Attributes) time.Time {
	if t, ok := a.GetBirthTime(); ok {
		return t
	}
	return ModifiedTimeFromVfs(a)
}

func AccessTimeFromVfs(a *vfs.Attributes) time.Time {
	t, _ := a.GetAccessTime()
	return t
}

func ModifiedTimeFromVfs(a *vfs.Attributes) time.Time {
	t, _ := a.GetLastDataModificationTime()
	return t
}

func ChangeTimeFromVfs(a *vfs.Attributes) time.Time {
	if t, ok := a.GetLastStatusChangeTime(); ok {
		return t
	}
	return ModifiedTimeFromVfs(a)
}

func SizeFromVfs(a *vfs.Attributes) uint64 {
	s, _ := a.GetSizeBytes()
	return s
}

func DiskSizeFromVfs(a *vfs.Attributes) uint64 {
	s, _ := a.GetDiskSizeBytes()
	return s
}

// AttributesFromVfs derives native attributes for files that carry no
// attribute record. Dot files and files flagged hidden by the host are
// hidden; files without owner write permission or flagged immutable are
// read-only.
func AttributesFromVfs(a *vfs.Attributes, p string) uint32 {
	attrs := uint32(0)
	name := path.Base(p)
	if len(name) > 1 && name[0] == '.' && name != ".." {
		attrs |= vfs.FILE_ATTRIBUTE_HIDDEN
	}
	if perms, ok := a.GetPermissions(); ok && perms&vfs.PermissionsWrite == 0 {
		attrs |= vfs.FILE_ATTRIBUTE_READONLY
	}
	if flags, ok := a.GetFlags(); ok {
		if flags&vfs.FlagHidden != 0 {
			attrs |= vfs.FILE_ATTRIBUTE_HIDDEN
		}
		if flags&vfs.FlagImmutable != 0 {
			attrs |= vfs.FILE_ATTRIBUTE_READONLY
		}
	}
	return vfs.NormalizeAttributes(attrs, a.IsDir())
}

// MaxAccessFromVfs computes the rights MAXIMUM_ALLOWED grants for a file
// with the given mode.
func MaxAccessFromVfs(a *vfs.Attributes) uint32 {
	unixMode, ok := a.GetUnixMode()
	if !ok {
		unixMode = 0777
	}
	maximalAccess := SYNCHRONIZE

	if unixMode&0404 != 0 {
		maximalAccess |= FILE_READ_ATTRIBUTES | FILE_READ_DATA | FILE_READ_EA
		if unixMode&0400 != 0 {
			maximalAccess |= READ_CONTROL
		}
	}
	if unixMode&0202 != 0 {
		maximalAccess |= FILE_WRITE_ATTRIBUTES | FILE_WRITE_DATA | FILE_WRITE_EA | FILE_APPEND_DATA
		if unixMode&0200 != 0 {
			maximalAccess |= WRITE_DAC | WRITE_OWNER
			maximalAccess |= DELETE | FILE_DELETE_CHILD
		}
	}
	if unixMode&0101 != 0 {
		maximalAccess |= FILE_EXECUTE
	}
	return maximalAccess
}
