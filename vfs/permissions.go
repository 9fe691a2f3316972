package vfs

import (
	"fmt"
	"syscall"
)

// PermissionsStreamName is the named stream some shell tools use to carry
// a file's permission triplet. The volume treats it as an ordinary stream.
const PermissionsStreamName = "fusent.permissions"

// Permissions holds the nine rwx bits for owner, group and other.
type Permissions uint32

const (
	PermissionsRead    Permissions = 0400
	PermissionsWrite   Permissions = 0200
	PermissionsExecute Permissions = 0100
)

func NewPermissionsFromMode(mode uint32) Permissions {
	return Permissions(mode & 0777)
}

func (p Permissions) Mode() uint32 {
	return uint32(p) & 0777
}

// Encode renders the three ASCII octal digits stored in the sidecar
// stream.
func (p Permissions) Encode() []byte {
	return []byte(fmt.Sprintf("%03o", p.Mode()))
}

func (p Permissions) String() string {
	const rwx = "rwxrwxrwx"
	b := []byte("---------")
	for i := range b {
		if p&(1<<(8-i)) != 0 {
			b[i] = rwx[i]
		}
	}
	return string(b)
}

// ParsePermissions reads a sidecar value. Exactly three octal digits are
// accepted.
func ParsePermissions(b []byte) (Permissions, error) {
	if len(b) != 3 {
		return 0, syscall.EINVAL
	}
	var p Permissions
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, syscall.EINVAL
		}
		p = p<<3 | Permissions(c-'0')
	}
	return p, nil
}
