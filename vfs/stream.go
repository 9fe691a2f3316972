package vfs

import (
	"path"
	"strings"
	"syscall"
)

const (
	// StreamXattrPrefix is prepended to a named stream's name to form the
	// extended attribute key that stores its contents.
	StreamXattrPrefix = "user.stream."

	// DataStreamType is the only stream type the volume serves.
	DataStreamType = "$DATA"

	// MaxStreamSize bounds a named stream. It is the largest extended
	// attribute value Linux accepts (XATTR_SIZE_MAX).
	MaxStreamSize = 64 << 10
)

// StreamIdentity names one data stream of a file: the default stream when
// Stream is empty, a named stream otherwise.
type StreamIdentity struct {
	Path   string
	Stream string
}

// ParseStreamPath splits "dir/file:name:$DATA" style paths. Backslashes
// are accepted as separators, the result is cleaned and rooted at "/".
// A stream selector may appear only in the last component.
func ParseStreamPath(p string) (StreamIdentity, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	dir, base := path.Split(p)
	if strings.Contains(dir, ":") {
		return StreamIdentity{}, syscall.EINVAL
	}

	name := base
	stream := ""
	if i := strings.IndexByte(base, ':'); i >= 0 {
		name = base[:i]
		sel := base[i+1:]
		if j := strings.IndexByte(sel, ':'); j >= 0 {
			if !strings.EqualFold(sel[j+1:], DataStreamType) {
				return StreamIdentity{}, syscall.EINVAL
			}
			sel = sel[:j]
		} else if sel == "" {
			return StreamIdentity{}, syscall.EINVAL
		}
		if name == "" {
			return StreamIdentity{}, syscall.EINVAL
		}
		stream = sel
	}

	return StreamIdentity{Path: CleanPath(dir + name), Stream: stream}, nil
}

// CleanPath roots and cleans a slash separated path.
func CleanPath(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}

func (s StreamIdentity) IsDefault() bool {
	return s.Stream == ""
}

// File is the identity of the file's default stream.
func (s StreamIdentity) File() StreamIdentity {
	return StreamIdentity{Path: s.Path}
}

// XattrKey is the extended attribute holding a named stream.
func (s StreamIdentity) XattrKey() string {
	return StreamXattrPrefix + s.Stream
}

func (s StreamIdentity) String() string {
	if s.IsDefault() {
		return s.Path
	}
	return s.Path + ":" + s.Stream
}

// RenderStreamName produces the enumeration form of a stream name:
// "::$DATA" for the default stream, ":name:$DATA" otherwise.
func RenderStreamName(name string) string {
	return ":" + name + ":" + DataStreamType
}

// ParseStreamName is the inverse of RenderStreamName.
func ParseStreamName(rendered string) (string, error) {
	if !strings.HasPrefix(rendered, ":") {
		return "", syscall.EINVAL
	}
	name, typ, ok := strings.Cut(rendered[1:], ":")
	if !ok || typ != DataStreamType {
		return "", syscall.EINVAL
	}
	return name, nil
}

// StreamNameFromXattr returns the stream name stored under key, if key
// is a stream attribute.
func StreamNameFromXattr(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, StreamXattrPrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
