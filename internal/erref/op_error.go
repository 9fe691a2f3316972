package erref

import (
	"fmt"
	"syscall"
)

// OpError is returned by every volume operation that fails. Errno is the
// POSIX-domain result; Status keeps the more specific native code (for
// example STATUS_SHARING_VIOLATION behind EACCES).
type OpError struct {
	Op     string
	Path   string
	Errno  syscall.Errno
	Status NtStatus
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v (%v)", e.Op, e.Errno, e.Status)
	}
	return fmt.Sprintf("%s %s: %v (%v)", e.Op, e.Path, e.Errno, e.Status)
}

func (e *OpError) Unwrap() error {
	return e.Errno
}

// NewOpError builds an OpError from a native status.
func NewOpError(op, path string, status NtStatus) *OpError {
	return &OpError{Op: op, Path: path, Errno: ToErrno(status), Status: status}
}

// WrapError builds an OpError from an arbitrary error. An OpError passed in
// is returned unchanged so the innermost operation name survives.
func WrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*OpError); ok {
		return e
	}
	errno := ErrnoFromError(err)
	status := ToNtStatus(errno)
	if s, ok := err.(NtStatus); ok {
		status = s
	}
	return &OpError{Op: op, Path: path, Errno: errno, Status: status}
}
