package erref

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Statuses and errnos that are used when nothing more specific applies.
const (
	FallbackErrno  = unix.EIO
	FallbackStatus = STATUS_IO_DEVICE_ERROR
)

// errnoToStatus lists the codes both domains share exactly. Round trips
// through ToNtStatus and ToErrno are stable for every entry.
var errnoToStatus = map[syscall.Errno]NtStatus{
	unix.ENOENT:       STATUS_OBJECT_NAME_NOT_FOUND,
	unix.EACCES:       STATUS_ACCESS_DENIED,
	unix.EPERM:        STATUS_PRIVILEGE_NOT_HELD,
	unix.EEXIST:       STATUS_OBJECT_NAME_COLLISION,
	unix.ENOTDIR:      STATUS_NOT_A_DIRECTORY,
	unix.EISDIR:       STATUS_FILE_IS_A_DIRECTORY,
	unix.ENOTEMPTY:    STATUS_DIRECTORY_NOT_EMPTY,
	unix.EBADF:        STATUS_INVALID_HANDLE,
	unix.EINVAL:       STATUS_INVALID_PARAMETER,
	unix.ENOSPC:       STATUS_DISK_FULL,
	unix.ENOTSUP:      STATUS_NOT_SUPPORTED,
	unix.ENOSYS:       STATUS_NOT_IMPLEMENTED,
	unix.EIO:          STATUS_IO_DEVICE_ERROR,
	unix.ENAMETOOLONG: STATUS_NAME_TOO_LONG,
	unix.EROFS:        STATUS_MEDIA_WRITE_PROTECTED,
	unix.EMFILE:       STATUS_TOO_MANY_OPENED_FILES,
	unix.ENOMEM:       STATUS_INSUFFICIENT_RESOURCES,
	unix.EXDEV:        STATUS_NOT_SAME_DEVICE,
	unix.EBUSY:        STATUS_DEVICE_BUSY,
	unix.ETIMEDOUT:    STATUS_TIMEOUT,
	unix.ECANCELED:    STATUS_CANCELLED,
	unix.ESHUTDOWN:    STATUS_VOLUME_DISMOUNTED,
	unix.E2BIG:        STATUS_EA_TOO_LARGE,
	unix.ELOOP:        STATUS_STOPPED_ON_SYMLINK,
}

// statusToErrno is the inverse of errnoToStatus plus the native codes that
// have no exact POSIX twin and collapse onto the nearest errno.
var statusToErrno = map[NtStatus]syscall.Errno{
	STATUS_NO_SUCH_FILE:           unix.ENOENT,
	STATUS_OBJECT_PATH_NOT_FOUND:  unix.ENOENT,
	STATUS_NOT_FOUND:              unix.ENOENT,
	STATUS_DELETE_PENDING:         unix.EACCES,
	STATUS_SHARING_VIOLATION:      unix.EACCES,
	STATUS_CANNOT_DELETE:          unix.EACCES,
	STATUS_FILE_LOCK_CONFLICT:     unix.EACCES,
	STATUS_LOCK_NOT_GRANTED:       unix.EACCES,
	STATUS_OBJECT_NAME_EXISTS:     unix.EEXIST,
	STATUS_OBJECT_NAME_INVALID:    unix.EINVAL,
	STATUS_INVALID_DEVICE_REQUEST: unix.EINVAL,
	STATUS_INVALID_INFO_CLASS:     unix.EINVAL,
	STATUS_OBJECT_TYPE_MISMATCH:   unix.EINVAL,
	STATUS_FILE_CLOSED:            unix.EBADF,
	STATUS_END_OF_FILE:            unix.ENODATA,
	STATUS_NO_MORE_FILES:          unix.ENODATA,
	STATUS_BUFFER_OVERFLOW:        unix.ERANGE,
}

func init() {
	for errno, status := range errnoToStatus {
		if _, ok := statusToErrno[status]; ok {
			panic("erref: status mapped twice: " + status.String())
		}
		statusToErrno[status] = errno
	}
}

// ToErrno translates a native status into the POSIX errno domain. It is
// total: success maps to 0 and anything unmapped maps to EIO.
func ToErrno(status NtStatus) syscall.Errno {
	if status == STATUS_SUCCESS {
		return 0
	}
	if errno, ok := statusToErrno[status]; ok {
		return errno
	}
	return FallbackErrno
}

// ToNtStatus translates a POSIX errno into the native status domain. It is
// total: 0 maps to STATUS_SUCCESS and anything unmapped maps to
// STATUS_IO_DEVICE_ERROR.
func ToNtStatus(errno syscall.Errno) NtStatus {
	if errno == 0 {
		return STATUS_SUCCESS
	}
	if status, ok := errnoToStatus[errno]; ok {
		return status
	}
	switch errno {
	case unix.ENODATA:
		return STATUS_END_OF_FILE
	case unix.ERANGE:
		return STATUS_BUFFER_OVERFLOW
	}
	return FallbackStatus
}

// ErrnoFromError normalizes an error returned by a callback filesystem into
// the POSIX domain.
func ErrnoFromError(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	var status NtStatus
	if errors.As(err, &status) {
		return ToErrno(status)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrClosed), errors.Is(err, os.ErrClosed):
		return unix.EBADF
	case errors.Is(err, fs.ErrInvalid):
		return unix.EINVAL
	case errors.Is(err, io.EOF):
		return unix.ENODATA
	case errors.Is(err, context.Canceled):
		return unix.ECANCELED
	case errors.Is(err, context.DeadlineExceeded):
		return unix.ETIMEDOUT
	}
	return FallbackErrno
}

// StatusFromError is ErrnoFromError followed by ToNtStatus, except that a
// native status carried inside err is returned as is.
func StatusFromError(err error) NtStatus {
	var status NtStatus
	if errors.As(err, &status) {
		return status
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Status
	}
	return ToNtStatus(ErrnoFromError(err))
}
