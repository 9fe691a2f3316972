package erref

import "fmt"

// NtStatus is a native status code as reported to native clients.
type NtStatus uint32

const (
	STATUS_SUCCESS                NtStatus = 0x00000000
	STATUS_PENDING                NtStatus = 0x00000103
	STATUS_NO_MORE_FILES          NtStatus = 0x80000006
	STATUS_UNSUCCESSFUL           NtStatus = 0xC0000001
	STATUS_NOT_IMPLEMENTED        NtStatus = 0xC0000002
	STATUS_INVALID_HANDLE         NtStatus = 0xC0000008
	STATUS_INVALID_PARAMETER      NtStatus = 0xC000000D
	STATUS_NO_SUCH_FILE           NtStatus = 0xC000000F
	STATUS_END_OF_FILE            NtStatus = 0xC0000011
	STATUS_ACCESS_DENIED          NtStatus = 0xC0000022
	STATUS_OBJECT_NAME_INVALID    NtStatus = 0xC0000033
	STATUS_OBJECT_NAME_NOT_FOUND  NtStatus = 0xC0000034
	STATUS_OBJECT_NAME_COLLISION  NtStatus = 0xC0000035
	STATUS_OBJECT_PATH_NOT_FOUND  NtStatus = 0xC000003A
	STATUS_SHARING_VIOLATION      NtStatus = 0xC0000043
	STATUS_DELETE_PENDING         NtStatus = 0xC0000056
	STATUS_DISK_FULL              NtStatus = 0xC000007F
	STATUS_INSUFFICIENT_RESOURCES NtStatus = 0xC000009A
	STATUS_MEDIA_WRITE_PROTECTED  NtStatus = 0xC00000A2
	STATUS_FILE_IS_A_DIRECTORY    NtStatus = 0xC00000BA
	STATUS_NOT_SUPPORTED          NtStatus = 0xC00000BB
	STATUS_IO_DEVICE_ERROR        NtStatus = 0xC0000185
	STATUS_DIRECTORY_NOT_EMPTY    NtStatus = 0xC0000101
	STATUS_NOT_A_DIRECTORY        NtStatus = 0xC0000103
	STATUS_NAME_TOO_LONG          NtStatus = 0xC0000106
	STATUS_CANNOT_DELETE          NtStatus = 0xC0000121
	STATUS_FILE_CLOSED            NtStatus = 0xC0000128
	STATUS_CANCELLED              NtStatus = 0xC0000120
	STATUS_TOO_MANY_OPENED_FILES  NtStatus = 0xC000011F
	STATUS_NOT_SAME_DEVICE        NtStatus = 0xC00000D4
	STATUS_FILE_INVALID           NtStatus = 0xC0000098
	STATUS_OBJECT_NAME_EXISTS     NtStatus = 0x40000000
	STATUS_NOT_FOUND              NtStatus = 0xC0000225
	STATUS_STOPPED_ON_SYMLINK     NtStatus = 0x8000002D
	STATUS_VOLUME_DISMOUNTED      NtStatus = 0xC000026E
	STATUS_INVALID_DEVICE_REQUEST NtStatus = 0xC0000010
	STATUS_BUFFER_OVERFLOW        NtStatus = 0x80000005
	STATUS_EA_TOO_LARGE           NtStatus = 0xC0000050
	STATUS_RANGE_NOT_LOCKED       NtStatus = 0xC000007E
	STATUS_DEVICE_BUSY            NtStatus = 0x80000011
	STATUS_NOT_SAME_OBJECT        NtStatus = 0xC01C0028
	STATUS_INTERNAL_ERROR         NtStatus = 0xC00000E5
	STATUS_INVALID_INFO_CLASS     NtStatus = 0xC0000003
	STATUS_OPEN_FAILED            NtStatus = 0xC0000136
	STATUS_BAD_NETWORK_NAME       NtStatus = 0xC00000CC
	STATUS_NETWORK_NAME_DELETED   NtStatus = 0xC00000C9
	STATUS_LOCK_NOT_GRANTED       NtStatus = 0xC0000055
	STATUS_FILE_LOCK_CONFLICT     NtStatus = 0xC0000054
	STATUS_PRIVILEGE_NOT_HELD     NtStatus = 0xC0000061
	STATUS_INVALID_DEVICE_STATE   NtStatus = 0xC0000184
	STATUS_TIMEOUT                NtStatus = 0x00000102
	STATUS_OBJECT_TYPE_MISMATCH   NtStatus = 0xC0000024
)

var statusNames = map[NtStatus]string{
	STATUS_SUCCESS:                "STATUS_SUCCESS",
	STATUS_PENDING:                "STATUS_PENDING",
	STATUS_NO_MORE_FILES:          "STATUS_NO_MORE_FILES",
	STATUS_UNSUCCESSFUL:           "STATUS_UNSUCCESSFUL",
	STATUS_NOT_IMPLEMENTED:        "STATUS_NOT_IMPLEMENTED",
	STATUS_INVALID_HANDLE:         "STATUS_INVALID_HANDLE",
	STATUS_INVALID_PARAMETER:      "STATUS_INVALID_PARAMETER",
	STATUS_NO_SUCH_FILE:           "STATUS_NO_SUCH_FILE",
	STATUS_END_OF_FILE:            "STATUS_END_OF_FILE",
	STATUS_ACCESS_DENIED:          "STATUS_ACCESS_DENIED",
	STATUS_OBJECT_NAME_INVALID:    "STATUS_OBJECT_NAME_INVALID",
	STATUS_OBJECT_NAME_NOT_FOUND:  "STATUS_OBJECT_NAME_NOT_FOUND",
	STATUS_OBJECT_NAME_COLLISION:  "STATUS_OBJECT_NAME_COLLISION",
	STATUS_OBJECT_PATH_NOT_FOUND:  "STATUS_OBJECT_PATH_NOT_FOUND",
	STATUS_SHARING_VIOLATION:      "STATUS_SHARING_VIOLATION",
	STATUS_DELETE_PENDING:         "STATUS_DELETE_PENDING",
	STATUS_DISK_FULL:              "STATUS_DISK_FULL",
	STATUS_INSUFFICIENT_RESOURCES: "STATUS_INSUFFICIENT_RESOURCES",
	STATUS_MEDIA_WRITE_PROTECTED:  "STATUS_MEDIA_WRITE_PROTECTED",
	STATUS_FILE_IS_A_DIRECTORY:    "STATUS_FILE_IS_A_DIRECTORY",
	STATUS_NOT_SUPPORTED:          "STATUS_NOT_SUPPORTED",
	STATUS_IO_DEVICE_ERROR:        "STATUS_IO_DEVICE_ERROR",
	STATUS_DIRECTORY_NOT_EMPTY:    "STATUS_DIRECTORY_NOT_EMPTY",
	STATUS_NOT_A_DIRECTORY:        "STATUS_NOT_A_DIRECTORY",
	STATUS_NAME_TOO_LONG:          "STATUS_NAME_TOO_LONG",
	STATUS_CANNOT_DELETE:          "STATUS_CANNOT_DELETE",
	STATUS_FILE_CLOSED:            "STATUS_FILE_CLOSED",
	STATUS_CANCELLED:              "STATUS_CANCELLED",
	STATUS_TOO_MANY_OPENED_FILES:  "STATUS_TOO_MANY_OPENED_FILES",
	STATUS_NOT_SAME_DEVICE:        "STATUS_NOT_SAME_DEVICE",
	STATUS_FILE_INVALID:           "STATUS_FILE_INVALID",
	STATUS_OBJECT_NAME_EXISTS:     "STATUS_OBJECT_NAME_EXISTS",
	STATUS_NOT_FOUND:              "STATUS_NOT_FOUND",
	STATUS_STOPPED_ON_SYMLINK:     "STATUS_STOPPED_ON_SYMLINK",
	STATUS_VOLUME_DISMOUNTED:      "STATUS_VOLUME_DISMOUNTED",
	STATUS_INVALID_DEVICE_REQUEST: "STATUS_INVALID_DEVICE_REQUEST",
	STATUS_BUFFER_OVERFLOW:        "STATUS_BUFFER_OVERFLOW",
	STATUS_EA_TOO_LARGE:           "STATUS_EA_TOO_LARGE",
	STATUS_RANGE_NOT_LOCKED:       "STATUS_RANGE_NOT_LOCKED",
	STATUS_DEVICE_BUSY:            "STATUS_DEVICE_BUSY",
	STATUS_NOT_SAME_OBJECT:        "STATUS_NOT_SAME_OBJECT",
	STATUS_INTERNAL_ERROR:         "STATUS_INTERNAL_ERROR",
	STATUS_INVALID_INFO_CLASS:     "STATUS_INVALID_INFO_CLASS",
	STATUS_OPEN_FAILED:            "STATUS_OPEN_FAILED",
	STATUS_BAD_NETWORK_NAME:       "STATUS_BAD_NETWORK_NAME",
	STATUS_NETWORK_NAME_DELETED:   "STATUS_NETWORK_NAME_DELETED",
	STATUS_LOCK_NOT_GRANTED:       "STATUS_LOCK_NOT_GRANTED",
	STATUS_FILE_LOCK_CONFLICT:     "STATUS_FILE_LOCK_CONFLICT",
	STATUS_PRIVILEGE_NOT_HELD:     "STATUS_PRIVILEGE_NOT_HELD",
	STATUS_INVALID_DEVICE_STATE:   "STATUS_INVALID_DEVICE_STATE",
	STATUS_TIMEOUT:                "STATUS_TIMEOUT",
	STATUS_OBJECT_TYPE_MISMATCH:   "STATUS_OBJECT_TYPE_MISMATCH",
}

func (s NtStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NTSTATUS(0x%08x)", uint32(s))
}

// Error makes NtStatus usable as an error value.
func (s NtStatus) Error() string {
	return s.String()
}

// IsError reports whether s has error severity.
func (s NtStatus) IsError() bool {
	return uint32(s)>>30 == 3
}
