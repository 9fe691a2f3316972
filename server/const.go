package server

// Access mask
const (
	FILE_READ_DATA        uint32 = 0x00000001
	FILE_LIST_DIRECTORY   uint32 = 0x00000001
	FILE_WRITE_DATA       uint32 = 0x00000002
	FILE_ADD_FILE         uint32 = 0x00000002
	FILE_APPEND_DATA      uint32 = 0x00000004
	FILE_READ_EA          uint32 = 0x00000008
	FILE_WRITE_EA         uint32 = 0x00000010
	FILE_EXECUTE          uint32 = 0x00000020
	FILE_DELETE_CHILD     uint32 = 0x00000040
	FILE_READ_ATTRIBUTES  uint32 = 0x00000080
	FILE_WRITE_ATTRIBUTES uint32 = 0x00000100
	DELETE                uint32 = 0x00010000
	READ_CONTROL          uint32 = 0x00020000
	WRITE_DAC             uint32 = 0x00040000
	WRITE_OWNER           uint32 = 0x00080000
	SYNCHRONIZE           uint32 = 0x00100000
	MAXIMUM_ALLOWED       uint32 = 0x02000000
	GENERIC_ALL           uint32 = 0x10000000
	GENERIC_EXECUTE       uint32 = 0x20000000
	GENERIC_WRITE         uint32 = 0x40000000
	GENERIC_READ          uint32 = 0x80000000

	FILE_ALL_ACCESS uint32 = 0x001f01ff
)

// Share access
const (
	FILE_SHARE_READ   uint32 = 0x00000001
	FILE_SHARE_WRITE  uint32 = 0x00000002
	FILE_SHARE_DELETE uint32 = 0x00000004

	FILE_SHARE_ALL = FILE_SHARE_READ | FILE_SHARE_WRITE | FILE_SHARE_DELETE
)

// Create disposition
const (
	FILE_SUPERSEDE    uint32 = 0x00000000
	FILE_OPEN         uint32 = 0x00000001
	FILE_CREATE       uint32 = 0x00000002
	FILE_OPEN_IF      uint32 = 0x00000003
	FILE_OVERWRITE    uint32 = 0x00000004
	FILE_OVERWRITE_IF uint32 = 0x00000005
)

// Create options
const (
	FILE_DIRECTORY_FILE     uint32 = 0x00000001
	FILE_NON_DIRECTORY_FILE uint32 = 0x00000040
	FILE_DELETE_ON_CLOSE    uint32 = 0x00001000
)

// Create action
const (
	FILE_SUPERSEDED  uint32 = 0x00000000
	FILE_OPENED      uint32 = 0x00000001
	FILE_CREATED     uint32 = 0x00000002
	FILE_OVERWRITTEN uint32 = 0x00000003
)

const (
	accessRead   = FILE_READ_DATA | FILE_EXECUTE
	accessWrite  = FILE_WRITE_DATA | FILE_APPEND_DATA
	accessDelete = DELETE
)
