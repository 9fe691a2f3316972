package vfs

import (
	"time"
)

// AttributesMask records which fields of Attributes are present.
type AttributesMask uint32

const (
	AttributesMaskFileType AttributesMask = 1 << iota
	AttributesMaskInodeNumber
	AttributesMaskLastDataModificationTime
	AttributesMaskAccessTime
	AttributesMaskLastStatusChangeTime
	AttributesMaskBirthTime
	AttributesMaskLinkCount
	AttributesMaskPermissions
	AttributesMaskSizeBytes
	AttributesMaskDiskSizeBytes
	AttributesMaskUnixMode
	AttributesMaskFlags
)

// Host file flags (BSD st_flags) that carry native attribute meaning.
const (
	FlagImmutable uint32 = 0x00000002
	FlagHidden    uint32 = 0x00008000
)

// Attributes of a file as reported or accepted by a VFSFileSystem. Only
// the fields named in the mask are meaningful; setters chain.
type Attributes struct {
	present AttributesMask

	fileType    FileType
	inodeNumber uint64
	mTime       time.Time
	aTime       time.Time
	cTime       time.Time
	bTime       time.Time
	linkCount   uint32
	permissions Permissions
	sizeBytes   uint64
	diskSize    uint64
	unixMode    uint32
	flags       uint32
}

func (a *Attributes) set(mask AttributesMask) *Attributes {
	a.present |= mask
	return a
}

// Has reports whether every field in mask is present.
func (a *Attributes) Has(mask AttributesMask) bool {
	return a.present&mask == mask
}

// GetFileType panics when the type is missing; every GetAttr, Lookup and
// ReadDir result must carry one.
func (a *Attributes) GetFileType() FileType {
	if !a.Has(AttributesMaskFileType) {
		panic("vfs: attributes without a file type")
	}
	return a.fileType
}

func (a *Attributes) SetFileType(fileType FileType) *Attributes {
	a.fileType = fileType
	return a.set(AttributesMaskFileType)
}

func (a *Attributes) IsDir() bool {
	return a.Has(AttributesMaskFileType) && a.fileType == FileTypeDirectory
}

func (a *Attributes) GetInodeNumber() (uint64, bool) {
	return a.inodeNumber, a.Has(AttributesMaskInodeNumber)
}

func (a *Attributes) SetInodeNumber(inodeNumber uint64) *Attributes {
	a.inodeNumber = inodeNumber
	return a.set(AttributesMaskInodeNumber)
}

func (a *Attributes) GetLastDataModificationTime() (time.Time, bool) {
	return a.mTime, a.Has(AttributesMaskLastDataModificationTime)
}

func (a *Attributes) SetLastDataModificationTime(mTime time.Time) *Attributes {
	a.mTime = mTime
	return a.set(AttributesMaskLastDataModificationTime)
}

func (a *Attributes) GetLastStatusChangeTime() (time.Time, bool) {
	return a.cTime, a.Has(AttributesMaskLastStatusChangeTime)
}

func (a *Attributes) SetLastStatusChangeTime(cTime time.Time) *Attributes {
	a.cTime = cTime
	return a.set(AttributesMaskLastStatusChangeTime)
}

func (a *Attributes) GetAccessTime() (time.Time, bool) {
	return a.aTime, a.Has(AttributesMaskAccessTime)
}

func (a *Attributes) SetAccessTime(aTime time.Time) *Attributes {
	a.aTime = aTime
	return a.set(AttributesMaskAccessTime)
}

// GetBirthTime is absent on hosts whose stat has no creation time.
func (a *Attributes) GetBirthTime() (time.Time, bool) {
	return a.bTime, a.Has(AttributesMaskBirthTime)
}

func (a *Attributes) SetBirthTime(bTime time.Time) *Attributes {
	a.bTime = bTime
	return a.set(AttributesMaskBirthTime)
}

func (a *Attributes) GetLinkCount() (uint32, bool) {
	return a.linkCount, a.Has(AttributesMaskLinkCount)
}

func (a *Attributes) SetLinkCount(linkCount uint32) *Attributes {
	a.linkCount = linkCount
	return a.set(AttributesMaskLinkCount)
}

func (a *Attributes) GetPermissions() (Permissions, bool) {
	return a.permissions, a.Has(AttributesMaskPermissions)
}

func (a *Attributes) SetPermissions(permissions Permissions) *Attributes {
	a.permissions = permissions
	return a.set(AttributesMaskPermissions)
}

// GetUnixMode returns the permission bits of st_mode.
func (a *Attributes) GetUnixMode() (uint32, bool) {
	return a.unixMode, a.Has(AttributesMaskUnixMode)
}

func (a *Attributes) SetUnixMode(mode uint32) *Attributes {
	a.unixMode = mode & 0777
	return a.set(AttributesMaskUnixMode)
}

func (a *Attributes) GetSizeBytes() (uint64, bool) {
	return a.sizeBytes, a.Has(AttributesMaskSizeBytes)
}

func (a *Attributes) SetSizeBytes(sizeBytes uint64) *Attributes {
	a.sizeBytes = sizeBytes
	return a.set(AttributesMaskSizeBytes)
}

// GetDiskSizeBytes falls back to the logical size when the allocation
// size is unknown.
func (a *Attributes) GetDiskSizeBytes() (uint64, bool) {
	if !a.Has(AttributesMaskDiskSizeBytes) {
		return a.sizeBytes, false
	}
	return a.diskSize, true
}

func (a *Attributes) SetDiskSizeBytes(sizeBytes uint64) *Attributes {
	a.diskSize = sizeBytes
	return a.set(AttributesMaskDiskSizeBytes)
}

// GetFlags returns the host file flags (FlagHidden, FlagImmutable, ...).
func (a *Attributes) GetFlags() (uint32, bool) {
	return a.flags, a.Has(AttributesMaskFlags)
}

func (a *Attributes) SetFlags(flags uint32) *Attributes {
	a.flags = flags
	return a.set(AttributesMaskFlags)
}
