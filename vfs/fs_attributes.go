package vfs

// FSAttributesMask records which fields of FSAttributes are present.
type FSAttributesMask uint32

const (
	AttributesMaskBlockSize FSAttributesMask = 1 << iota
	AttributesMaskBlocks
	AttributesMaskFreeBlocks
	AttributesMaskAvailableBlocks
	AttributesMaskFileNodes
	AttributesMaskFreeFileNodes
	AttributesMaskNameMax
)

const DefaultNameMax = 255

// FSAttributes is the statfs view of a volume. Block counts are in units
// of the block size.
type FSAttributes struct {
	present FSAttributesMask

	bsize   uint64
	blocks  uint64
	bfree   uint64
	bavail  uint64 // free blocks for unprivileged users
	files   uint64
	ffree   uint64
	nameMax uint64
}

func (a *FSAttributes) set(mask FSAttributesMask) *FSAttributes {
	a.present |= mask
	return a
}

func (a *FSAttributes) Has(mask FSAttributesMask) bool {
	return a.present&mask == mask
}

func (a *FSAttributes) GetBlockSize() (uint64, bool) {
	return a.bsize, a.Has(AttributesMaskBlockSize)
}

func (a *FSAttributes) SetBlockSize(bsize uint64) *FSAttributes {
	a.bsize = bsize
	return a.set(AttributesMaskBlockSize)
}

func (a *FSAttributes) GetBlocks() (uint64, bool) {
	return a.blocks, a.Has(AttributesMaskBlocks)
}

func (a *FSAttributes) SetBlocks(blocks uint64) *FSAttributes {
	a.blocks = blocks
	return a.set(AttributesMaskBlocks)
}

func (a *FSAttributes) GetFreeBlocks() (uint64, bool) {
	return a.bfree, a.Has(AttributesMaskFreeBlocks)
}

func (a *FSAttributes) SetFreeBlocks(freeBlocks uint64) *FSAttributes {
	a.bfree = freeBlocks
	return a.set(AttributesMaskFreeBlocks)
}

func (a *FSAttributes) GetAvailableBlocks() (uint64, bool) {
	return a.bavail, a.Has(AttributesMaskAvailableBlocks)
}

func (a *FSAttributes) SetAvailableBlocks(availBlocks uint64) *FSAttributes {
	a.bavail = availBlocks
	return a.set(AttributesMaskAvailableBlocks)
}

func (a *FSAttributes) GetFiles() (uint64, bool) {
	return a.files, a.Has(AttributesMaskFileNodes)
}

func (a *FSAttributes) SetFiles(files uint64) *FSAttributes {
	a.files = files
	return a.set(AttributesMaskFileNodes)
}

func (a *FSAttributes) GetFreeFiles() (uint64, bool) {
	return a.ffree, a.Has(AttributesMaskFreeFileNodes)
}

func (a *FSAttributes) SetFreeFiles(freeFiles uint64) *FSAttributes {
	a.ffree = freeFiles
	return a.set(AttributesMaskFreeFileNodes)
}

// GetNameMax returns the longest file name component, DefaultNameMax
// when unknown.
func (a *FSAttributes) GetNameMax() (uint64, bool) {
	if !a.Has(AttributesMaskNameMax) || a.nameMax == 0 {
		return DefaultNameMax, false
	}
	return a.nameMax, true
}

func (a *FSAttributes) SetNameMax(nameMax uint64) *FSAttributes {
	a.nameMax = nameMax
	return a.set(AttributesMaskNameMax)
}

// TotalBytes and FreeBytes scale block counts by the block size. A
// missing block size counts as 512.
func (a *FSAttributes) TotalBytes() uint64 {
	return a.blocks * a.blockSizeOr512()
}

func (a *FSAttributes) FreeBytes() uint64 {
	return a.bavail * a.blockSizeOr512()
}

func (a *FSAttributes) blockSizeOr512() uint64 {
	if bsize, ok := a.GetBlockSize(); ok && bsize != 0 {
		return bsize
	}
	return 512
}
