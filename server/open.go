package server

import (
	"sync"

	"github.com/macos-fuse-t/fusent/vfs"
)

// Open is one handle returned by Volume.Create. It stays valid until
// Volume.Close.
type Open struct {
	id     uint64
	entry  *fileEntry
	stream string
	handle vfs.VfsHandle
	isDir  bool

	access        uint32
	share         uint32
	createOptions uint32
	action        uint32

	// guarded by entry.mu
	path          string
	deleteOnClose bool

	mu          sync.Mutex
	dirDone     bool
	streamsDone bool
	notify      chan *vfs.NotifyEvent
}

func (o *Open) ID() uint64 {
	return o.id
}

// Identity returns the stream identity the open currently refers to.
func (o *Open) Identity() vfs.StreamIdentity {
	o.entry.mu.Lock()
	defer o.entry.mu.Unlock()
	return o.identityLocked()
}

func (o *Open) identityLocked() vfs.StreamIdentity {
	return vfs.StreamIdentity{Path: o.path, Stream: o.stream}
}

// Action is the FILE_CREATED style outcome of the create.
func (o *Open) Action() uint32 {
	return o.action
}

func (o *Open) IsDir() bool {
	return o.isDir
}

func (o *Open) GrantedAccess() uint32 {
	return o.access
}

func (o *Open) ShareAccess() uint32 {
	return o.share
}

func (o *Open) has(access uint32) bool {
	return o.access&access != 0
}
