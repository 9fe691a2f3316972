package server

import (
	"path"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
)

// streamState is the share and delete state of one stream identity. All
// fields are guarded by the owning fileEntry's mutex.
type streamState struct {
	handles map[*Open]struct{}

	// share accounting, participating opens only
	opens        int
	readers      int
	writers      int
	deleters     int
	sharedRead   int
	sharedWrite  int
	sharedDelete int

	deletePending bool
}

func newStreamState() *streamState {
	return &streamState{handles: make(map[*Open]struct{})}
}

// participates reports whether an open with the granted access takes part
// in share accounting. Attribute-only opens never conflict.
func participates(access uint32) bool {
	return access&(accessRead|accessWrite|accessDelete) != 0
}

// admits checks a new open against every open already registered on the
// stream, in both directions.
func (s *streamState) admits(access, share uint32) bool {
	if !participates(access) {
		return true
	}
	if access&accessRead != 0 && s.sharedRead < s.opens {
		return false
	}
	if access&accessWrite != 0 && s.sharedWrite < s.opens {
		return false
	}
	if access&accessDelete != 0 && s.sharedDelete < s.opens {
		return false
	}
	if s.readers > 0 && share&FILE_SHARE_READ == 0 {
		return false
	}
	if s.writers > 0 && share&FILE_SHARE_WRITE == 0 {
		return false
	}
	if s.deleters > 0 && share&FILE_SHARE_DELETE == 0 {
		return false
	}
	return true
}

func (s *streamState) count(access, share uint32, delta int) {
	if !participates(access) {
		return
	}
	s.opens += delta
	if access&accessRead != 0 {
		s.readers += delta
	}
	if access&accessWrite != 0 {
		s.writers += delta
	}
	if access&accessDelete != 0 {
		s.deleters += delta
	}
	if share&FILE_SHARE_READ != 0 {
		s.sharedRead += delta
	}
	if share&FILE_SHARE_WRITE != 0 {
		s.sharedWrite += delta
	}
	if share&FILE_SHARE_DELETE != 0 {
		s.sharedDelete += delta
	}
}

// fileEntry holds the state of every stream of one file. mu is held
// across admission check and registration, and across delete checks and
// marking.
type fileEntry struct {
	mu sync.Mutex

	// path changes only with both the table mutex and mu held.
	path string
	// refs counts opens plus callers between acquire and release. Guarded
	// by the table mutex.
	refs int

	streams map[string]*streamState
	handles int
}

func (e *fileEntry) stream(name string) *streamState {
	s, ok := e.streams[name]
	if !ok {
		s = newStreamState()
		e.streams[name] = s
	}
	return s
}

// filePending reports whether the default stream is marked for deletion,
// which takes every stream of the file with it.
func (e *fileEntry) filePending() bool {
	s, ok := e.streams[""]
	return ok && s.deletePending
}

func (e *fileEntry) deletePending(stream string) bool {
	if e.filePending() {
		return true
	}
	s, ok := e.streams[stream]
	return ok && s.deletePending
}

func (e *fileEntry) register(o *Open) {
	s := e.stream(o.stream)
	s.handles[o] = struct{}{}
	s.count(o.access, o.share, 1)
	e.handles++
}

// unregister drops o and returns the stream's state for last-close
// processing.
func (e *fileEntry) unregister(o *Open) *streamState {
	s := e.stream(o.stream)
	if _, ok := s.handles[o]; !ok {
		return s
	}
	delete(s.handles, o)
	s.count(o.access, o.share, -1)
	e.handles--
	return s
}

func (e *fileEntry) forget(stream string) {
	if s, ok := e.streams[stream]; ok && len(s.handles) == 0 {
		delete(e.streams, stream)
	}
}

func (e *fileEntry) opens() []*Open {
	var out []*Open
	for _, s := range e.streams {
		out = append(out, maps.Keys(s.handles)...)
	}
	return out
}

type shareTable struct {
	mu    sync.Mutex
	files map[string]*fileEntry
}

func newShareTable() *shareTable {
	return &shareTable{files: make(map[string]*fileEntry)}
}

// acquire returns the locked entry for path, creating it if needed.
func (t *shareTable) acquire(path string) *fileEntry {
	for {
		t.mu.Lock()
		e, ok := t.files[path]
		if !ok {
			e = &fileEntry{path: path, streams: make(map[string]*streamState)}
			t.files[path] = e
		}
		e.refs++
		t.mu.Unlock()

		e.mu.Lock()
		if e.path == path {
			return e
		}
		// renamed while we waited
		t.release(e)
	}
}

// release unlocks e and drops one reference.
func (t *shareTable) release(e *fileEntry) {
	e.mu.Unlock()

	t.mu.Lock()
	e.refs--
	if e.refs == 0 && t.files[e.path] == e {
		delete(t.files, e.path)
	}
	t.mu.Unlock()
}

// rekey moves e to a new path, orphaning the entry displaced from it.
// The caller holds both entries locked.
func (t *shareTable) rekey(e *fileEntry, to string, displaced *fileEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.files[e.path] == e {
		delete(t.files, e.path)
	}
	if displaced != nil && displaced != e {
		displaced.path = ""
	}
	e.path = to
	t.files[to] = e
}

// busyBelow reports whether any path under dir is referenced.
func (t *shareTable) busyBelow(dir string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := strings.TrimSuffix(dir, "/") + "/"
	for p, e := range t.files {
		if strings.HasPrefix(p, prefix) && e.refs > 0 {
			return true
		}
	}
	return false
}

// pendingAbove reports whether a directory containing p is marked for
// deletion. Entries are only peeked at, so the answer may be stale by the
// time the caller acts on it.
func (t *shareTable) pendingAbove(p string) bool {
	t.mu.Lock()
	var parents []*fileEntry
	for dir := parentPath(p); ; dir = parentPath(dir) {
		if e, ok := t.files[dir]; ok {
			e.refs++
			parents = append(parents, e)
		}
		if dir == "/" {
			break
		}
	}
	t.mu.Unlock()

	pending := false
	for _, e := range parents {
		e.mu.Lock()
		if !pending && e.filePending() {
			pending = true
		}
		t.release(e)
	}
	return pending
}

func parentPath(p string) string {
	return path.Dir(p)
}

func (t *shareTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
