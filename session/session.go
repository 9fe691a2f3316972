package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// State is the termination state of a session.
type State int32

const (
	StateRunning State = iota
	StateExitRequested
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExitRequested:
		return "exit-requested"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Handle represents one running filesystem session. The termination state
// only moves forward: running, exit requested, terminated.
type Handle struct {
	id    uint64
	state atomic.Int32
	wake  chan struct{}
	done  chan struct{}
}

func NewHandle() *Handle {
	return &Handle{
		id:   randint64(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func randint64() uint64 {
	var b [8]byte
	rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (h *Handle) ID() uint64 {
	return h.id
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// RequestExit moves a running session to StateExitRequested and wakes the
// control loop. It only touches atomics and a buffered channel, so the
// signal bridge may call it.
func (h *Handle) RequestExit() bool {
	if !h.state.CompareAndSwap(int32(StateRunning), int32(StateExitRequested)) {
		return false
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

// markTerminated is called by the control loop once in-flight work drained.
func (h *Handle) markTerminated() bool {
	for {
		cur := h.state.Load()
		if State(cur) == StateTerminated {
			return false
		}
		if h.state.CompareAndSwap(cur, int32(StateTerminated)) {
			close(h.done)
			return true
		}
	}
}

// Wake fires after RequestExit succeeded.
func (h *Handle) Wake() <-chan struct{} {
	return h.wake
}

// Done is closed once the session is terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) String() string {
	return fmt.Sprintf("session %016x (%s)", h.id, h.State())
}
