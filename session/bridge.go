package session

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRegistered = errors.New("shutdown bridge already registered")
	ErrNotRegistered     = errors.New("session is not the registered shutdown target")
)

// ShutdownSignals request a graceful shutdown of the registered session.
var ShutdownSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}

type bridge struct {
	handle  *Handle
	sigs    chan os.Signal
	stop    chan struct{}
	stopped chan struct{}
}

var (
	// slot holds the one bridge allowed to receive termination signals.
	slot atomic.Pointer[bridge]
	// slotLock serializes install and remove; the signal path never takes it.
	slotLock sync.Mutex
)

// InstallShutdownBridge makes h the target of termination signals and
// ignores SIGPIPE. It fails if another session is registered.
func InstallShutdownBridge(h *Handle) error {
	slotLock.Lock()
	defer slotLock.Unlock()

	b := &bridge{
		handle:  h,
		sigs:    make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if !slot.CompareAndSwap(nil, b) {
		cur := slot.Load()
		return fmt.Errorf("%w: session %016x", ErrAlreadyRegistered, cur.handle.ID())
	}

	signal.Ignore(syscall.SIGPIPE)
	signal.Notify(b.sigs, ShutdownSignals...)
	go b.run()

	log.Debugf("shutdown bridge installed for %v", h)
	return nil
}

// run forwards delivered signals to the handle. It does nothing else.
func (b *bridge) run() {
	defer close(b.stopped)
	for {
		select {
		case <-b.sigs:
			b.handle.RequestExit()
		case <-b.stop:
			return
		}
	}
}

// RemoveShutdownBridge deregisters h. It fails with ErrNotRegistered when h
// is not the registered session; callers log that and carry on.
func RemoveShutdownBridge(h *Handle) error {
	slotLock.Lock()
	defer slotLock.Unlock()

	b := slot.Load()
	if b == nil || b.handle != h {
		return ErrNotRegistered
	}

	signal.Stop(b.sigs)
	close(b.stop)
	<-b.stopped
	signal.Reset(syscall.SIGPIPE)

	if !slot.CompareAndSwap(b, nil) {
		log.Panicf("shutdown bridge slot changed underneath %v", h)
	}

	log.Debugf("shutdown bridge removed for %v", h)
	return nil
}

// Registered returns the session currently receiving termination signals.
func Registered() *Handle {
	if b := slot.Load(); b != nil {
		return b.handle
	}
	return nil
}
