package server

import (
	"context"
	"sync"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	log "github.com/sirupsen/logrus"
)

type job struct {
	ctx  context.Context
	req  Request
	done chan *Response
}

// Dispatcher runs requests against a Volume on a fixed pool of workers.
type Dispatcher struct {
	v     *Volume
	queue chan *job

	lock     sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher starts workers goroutines; fewer than one means one.
func NewDispatcher(v *Volume, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		v:     v,
		queue: make(chan *job, workers),
	}
	d.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	log.Debugf("dispatcher: %d workers", workers)
	return d
}

func (d *Dispatcher) Volume() *Volume {
	return d.v
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for j := range d.queue {
		j.done <- d.v.Handle(j.ctx, j.req)
	}
}

// Submit runs req and waits for its response. After Shutdown it fails
// with ESHUTDOWN. A request that was queued always runs to completion;
// ctx only bounds the wait for a free queue slot.
func (d *Dispatcher) Submit(ctx context.Context, req Request) *Response {
	d.lock.RLock()
	if d.closed {
		d.lock.RUnlock()
		return errorResponse(NewOpError("submit", "", STATUS_VOLUME_DISMOUNTED))
	}
	d.inflight.Add(1)
	d.lock.RUnlock()
	defer d.inflight.Done()

	j := &job{ctx: ctx, req: req, done: make(chan *Response, 1)}
	select {
	case d.queue <- j:
	case <-ctx.Done():
		return errorResponse(WrapError("submit", "", ctx.Err()))
	}
	return <-j.done
}

// Shutdown stops accepting requests and waits for the ones in flight.
// When ctx expires first the workers are left running and ctx's error is
// returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.lock.Lock()
	d.closed = true
	d.lock.Unlock()

	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.stopOnce.Do(func() { close(d.queue) })
	d.workers.Wait()
	return nil
}
