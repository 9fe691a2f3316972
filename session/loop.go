package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const DEFAULT_POLL = 250 * time.Millisecond

// Loop is the session's main control loop. It polls the handle's
// termination flag and runs the drain once an exit was requested.
type Loop struct {
	Handle *Handle

	// Poll bounds how long a missed wakeup can delay shutdown.
	Poll time.Duration

	// DrainTimeout limits the drain; zero waits for in-flight work forever.
	DrainTimeout time.Duration
}

// Run blocks until the session is asked to exit, either through the handle
// or by cancelling ctx, then calls drain and marks the session terminated.
func (l *Loop) Run(ctx context.Context, drain func(context.Context) error) error {
	poll := l.Poll
	if poll <= 0 {
		poll = DEFAULT_POLL
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	done := ctx.Done()
	for l.Handle.State() == StateRunning {
		select {
		case <-l.Handle.Wake():
		case <-ticker.C:
		case <-done:
			l.Handle.RequestExit()
			done = nil
		}
	}

	log.Infof("%v: shutting down", l.Handle)

	var err error
	if drain != nil {
		dctx := context.Background()
		if l.DrainTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, l.DrainTimeout)
			defer cancel()
		}
		if err = drain(dctx); err != nil {
			log.Errorf("%v: drain: %v", l.Handle, err)
		}
	}

	l.Handle.markTerminated()
	log.Infof("%v", l.Handle)
	return err
}
