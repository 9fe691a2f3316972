package session

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStateMachine(t *testing.T) {
	h := NewHandle()
	assert.Equal(t, StateRunning, h.State())

	assert.True(t, h.RequestExit())
	assert.Equal(t, StateExitRequested, h.State())
	assert.False(t, h.RequestExit())

	select {
	case <-h.Wake():
	default:
		t.Fatal("RequestExit did not wake the loop")
	}

	assert.True(t, h.markTerminated())
	assert.Equal(t, StateTerminated, h.State())
	assert.False(t, h.markTerminated())
	assert.False(t, h.RequestExit())
	assert.Equal(t, StateTerminated, h.State())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after termination")
	}
}

func TestHandleIDs(t *testing.T) {
	assert.NotEqual(t, NewHandle().ID(), NewHandle().ID())
}

func TestBridgeSingleRegistration(t *testing.T) {
	h1 := NewHandle()
	h2 := NewHandle()

	require.NoError(t, InstallShutdownBridge(h1))
	defer RemoveShutdownBridge(h1)

	err := InstallShutdownBridge(h2)
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
	assert.Same(t, h1, Registered())

	assert.True(t, errors.Is(RemoveShutdownBridge(h2), ErrNotRegistered))
	assert.Same(t, h1, Registered())

	require.NoError(t, RemoveShutdownBridge(h1))
	assert.Nil(t, Registered())
	assert.True(t, errors.Is(RemoveShutdownBridge(h1), ErrNotRegistered))

	require.NoError(t, InstallShutdownBridge(h2))
	require.NoError(t, RemoveShutdownBridge(h2))
}

func TestBridgeSignalRequestsExit(t *testing.T) {
	h := NewHandle()
	require.NoError(t, InstallShutdownBridge(h))
	defer RemoveShutdownBridge(h)

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGHUP))

	select {
	case <-h.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("signal was not delivered to the session")
	}
	assert.Equal(t, StateExitRequested, h.State())
}

func TestBridgeIgnoresSigpipe(t *testing.T) {
	h := NewHandle()
	require.NoError(t, InstallShutdownBridge(h))
	defer RemoveShutdownBridge(h)

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGPIPE))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateRunning, h.State())
}

func TestLoopDrainsAfterExitRequest(t *testing.T) {
	h := NewHandle()
	l := &Loop{Handle: h, Poll: 10 * time.Millisecond}

	drained := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- l.Run(context.Background(), func(ctx context.Context) error {
			assert.Equal(t, StateExitRequested, h.State())
			close(drained)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateRunning, h.State())

	h.RequestExit()
	require.NoError(t, <-errc)
	<-drained
	assert.Equal(t, StateTerminated, h.State())
}

func TestLoopContextCancel(t *testing.T) {
	h := NewHandle()
	l := &Loop{Handle: h, Poll: time.Hour, DrainTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	drainErr := errors.New("drain failed")
	err := l.Run(ctx, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return drainErr
	})
	assert.Same(t, drainErr, err)
	assert.Equal(t, StateTerminated, h.State())
}

func TestForegroundStaysAttached(t *testing.T) {
	assert.NoError(t, EnterForegroundOrBackground(true))
}
