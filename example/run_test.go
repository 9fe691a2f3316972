package example

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/macos-fuse-t/fusent/config"
	"github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/mount"
	"github.com/macos-fuse-t/fusent/server"
	"github.com/macos-fuse-t/fusent/vfs/memfs"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost stands in for the kernel: Start runs a few requests through
// the dispatcher and leaves one file open.
type fakeHost struct {
	d       *server.Dispatcher
	opts    mount.Options
	started chan struct{}
	startFn func() error

	unmounted bool
}

func (h *fakeHost) Start(ctx context.Context) error {
	if h.startFn != nil {
		if err := h.startFn(); err != nil {
			return err
		}
	}
	rsp := h.d.Submit(ctx, server.CreateRequest{
		Path:              "/held",
		DesiredAccess:     server.GENERIC_READ | server.GENERIC_WRITE,
		ShareAccess:       server.FILE_SHARE_READ,
		CreateDisposition: server.FILE_CREATE,
	})
	if rsp.Err != nil {
		return rsp.Err
	}
	close(h.started)
	return nil
}

func (h *fakeHost) Unmount() error {
	h.unmounted = true
	return nil
}

func useFakeHost(t *testing.T, startFn func() error) *fakeHost {
	h := &fakeHost{started: make(chan struct{}), startFn: startFn}
	old := NewHost
	NewHost = func(d *server.Dispatcher, opts mount.Options) (mount.Host, error) {
		h.d = d
		h.opts = opts
		return h, nil
	}
	t.Cleanup(func() { NewHost = old })
	return h
}

func parse(t *testing.T, args ...string) *config.SessionConfig {
	sc, _, err := config.Parse(append([]string{"fusent"}, args...))
	require.NoError(t, err)
	return sc
}

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.NewConfig([]string{filepath.Join(t.TempDir(), "missing.ini")})
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return cfg
}

func TestRunUntilCancelled(t *testing.T) {
	h := useFakeHost(t, nil)
	sc := parse(t, "-f", "-s", "-o", "fsname=test", "/mnt/x")
	fs := memfs.New()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, sc, testConfig(t), fs)
	}()

	select {
	case <-h.started:
	case err := <-errc:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("host not started")
	}
	assert.Equal(t, "/mnt/x", h.opts.MountPoint)
	assert.Equal(t, "test", h.opts.Label)
	assert.Equal(t, []string{"-o", "fsname=test"}, h.opts.Args)
	assert.Equal(t, 1, h.d.Volume().OpenCount())

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	assert.True(t, h.unmounted)
	assert.Equal(t, 0, h.d.Volume().OpenCount())

	rsp := h.d.Submit(context.Background(), server.QueryInfoRequest{})
	assert.Equal(t, erref.STATUS_VOLUME_DISMOUNTED, rsp.Status)
}

func TestRunMountFailure(t *testing.T) {
	errMount := errors.New("no fuse")
	useFakeHost(t, func() error { return errMount })

	err := Run(context.Background(), parse(t, "-f", "/mnt/x"), testConfig(t), memfs.New())
	assert.ErrorIs(t, err, errMount)

	// the shutdown bridge was released
	err = Run(context.Background(), parse(t, "-f", "/mnt/y"), testConfig(t), memfs.New())
	assert.ErrorIs(t, err, errMount)
}

func TestInitLogs(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.InfoLevel)

	InitLogs(config.AppConfig{Debug: true, Console: true})
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.Equal(t, os.Stdout, log.StandardLogger().Out)

	logFile := filepath.Join(t.TempDir(), "fusent.log")
	InitLogs(config.AppConfig{Console: false, LogFile: logFile})
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	log.Info("hello")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
