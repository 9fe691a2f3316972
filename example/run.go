package example

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/macos-fuse-t/fusent/config"
	"github.com/macos-fuse-t/fusent/mount"
	"github.com/macos-fuse-t/fusent/server"
	"github.com/macos-fuse-t/fusent/session"
	"github.com/macos-fuse-t/fusent/stats"
	"github.com/macos-fuse-t/fusent/vfs"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewHost builds the mount host for a session.
var NewHost = mount.New

// Run serves fs at the parsed mount point and blocks until the session is
// asked to exit, by a termination signal or by cancelling ctx.
func Run(ctx context.Context, sc *config.SessionConfig, cfg config.AppConfig, fs vfs.VFSFileSystem) error {
	if sc.Debug() {
		cfg.Debug = true
	}
	// a detached process has no terminal to log to
	cfg.Console = cfg.Console && sc.Foreground()
	InitLogs(cfg)

	if err := session.EnterForegroundOrBackground(sc.Foreground()); err != nil {
		return err
	}

	h := session.NewHandle()
	if err := session.InstallShutdownBridge(h); err != nil {
		return err
	}
	defer func() {
		if err := session.RemoveShutdownBridge(h); err != nil {
			log.Errorf("%v: %v, bridge held by %v", h, err, session.Registered())
		}
	}()
	log.Infof("%v: serving %s at %s", h, sc.FilesystemLabel(), sc.MountPoint())

	v := server.NewVolume(fs, &server.VolumeConfig{
		Label:  sc.FilesystemLabel(),
		Xattrs: cfg.Xattrs,
	})
	workers := cfg.Workers
	if sc.SingleThreaded() {
		workers = 1
	}
	d := server.NewDispatcher(v, workers)

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	if cfg.StatsAddr != "" {
		go func() {
			if err := stats.StatServer(statsCtx, cfg.StatsAddr); err != nil {
				log.Errorf("stats server: %v", err)
			}
		}()
	}

	host, err := NewHost(d, mount.Options{
		MountPoint: sc.MountPoint(),
		Label:      sc.FilesystemLabel(),
		Args:       sc.PassthroughArgs(),
	})
	if err == nil {
		err = host.Start(ctx)
	}
	if err != nil {
		log.Errorf("mount %s: %v", sc.MountPoint(), err)
		return multierror.Append(err, teardown(context.Background(), d, v)).ErrorOrNil()
	}

	loop := &session.Loop{Handle: h, DrainTimeout: cfg.DrainTimeout}
	return loop.Run(ctx, func(dctx context.Context) error {
		var result error
		if err := host.Unmount(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := teardown(dctx, d, v); err != nil {
			result = multierror.Append(result, err)
		}
		return result
	})
}

// teardown waits for in-flight requests and releases every open.
func teardown(ctx context.Context, d *server.Dispatcher, v *server.Volume) error {
	var result error
	if err := d.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.CloseAll(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func InitLogs(cfg config.AppConfig) {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if cfg.Console {
		log.SetOutput(os.Stdout)
		return
	}

	name := cfg.LogFile
	if !filepath.IsAbs(name) {
		homeDir, _ := os.UserHomeDir()
		name = filepath.Join(homeDir, name)
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   name,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, //days
		Compress:   true,
	})
}
