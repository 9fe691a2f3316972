//go:build unix

package session

import (
	"os"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// exit ends the parent after the background child started.
var exit = os.Exit

// EnterForegroundOrBackground detaches the process from its terminal when
// foreground is false. Go cannot fork a running runtime, so the binary is
// re-executed in a new session with stdio on /dev/null and the parent exits
// with status 0. The child sees DaemonEnv and continues in place.
func EnterForegroundOrBackground(foreground bool) error {
	if foreground {
		return nil
	}
	if os.Getenv(DaemonEnv) == "1" {
		os.Unsetenv(DaemonEnv)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return &LifecycleError{Op: "daemonize", Err: err}
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return &LifecycleError{Op: "daemonize", Err: err}
	}
	defer devnull.Close()

	wd, err := os.Getwd()
	if err != nil {
		return &LifecycleError{Op: "daemonize", Err: err}
	}

	p, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Dir:   wd,
		Env:   append(os.Environ(), DaemonEnv+"=1"),
		Files: []*os.File{devnull, devnull, devnull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return &LifecycleError{Op: "daemonize", Err: err}
	}

	log.Debugf("background process %d started", p.Pid)
	p.Release()
	exit(0)
	return nil
}
