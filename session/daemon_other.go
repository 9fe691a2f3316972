//go:build !unix

package session

import "errors"

// EnterForegroundOrBackground only supports foreground operation on this
// platform.
func EnterForegroundOrBackground(foreground bool) error {
	if foreground {
		return nil
	}
	return &LifecycleError{Op: "daemonize", Err: errors.New("background operation is not supported on this platform")}
}
