//go:build !cgofuse

package mount

import "github.com/macos-fuse-t/fusent/server"

// New reports ErrUnavailable; build with -tags cgofuse for a FUSE host.
func New(d *server.Dispatcher, opts Options) (Host, error) {
	return nil, ErrUnavailable
}
